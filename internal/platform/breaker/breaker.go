package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker open")

// IsOpen reports whether err is (or wraps) a breaker rejection.
func IsOpen(err error) bool { return errors.Is(err, ErrOpen) }

const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a rolling-window circuit breaker: it opens when at least
// half of the last windowSize calls failed (once minCalls have been
// observed), stays open for openFor, then admits a single probe.
type Breaker struct {
	mu sync.Mutex

	name       string
	windowSize int
	minCalls   int
	openFor    time.Duration
	now        func() time.Time

	state    int
	openedAt time.Time
	probing  bool
	outcomes []bool // true = failure, newest last
}

type Option func(*Breaker)

// WithWindow overrides the rolling window and minimum call count.
func WithWindow(size, minCalls int) Option {
	return func(b *Breaker) {
		if size > 0 {
			b.windowSize = size
		}
		if minCalls > 0 {
			b.minCalls = minCalls
		}
	}
}

// WithClock replaces the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func New(name string, openFor time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:       name,
		windowSize: 10,
		minCalls:   5,
		openFor:    openFor,
		now:        time.Now,
		state:      stateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// Allow decides whether a call may proceed. While open it rejects until
// openFor has elapsed, then transitions to half-open and admits exactly
// one probe at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.state = stateHalfOpen
		b.probing = true
		return nil
	default: // half-open
		if b.probing {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.probing = true
		return nil
	}
}

// Record reports the outcome of a call previously admitted by Allow.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil

	if b.state == stateHalfOpen {
		b.probing = false
		if failed {
			b.trip()
			return
		}
		b.state = stateClosed
		b.outcomes = b.outcomes[:0]
		return
	}

	b.outcomes = append(b.outcomes, failed)
	if len(b.outcomes) > b.windowSize {
		b.outcomes = b.outcomes[len(b.outcomes)-b.windowSize:]
	}
	if len(b.outcomes) < b.minCalls {
		return
	}
	failures := 0
	for _, f := range b.outcomes {
		if f {
			failures++
		}
	}
	if failures*2 >= len(b.outcomes) {
		b.trip()
	}
}

// Do runs fn under the breaker.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

func (b *Breaker) trip() {
	b.state = stateOpen
	b.openedAt = b.now()
	b.outcomes = b.outcomes[:0]
	b.probing = false
}
