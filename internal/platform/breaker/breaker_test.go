package breaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestStaysClosedBelowMinCalls(t *testing.T) {
	b := New("test", 30*time.Second)
	for i := 0; i < 4; i++ {
		b.Record(errBoom)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected closed below min calls, got %v", err)
	}
}

func TestOpensAtHalfFailureRate(t *testing.T) {
	b := New("test", 30*time.Second)
	for i := 0; i < 3; i++ {
		b.Record(nil)
	}
	for i := 0; i < 3; i++ {
		b.Record(errBoom)
	}
	if err := b.Allow(); !IsOpen(err) {
		t.Fatalf("expected open at 50%% failures, got %v", err)
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New("test", 30*time.Second, WithClock(clock))

	for i := 0; i < 5; i++ {
		b.Record(errBoom)
	}
	if err := b.Allow(); !IsOpen(err) {
		t.Fatalf("expected open, got %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe admitted, got %v", err)
	}
	// Second concurrent call is rejected while the probe is in flight.
	if err := b.Allow(); !IsOpen(err) {
		t.Fatalf("expected single probe, got %v", err)
	}
	b.Record(nil)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected closed after successful probe, got %v", err)
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := New("test", 30*time.Second, WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		b.Record(errBoom)
	}
	now = now.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be admitted: %v", err)
	}
	b.Record(errBoom)
	if err := b.Allow(); !IsOpen(err) {
		t.Fatalf("expected reopened after failed probe, got %v", err)
	}
}

func TestDoWrapsOutcome(t *testing.T) {
	b := New("test", time.Second)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped call error, got %v", err)
	}
}
