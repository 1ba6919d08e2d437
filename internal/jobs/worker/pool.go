package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Pool is a named bounded FIFO worker pool for fire-and-forget tasks.
// When the queue is full the oldest task is dropped, never the caller
// blocked.
type Pool struct {
	name    string
	log     *logger.Logger
	tasks   chan func(context.Context)
	workers int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// DefaultWorkers is min(cpu*2, 8).
func DefaultWorkers() int {
	n := runtime.NumCPU() * 2
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func NewPool(log *logger.Logger, name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		name:    name,
		log:     log.With("pool", name),
		tasks:   make(chan func(context.Context), queueSize),
		workers: workers,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.log.Info("worker pool started", "workers", p.workers, "queue_cap", cap(p.tasks))
}

// Submit enqueues a task. A full queue drops the oldest pending task to
// make room; a task is never lost silently.
func (p *Pool) Submit(task func(context.Context)) {
	if task == nil {
		return
	}
	for {
		select {
		case p.tasks <- task:
			p.gaugeDepth()
			return
		default:
		}
		select {
		case dropped := <-p.tasks:
			_ = dropped
			p.log.Warn("queue full, dropping oldest task")
			observability.Current().IncCounter(
				"worker_tasks_dropped_total", "Tasks dropped from a full queue", "pool", p.name)
		default:
		}
	}
}

// TrySubmit enqueues the task only when the queue has room; it never
// displaces pending work. Callers for whom every task matters use this
// and handle the rejection themselves.
func (p *Pool) TrySubmit(task func(context.Context)) bool {
	if task == nil {
		return false
	}
	select {
	case p.tasks <- task:
		p.gaugeDepth()
		return true
	default:
		observability.Current().IncCounter(
			"worker_tasks_rejected_total", "Tasks rejected by a full queue", "pool", p.name)
		return false
	}
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.gaugeDepth()
			p.exec(ctx, task)
		}
	}
}

// exec isolates panics so one bad task cannot take a worker down.
func (p *Pool) exec(ctx context.Context, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "panic", r)
		}
	}()
	task(ctx)
}

func (p *Pool) gaugeDepth() {
	observability.Current().SetGauge(
		"worker_queue_depth", "Pending tasks in the pool queue",
		float64(len(p.tasks)), "pool", p.name)
}
