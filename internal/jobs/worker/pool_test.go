package worker

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

func TestTrySubmitRejectsWithoutDisplacing(t *testing.T) {
	p := NewPool(logger.NewNop(), "test", 1, 1)

	ran := make(chan string, 2)
	if !p.TrySubmit(func(context.Context) { ran <- "first" }) {
		t.Fatalf("empty queue must accept")
	}
	if p.TrySubmit(func(context.Context) { ran <- "second" }) {
		t.Fatalf("full queue must reject")
	}

	p.Start(context.Background())
	defer p.Stop()

	select {
	case got := <-ran:
		if got != "first" {
			t.Fatalf("queued task displaced by rejected one: %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("queued task never ran")
	}
	select {
	case got := <-ran:
		t.Fatalf("rejected task must not run: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubmitDropsOldestWhenFull(t *testing.T) {
	p := NewPool(logger.NewNop(), "test", 1, 1)

	ran := make(chan string, 2)
	p.Submit(func(context.Context) { ran <- "old" })
	p.Submit(func(context.Context) { ran <- "new" })

	p.Start(context.Background())
	defer p.Stop()

	select {
	case got := <-ran:
		if got != "new" {
			t.Fatalf("drop-oldest must keep the newest task, ran %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("task never ran")
	}
}
