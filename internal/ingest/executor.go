package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/jobs/worker"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Executor runs document processing on a bounded worker pool so uploads
// return immediately and ingestion proceeds in the background.
type Executor struct {
	log      *logger.Logger
	pipeline *Pipeline
	pool     *worker.Pool
	timeout  time.Duration
}

func NewExecutor(log *logger.Logger, pipeline *Pipeline, workers, queueSize int, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Executor{
		log:      log.With("service", "IngestExecutor"),
		pipeline: pipeline,
		pool:     worker.NewPool(log, "ingest", workers, queueSize),
		timeout:  timeout,
	}
}

func (e *Executor) Start(ctx context.Context) { e.pool.Start(ctx) }
func (e *Executor) Stop()                     { e.pool.Stop() }

// Enqueue schedules processing of one document. The payload is captured
// by the task; callers must not mutate it afterwards. A full queue fails
// the document instead of dropping queued work: an invisible drop would
// leave the row Pending forever.
func (e *Executor) Enqueue(documentID uuid.UUID, data []byte) {
	accepted := e.pool.TrySubmit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		start := time.Now()
		err := e.pipeline.ProcessDocument(ctx, documentID, data)
		observability.Current().ObserveSeconds(
			"ingest_process_duration_seconds", "Document processing latency", time.Since(start).Seconds())
		if err != nil {
			e.log.Warn("background ingestion failed",
				"document_id", documentID, "error", err)
		}
	})
	if accepted {
		return
	}

	e.log.Warn("ingestion queue full, failing document", "document_id", documentID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.pipeline.FailDocument(ctx, documentID, "ingestion queue full; upload again to retry")
}
