package app

import (
	"context"
	"time"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/ingest"
	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/realtime"
	"github.com/yungbote/notebook-backend/internal/realtime/bus"
)

// ingestEmbedder narrows the guarded model to the pipeline's Embedder.
type ingestEmbedder struct {
	model steps.Model
	dims  int
}

func (e *ingestEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.model.Embed(ctx, texts)
}

func (e *ingestEmbedder) Dims() int { return e.dims }

// documentNotifier publishes document status transitions on the SSE
// bus; the forwarder loops them back into the local hub.
func documentNotifier(log *logger.Logger, sseBus bus.Bus) ingest.StatusNotifier {
	return func(doc *domain.Document) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg := realtime.SSEMessage{
			Channel: realtime.SessionChannel(doc.SessionID),
			Event:   realtime.SSEEventDocumentStatusChanged,
			Data:    doc,
		}
		if err := sseBus.Publish(ctx, msg); err != nil {
			log.Warn("document status publish failed",
				"document_id", doc.ID, "status", doc.Status, "error", err)
		}
	}
}
