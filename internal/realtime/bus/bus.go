// Package bus moves SSEMessages between replicas so a status change
// produced on one instance reaches clients connected to another.
package bus

import (
	"context"

	"github.com/yungbote/notebook-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	// StartForwarder subscribes and invokes onMsg for every message on
	// the shared channel, including this instance's own publishes.
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
