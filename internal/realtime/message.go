package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventDocumentStatusChanged SSEEvent = "DocumentStatusChanged"
	SSEEventSessionDeleted        SSEEvent = "SessionDeleted"
)

// SSEMessage is one fan-out frame. Channel scopes delivery; clients
// subscribed to a session's channel receive its document lifecycle
// updates.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// SessionChannel names the per-session event channel.
func SessionChannel(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}
