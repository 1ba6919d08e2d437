package steps

import "github.com/google/uuid"

// EventType discriminates the frames of a chat stream.
type EventType string

const (
	EventToken    EventType = "token"
	EventCitation EventType = "citation"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one frame of a streaming chat response. Exactly one of the
// payload fields is set, matching Type.
type Event struct {
	Type     EventType `json:"type"`
	Token    string    `json:"token,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
	Done     *Done     `json:"done,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}

// Citation points the client at one source that backed the answer. The
// page number is unknown for non-paginated sources and stays null.
type Citation struct {
	SourceFileName string `json:"sourceFileName"`
	PageNumber     *int   `json:"pageNumber"`
	Snippet        string `json:"snippet"`
}

// Done closes a successful stream.
type Done struct {
	MessageID  uuid.UUID `json:"messageId"`
	TokenCount int       `json:"tokenCount"`
}

// Error closes a failed stream. Message is generic; the detailed cause
// is logged server-side under ErrorID.
type Error struct {
	ErrorID string `json:"errorId"`
	Message string `json:"message"`
}

func TokenEvent(s string) Event      { return Event{Type: EventToken, Token: s} }
func CitationEvent(c Citation) Event { return Event{Type: EventCitation, Citation: &c} }
func DoneEvent(d Done) Event         { return Event{Type: EventDone, Done: &d} }
func ErrorEvent(e Error) Event       { return Event{Type: EventError, Error: &e} }
