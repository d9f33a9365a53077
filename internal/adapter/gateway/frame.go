package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	// FrameTypeTurn carries a completed TurnResult.
	FrameTypeTurn FrameType = "turn"
	// FrameTypeEvent carries any other bus event.
	FrameTypeEvent FrameType = "event"
	// FrameTypeRequest is a client-submitted turn.
	FrameTypeRequest FrameType = "request"
	// FrameTypeResponse answers a request frame with the same ID.
	FrameTypeResponse FrameType = "response"
)

// Frame is the envelope exchanged over the WebSocket connection.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TurnRequest is the body of POST /process-text and of request frames.
type TurnRequest struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}
