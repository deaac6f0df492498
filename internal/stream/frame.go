package stream

import (
	"encoding/json"
	"fmt"

	"doc-chat/internal/chat"
)

// QueryFrame is the only frame a client ever sends on a transport.
type QueryFrame struct {
	Query string `json:"query"`
}

// Frame is an inbound envelope. Servers set one of the fields per frame.
type Frame struct {
	Error string `json:"error,omitempty"`
	Chunk string `json:"chunk,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// DecodeFrame turns one inbound frame into controller events. An error
// frame yields only the error; otherwise a non-empty chunk comes before
// done. Frames with none of the known fields yield nothing.
func DecodeFrame(data []byte) ([]chat.Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Error != "" {
		return []chat.Event{{Kind: chat.EventServerError, Text: f.Error}}, nil
	}

	var events []chat.Event
	if f.Chunk != "" {
		events = append(events, chat.Event{Kind: chat.EventChunk, Text: f.Chunk})
	}
	if f.Done {
		events = append(events, chat.Event{Kind: chat.EventDone})
	}
	return events, nil
}
