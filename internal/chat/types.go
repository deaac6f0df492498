package chat

import "fmt"

type Sender string

const (
	SenderSystem    Sender = "system"
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// SessionDescriptor identifies an uploaded document and the server-side
// conversation bound to it. It is produced by the upload endpoint.
type SessionDescriptor struct {
	SessionID  string `json:"session_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

type Message struct {
	ID        string
	Text      string
	Sender    Sender
	Streaming bool
}

// Greeting is the system message that opens every conversation.
func Greeting(filename string) string {
	return fmt.Sprintf("You've uploaded \"%s\". Ask any questions about this document!", filename)
}
