package chat

import "errors"

// ErrTransportTimeout is carried by an EventTransportError when the server
// stayed silent longer than the configured idle timeout.
var ErrTransportTimeout = errors.New("timed out waiting for the server")

type EventKind int

const (
	EventReady EventKind = iota + 1
	EventChunk
	EventServerError
	EventDone
	EventClosed
	EventTransportError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventChunk:
		return "chunk"
	case EventServerError:
		return "server-error"
	case EventDone:
		return "done"
	case EventClosed:
		return "closed"
	case EventTransportError:
		return "transport-error"
	default:
		return "unknown"
	}
}

// Event is one notification from a transport. Transport is the id the
// controller assigned when it opened that transport.
type Event struct {
	Transport string
	Kind      EventKind
	Text      string
	Err       error
}

// Transport is one connection carrying a single query and its streamed
// answer. Close must be idempotent and must not block on the network.
type Transport interface {
	Send(query string) error
	Close() error
}

// Sink receives transport events. Implementations hand them to whatever
// goroutine owns the Controller; the Controller itself is not safe for
// concurrent use.
type Sink func(Event)

// Dialer opens transports. Open returns immediately; the outcome of the
// connection attempt is reported through sink as EventReady or
// EventTransportError.
type Dialer interface {
	Open(sessionID, transportID string, sink Sink) Transport
}
