package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	ConnectErrorText = "Error connecting to the server"
	TimeoutErrorText = "Timed out waiting for the server"
)

// Controller owns the conversation about one uploaded document. All methods
// must be called from a single goroutine; transport goroutines reach it only
// through the Sink given to NewController.
type Controller struct {
	dialer   Dialer
	sink     Sink
	logger   *slog.Logger
	newID    func() string
	onChange func(Message)

	session   SessionDescriptor
	store     *Store
	pending   bool
	lastError string

	active      Transport
	activeID    string
	query       string
	sent        bool
	streamingID string
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnChange registers a callback invoked after every change to a message.
func WithOnChange(fn func(Message)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithIDSource overrides how transport ids are generated.
func WithIDSource(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func NewController(dialer Dialer, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		dialer: dialer,
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  uuid.NewString,
		store:  NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize starts a fresh conversation about session, discarding the
// previous one and releasing its transport.
func (c *Controller) Initialize(session SessionDescriptor) {
	c.release()
	c.session = session
	c.store = NewStore()
	c.pending = false
	c.lastError = ""
	c.streamingID = ""
	c.query = ""

	m := c.store.Append(Message{Sender: SenderSystem, Text: Greeting(session.Filename)})
	c.notify(m)
	c.logger.Info("session initialized", "session_id", session.SessionID, "filename", session.Filename)
}

// Submit appends the user's question and an empty streaming answer, then
// opens a transport for it. Blank text is ignored and reported as false.
func (c *Controller) Submit(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if c.session.SessionID == "" {
		c.logger.Warn("query submitted before a session was initialized")
		return false
	}

	c.Supersede()

	c.notify(c.store.Append(Message{Sender: SenderUser, Text: text}))
	answer := c.store.Append(Message{Sender: SenderAssistant, Streaming: true})
	c.notify(answer)

	c.streamingID = answer.ID
	c.pending = true
	c.lastError = ""
	c.query = text
	c.sent = false
	c.activeID = c.newID()
	c.active = c.dialer.Open(c.session.SessionID, c.activeID, c.sink)
	c.logger.Debug("transport opened", "transport", c.activeID, "session_id", c.session.SessionID)
	return true
}

// Supersede closes the active transport without waiting for it and freezes
// the answer it was streaming, so at most one message is ever streaming.
func (c *Controller) Supersede() {
	c.release()
	if c.streamingID == "" {
		return
	}
	if m, err := c.store.SetStreaming(c.streamingID, false); err == nil {
		c.notify(m)
	}
	c.streamingID = ""
}

// Close releases the active transport. The conversation is left as is.
func (c *Controller) Close() {
	c.release()
}

// Apply is the single state transition function. Events from any transport
// other than the active one are dropped.
func (c *Controller) Apply(ev Event) {
	if c.active == nil || ev.Transport != c.activeID {
		c.logger.Debug("dropping stale transport event", "transport", ev.Transport, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case EventReady:
		if c.sent {
			return
		}
		c.sent = true
		if err := c.active.Send(c.query); err != nil {
			c.logger.Warn("send query", "transport", c.activeID, "error", err)
			c.lastError = ConnectErrorText
			c.pending = false
			c.release()
		}

	case EventChunk:
		if c.streamingID == "" || ev.Text == "" {
			return
		}
		m, err := c.store.AppendText(c.streamingID, ev.Text)
		if err != nil {
			c.logger.Error("append chunk", "error", err)
			return
		}
		c.notify(m)

	case EventServerError:
		c.logger.Warn("server reported error", "transport", c.activeID, "message", ev.Text)
		c.lastError = ev.Text

	case EventDone:
		if c.streamingID != "" {
			if m, err := c.store.SetStreaming(c.streamingID, false); err == nil {
				c.notify(m)
			}
			c.streamingID = ""
		}
		if err := c.active.Close(); err != nil {
			c.logger.Debug("close transport", "transport", c.activeID, "error", err)
		}

	case EventClosed:
		c.pending = false
		c.active = nil
		c.activeID = ""

	case EventTransportError:
		c.logger.Warn("transport failed", "transport", c.activeID, "error", ev.Err)
		if errors.Is(ev.Err, ErrTransportTimeout) {
			c.lastError = TimeoutErrorText
		} else {
			c.lastError = ConnectErrorText
		}
		c.pending = false
	}
}

// Run applies events until no query is in flight or ctx is done. It lets a
// caller without its own event loop drive the controller.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	for c.pending {
		select {
		case <-ctx.Done():
			c.Supersede()
			c.pending = false
			return ctx.Err()
		case ev := <-events:
			c.Apply(ev)
		}
	}
	return nil
}

func (c *Controller) Session() SessionDescriptor { return c.session }
func (c *Controller) Messages() []Message         { return c.store.Messages() }
func (c *Controller) Pending() bool               { return c.pending }
func (c *Controller) LastError() string           { return c.lastError }
func (c *Controller) HasTransport() bool          { return c.active != nil }

// Streaming returns the assistant message currently receiving chunks.
func (c *Controller) Streaming() (Message, bool) {
	if c.streamingID == "" {
		return Message{}, false
	}
	return c.store.Get(c.streamingID)
}

// LastAnswer returns the text of the most recent finished assistant message.
func (c *Controller) LastAnswer() (string, bool) {
	msgs := c.store.msgs
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender == SenderAssistant && !m.Streaming && strings.TrimSpace(m.Text) != "" {
			return m.Text, true
		}
	}
	return "", false
}

func (c *Controller) release() {
	if c.active == nil {
		return
	}
	if err := c.active.Close(); err != nil {
		c.logger.Debug("close transport", "transport", c.activeID, "error", err)
	}
	c.active = nil
	c.activeID = ""
}

func (c *Controller) notify(m Message) {
	if c.onChange != nil {
		c.onChange(m)
	}
}
