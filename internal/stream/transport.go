package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"doc-chat/internal/chat"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	closeGrace       = time.Second
	maxFrameSize     = 1 << 20
)

var (
	ErrClosed   = errors.New("transport closed")
	ErrNotReady = errors.New("transport not ready")
)

type Config struct {
	// BaseURL is the ws:// or wss:// origin that serves /chat/{session_id}.
	BaseURL string
	// IdleTimeout fails a transport that receives nothing for this long.
	// Zero waits forever.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	WSDialer    *websocket.Dialer
}

// Dialer opens one websocket per query against the chat endpoint.
type Dialer struct {
	base   string
	idle   time.Duration
	logger *slog.Logger
	ws     *websocket.Dialer
}

func NewDialer(cfg Config) *Dialer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ws := cfg.WSDialer
	if ws == nil {
		ws = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	return &Dialer{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		idle:   cfg.IdleTimeout,
		logger: logger,
		ws:     ws,
	}
}

func (d *Dialer) Endpoint(sessionID string) string {
	return d.base + "/chat/" + url.PathEscape(sessionID)
}

func (d *Dialer) Open(sessionID, transportID string, sink chat.Sink) chat.Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:       transportID,
		endpoint: d.Endpoint(sessionID),
		idle:     d.idle,
		sink:     sink,
		logger:   d.logger.With("transport", transportID),
		cancel:   cancel,
	}
	go t.run(ctx, d.ws)
	return t
}

// Transport is a single query/answer exchange over one websocket.
type Transport struct {
	id       string
	endpoint string
	idle     time.Duration
	sink     chat.Sink
	logger   *slog.Logger
	cancel   context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	once   sync.Once
}

func (t *Transport) Send(query string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return ErrNotReady
	}
	if t.idle > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.idle))
	}
	if err := t.conn.WriteJSON(QueryFrame{Query: query}); err != nil {
		return fmt.Errorf("write query frame: %w", err)
	}
	return nil
}

// Close marks the transport closed and tears the socket down in the
// background. It is safe to call any number of times.
func (t *Transport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		t.cancel()
		if conn == nil {
			return
		}
		go func() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			_ = conn.Close()
		}()
	})
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) emit(ev chat.Event) {
	ev.Transport = t.id
	t.sink(ev)
}

func (t *Transport) run(ctx context.Context, d *websocket.Dialer) {
	t.logger.Debug("dialing", "endpoint", t.endpoint)
	conn, resp, err := d.DialContext(ctx, t.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if t.isClosed() {
			t.emit(chat.Event{Kind: chat.EventClosed})
			return
		}
		t.logger.Warn("dial failed", "endpoint", t.endpoint, "error", err)
		t.emit(chat.Event{Kind: chat.EventTransportError, Err: fmt.Errorf("dial %s: %w", t.endpoint, err)})
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.emit(chat.Event{Kind: chat.EventClosed})
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.emit(chat.Event{Kind: chat.EventReady})
	t.readLoop(conn)
	t.emit(chat.Event{Kind: chat.EventClosed})
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		if t.idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t.idle))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.readFailed(err)
			return
		}
		events, err := DecodeFrame(data)
		if err != nil {
			t.logger.Debug("ignoring frame", "error", err)
			continue
		}
		for _, ev := range events {
			t.emit(ev)
		}
	}
}

// readFailed reports how the socket ended. A close frame from the server is
// a clean end whatever its code; only 1006 means no frame arrived.
func (t *Transport) readFailed(err error) {
	var (
		netErr   net.Error
		closeErr *websocket.CloseError
	)
	switch {
	case t.isClosed():
		t.logger.Debug("transport closed by client")
	case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
		t.logger.Debug("transport closed by server", "code", closeErr.Code, "reason", closeErr.Text)
	case errors.As(err, &netErr) && netErr.Timeout():
		t.logger.Warn("transport idle timeout", "timeout", t.idle)
		t.emit(chat.Event{Kind: chat.EventTransportError, Err: fmt.Errorf("read after %s: %w", t.idle, chat.ErrTransportTimeout)})
	default:
		t.logger.Warn("transport lost", "error", err)
		t.emit(chat.Event{Kind: chat.EventTransportError, Err: fmt.Errorf("read: %w", err)})
	}
}
