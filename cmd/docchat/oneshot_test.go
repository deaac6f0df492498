package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"doc-chat/internal/config"
	"doc-chat/internal/logging"
	"doc-chat/internal/stream"
	"doc-chat/internal/upload"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// documentServer serves /upload, /query and /chat/{id} the way the
// document server does. frames are written after the query frame arrives.
func documentServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": "sess-1", "filename": hdr.Filename})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string `json:"query"`
			SessionID string `json:"session_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-1", req.SessionID)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "whole answer to " + req.Query + "\n"})
	})
	mux.HandleFunc("/chat/sess-1", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var q stream.QueryFrame
		if err := ws.ReadJSON(&q); err != nil {
			return
		}
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = ws.ReadMessage()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, srv *httptest.Server) (config.AppConfig, *upload.Client, *stream.Dialer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("kestrels are small falcons"), 0o644))

	wsBase, err := config.WebSocketBase(srv.URL, "")
	require.NoError(t, err)

	cfg := config.AppConfig{ServerURL: srv.URL, File: path, Ask: "what are kestrels?"}
	uploader := upload.NewClient(upload.Config{BaseURL: srv.URL})
	dialer := stream.NewDialer(stream.Config{BaseURL: wsBase})
	return cfg, uploader, dialer
}

func TestAskOnceStreams(t *testing.T) {
	srv := documentServer(t, []string{`{"chunk":"Small "}`, `{"chunk":"falcons."}`, `{"done":true}`})
	cfg, uploader, dialer := setup(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, askOnce(ctx, cfg, uploader, dialer, &out, logging.Discard()))
	assert.Equal(t, "Small falcons.\n", out.String())
}

func TestAskOnceServerError(t *testing.T) {
	srv := documentServer(t, []string{`{"error":"Session not found"}`})
	cfg, uploader, dialer := setup(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := askOnce(ctx, cfg, uploader, dialer, &out, logging.Discard())
	assert.EqualError(t, err, "Session not found")
	assert.Empty(t, out.String())
}

func TestAskOnceNoStream(t *testing.T) {
	srv := documentServer(t, nil)
	cfg, uploader, dialer := setup(t, srv)
	cfg.NoStream = true

	var out bytes.Buffer
	require.NoError(t, askOnce(context.Background(), cfg, uploader, dialer, &out, logging.Discard()))
	assert.Equal(t, "whole answer to what are kestrels?\n", out.String())
}

func TestAskOnceUploadRejected(t *testing.T) {
	srv := documentServer(t, nil)
	cfg, uploader, dialer := setup(t, srv)
	cfg.File = filepath.Join(t.TempDir(), "slides.pptx")
	require.NoError(t, os.WriteFile(cfg.File, []byte("x"), 0o644))

	err := askOnce(context.Background(), cfg, uploader, dialer, &bytes.Buffer{}, logging.Discard())
	var verr *upload.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAskOnceNoStreamTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": "sess-1", "filename": "notes.txt"})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg, uploader, dialer := setup(t, srv)
	cfg.NoStream = true
	cfg.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := askOnce(context.Background(), cfg, uploader, dialer, &bytes.Buffer{}, logging.Discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestQueryTimeout(t *testing.T) {
	assert.Equal(t, defaultRequestTimeout, queryTimeout(config.AppConfig{}))
	assert.Equal(t, 30*time.Second, queryTimeout(config.AppConfig{Timeout: 30 * time.Second}))
}
