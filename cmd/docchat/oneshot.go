package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"doc-chat/internal/chat"
	"doc-chat/internal/config"
	"doc-chat/internal/upload"
)

const (
	oneShotEventBuffer = 256
	// defaultRequestTimeout bounds each HTTP request. Uploads include the
	// server's indexing of the document, so it is generous.
	defaultRequestTimeout = 5 * time.Minute
)

// queryTimeout bounds a non-streaming query. The whole answer is the first
// thing the server sends, so -timeout applies to it directly.
func queryTimeout(cfg config.AppConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return defaultRequestTimeout
}

// askOnce uploads cfg.File, asks cfg.Ask and writes the answer to out as it
// streams in.
func askOnce(ctx context.Context, cfg config.AppConfig, uploader *upload.Client, dialer chat.Dialer, out io.Writer, logger *slog.Logger) error {
	session, err := uploader.Upload(ctx, cfg.File)
	if err != nil {
		return fmt.Errorf("upload %s: %w", cfg.File, err)
	}
	logger.Info("document uploaded", "session_id", session.SessionID, "filename", session.Filename)

	if cfg.NoStream {
		qctx, cancel := context.WithTimeout(ctx, queryTimeout(cfg))
		defer cancel()
		answer, err := uploader.Query(qctx, session.SessionID, cfg.Ask)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, strings.TrimRight(answer, "\n"))
		return err
	}

	events := make(chan chat.Event, oneShotEventBuffer)
	printed := 0
	ctrl := chat.NewController(dialer, func(ev chat.Event) {
		events <- ev
	}, chat.WithLogger(logger), chat.WithOnChange(func(m chat.Message) {
		if m.Sender != chat.SenderAssistant || len(m.Text) <= printed {
			return
		}
		fmt.Fprint(out, m.Text[printed:])
		printed = len(m.Text)
	}))
	defer ctrl.Close()

	ctrl.Initialize(session)
	if !ctrl.Submit(cfg.Ask) {
		return errors.New("question is empty")
	}
	runErr := ctrl.Run(ctx, events)
	if printed > 0 {
		fmt.Fprintln(out)
	}
	if runErr != nil {
		return runErr
	}
	if msg := ctrl.LastError(); msg != "" {
		return errors.New(msg)
	}
	return nil
}
