package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"doc-chat/internal/config"
	"doc-chat/internal/export"
	"doc-chat/internal/logging"
	"doc-chat/internal/stream"
	"doc-chat/internal/ui"
	"doc-chat/internal/upload"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "docchat:", err)
		return 2
	}

	logger, closer, err := logging.New(logging.Config{Path: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, "docchat:", err)
		return 2
	}
	defer closer.Close()
	slog.SetDefault(logger)

	wsBase, err := config.WebSocketBase(cfg.ServerURL, cfg.WSURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "docchat:", err)
		return 2
	}

	uploader := upload.NewClient(upload.Config{
		BaseURL:  cfg.ServerURL,
		MaxBytes: cfg.UploadLimit,
		Timeout:  defaultRequestTimeout,
		Logger:   logger,
	})
	dialer := stream.NewDialer(stream.Config{
		BaseURL:     wsBase,
		IdleTimeout: cfg.Timeout,
		Logger:      logger,
	})
	slog.Info("starting", "server", cfg.ServerURL, "ws", wsBase, "headless", cfg.Ask != "")

	if cfg.Ask != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := askOnce(ctx, cfg, uploader, dialer, os.Stdout, logger); err != nil {
			slog.Error("one-shot query failed", "error", err)
			fmt.Fprintln(os.Stderr, "docchat:", err)
			return 1
		}
		return 0
	}

	exporter, err := export.New(cfg.ExportDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "docchat:", err)
		return 1
	}

	model := ui.NewModel(cfg, ui.Deps{
		Uploader: uploader,
		Dialer:   dialer,
		Exporter: exporter,
		Logger:   logger,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		slog.Error("ui exited", "error", err)
		fmt.Fprintln(os.Stderr, "docchat:", err)
		return 1
	}
	return 0
}
