package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const DefaultGlamourStyle = "dark"

type AppConfig struct {
	ServerURL    string
	WSURL        string
	File         string
	Ask          string
	NoStream     bool
	ExportDir    string
	LogFile      string
	LogLevel     string
	Timeout      time.Duration
	UploadLimit  int64
	GlamourStyle string
}

// envDefaults seeds the flag defaults so flags always win over the environment.
type envDefaults struct {
	ServerURL    string        `env:"DOCCHAT_SERVER_URL" envDefault:"http://localhost:8000"`
	WSURL        string        `env:"DOCCHAT_WS_URL"`
	ExportDir    string        `env:"DOCCHAT_EXPORT_DIR"`
	LogFile      string        `env:"DOCCHAT_LOG_FILE"`
	LogLevel     string        `env:"DOCCHAT_LOG_LEVEL" envDefault:"info"`
	Timeout      time.Duration `env:"DOCCHAT_TIMEOUT" envDefault:"0s"`
	UploadLimit  int64         `env:"DOCCHAT_UPLOAD_LIMIT" envDefault:"2097152"`
	GlamourStyle string        `env:"DOCCHAT_STYLE"`
}

func Parse() (AppConfig, error) {
	return ParseArgs(os.Args[1:])
}

func ParseArgs(args []string) (AppConfig, error) {
	var cfg AppConfig

	var defaults envDefaults
	if err := env.Parse(&defaults); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if defaults.LogFile == "" {
		path, err := DefaultLogFile()
		if err != nil {
			return cfg, err
		}
		defaults.LogFile = path
	}
	if defaults.GlamourStyle == "" {
		defaults.GlamourStyle = DefaultGlamourStyle
	}

	fs := flag.NewFlagSet("docchat", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "server", defaults.ServerURL, "document server base URL")
	fs.StringVar(&cfg.WSURL, "ws-url", defaults.WSURL, "websocket base URL (derived from -server when empty)")
	fs.StringVar(&cfg.File, "file", "", "upload this document on start")
	fs.StringVar(&cfg.Ask, "ask", "", "ask one question about -file, print the answer and exit")
	fs.BoolVar(&cfg.NoStream, "no-stream", false, "with -ask, use the non-streaming query endpoint")
	fs.StringVar(&cfg.ExportDir, "export-dir", defaults.ExportDir, "transcript export directory")
	fs.StringVar(&cfg.LogFile, "log-file", defaults.LogFile, "log file path (empty disables logging)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	fs.DurationVar(&cfg.Timeout, "timeout", defaults.Timeout, "fail a query after this long without server frames (0 waits forever)")
	fs.Int64Var(&cfg.UploadLimit, "upload-limit", defaults.UploadLimit, "maximum upload size in bytes")
	fs.StringVar(&cfg.GlamourStyle, "style", defaults.GlamourStyle, "markdown style for answers")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("timeout must not be negative: %s", cfg.Timeout)
	}
	if cfg.UploadLimit <= 0 {
		return cfg, fmt.Errorf("upload limit must be positive: %d", cfg.UploadLimit)
	}
	if cfg.Ask != "" && cfg.File == "" {
		return cfg, fmt.Errorf("-ask requires -file")
	}
	if _, err := WebSocketBase(cfg.ServerURL, cfg.WSURL); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WebSocketBase returns the origin for chat websockets: the explicit
// override when set, otherwise the server URL with its scheme switched to
// ws or wss.
func WebSocketBase(serverURL, override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		u, err := url.Parse(override)
		if err != nil {
			return "", fmt.Errorf("parse websocket url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("websocket url must use ws or wss: %q", override)
		}
		return strings.TrimRight(override, "/"), nil
	}

	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url must use http or https: %q", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url has no host: %q", serverURL)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func DefaultLogFile() (string, error) {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "docchat", "docchat.log"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "docchat", "docchat.log"), nil
}
