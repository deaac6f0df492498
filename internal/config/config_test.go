package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestParseArgsDefaults(t *testing.T) {
	unsetEnv(t, "DOCCHAT_SERVER_URL", "DOCCHAT_LOG_FILE", "DOCCHAT_TIMEOUT", "DOCCHAT_UPLOAD_LIMIT", "DOCCHAT_STYLE")
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.ServerURL)
	assert.Equal(t, filepath.Join("/tmp/state", "docchat", "docchat.log"), cfg.LogFile)
	assert.Equal(t, int64(2<<20), cfg.UploadLimit)
	assert.Equal(t, DefaultGlamourStyle, cfg.GlamourStyle)
	assert.Zero(t, cfg.Timeout)
}

func TestParseArgsFlagsOverrideEnv(t *testing.T) {
	t.Setenv("DOCCHAT_SERVER_URL", "http://env:9000")
	t.Setenv("DOCCHAT_TIMEOUT", "30s")
	t.Setenv("DOCCHAT_LOG_FILE", "/tmp/env.log")

	cfg, err := ParseArgs([]string{"-server", "https://flag.example", "-file", "a.pdf", "-ask", "why?"})
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/env.log", cfg.LogFile)
	assert.Equal(t, "why?", cfg.Ask)
}

func TestParseArgsRejectsInvalid(t *testing.T) {
	t.Setenv("DOCCHAT_LOG_FILE", "/tmp/x.log")
	for _, args := range [][]string{
		{"-ask", "why?"},
		{"-timeout", "-1s"},
		{"-upload-limit", "0"},
		{"-server", "ftp://host"},
		{"-ws-url", "http://host"},
	} {
		_, err := ParseArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestWebSocketBase(t *testing.T) {
	cases := []struct {
		server, override, want string
	}{
		{"http://localhost:8000", "", "ws://localhost:8000"},
		{"https://docs.example.com/", "", "wss://docs.example.com"},
		{"https://docs.example.com/api", "", "wss://docs.example.com/api"},
		{"http://ignored", "wss://socket.example.com/", "wss://socket.example.com"},
	}
	for _, tc := range cases {
		got, err := WebSocketBase(tc.server, tc.override)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := WebSocketBase("localhost:8000", "")
	assert.Error(t, err)
	_, err = WebSocketBase("http://", "")
	assert.Error(t, err)
}
