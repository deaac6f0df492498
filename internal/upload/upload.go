package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc-chat/internal/chat"
)

const (
	DefaultMaxBytes = 2 << 20
	maxResponseSize = 1 << 20

	fallbackUploadDetail = "Failed to upload file"
	fallbackQueryDetail  = "Failed to query document"
)

var allowedExtensions = map[string]struct{}{
	".pdf": {},
	".txt": {},
}

// ValidationError rejects a document before any request is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Error is a rejection reported by the server. Detail is the server's own
// message and is shown to the user verbatim.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return e.Detail }

type Config struct {
	BaseURL    string
	MaxBytes   int64
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base     string
	maxBytes int64
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes: maxBytes,
		http:     hc,
		logger:   logger,
	}
}

func (c *Client) MaxBytes() int64 { return c.maxBytes }

// Validate checks path against the upload rules without touching the network.
func (c *Client) Validate(path string) (os.FileInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &ValidationError{Reason: "Please select a file to upload"}
	}
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
		return nil, &ValidationError{Reason: "Only PDF and TXT files are supported"}
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ValidationError{Reason: "File not found: " + path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, &ValidationError{Reason: "Please select a file to upload"}
	}
	if st.Size() == 0 {
		return nil, &ValidationError{Reason: "The selected file is empty"}
	}
	if st.Size() > c.maxBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("File exceeds the %s upload limit", FormatSize(c.maxBytes))}
	}
	return st, nil
}

// Upload sends the document and returns the session the server created for it.
func (c *Client) Upload(ctx context.Context, path string) (chat.SessionDescriptor, error) {
	var session chat.SessionDescriptor
	path = strings.TrimSpace(path)
	if _, err := c.Validate(path); err != nil {
		return session, err
	}

	body, contentType, err := buildForm(path)
	if err != nil {
		return session, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", body)
	if err != nil {
		return session, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	if err := c.do(req, fallbackUploadDetail, &session); err != nil {
		c.logger.Warn("upload failed", "path", path, "error", err)
		return session, err
	}
	if session.SessionID == "" {
		return session, errors.New("upload response missing session_id")
	}
	if session.Filename == "" {
		session.Filename = filepath.Base(path)
	}
	c.logger.Info("upload complete",
		"session_id", session.SessionID,
		"filename", session.Filename,
		"chunks", session.ChunkCount,
		"elapsed", time.Since(start))
	return session, nil
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Query asks a question through the non-streaming endpoint and returns the
// whole answer at once.
func (c *Client) Query(ctx context.Context, sessionID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", &ValidationError{Reason: "Query must not be empty"}
	}
	payload, err := json.Marshal(queryRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/query", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out queryResponse
	if err := c.do(req, fallbackQueryDetail, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) do(req *http.Request, fallback string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Detail: errorDetail(raw, fallback)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// errorDetail extracts a string "detail" field. Anything else, including
// structured validation details, falls back to a generic message.
func errorDetail(raw []byte, fallback string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil || strings.TrimSpace(detail) == "" {
		return fallback
	}
	return detail
}

func buildForm(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// FormatSize renders a byte limit the way the upload form advertises it.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
