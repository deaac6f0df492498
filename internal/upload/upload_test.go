package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", size)), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused", MaxBytes: 1024})

	cases := []struct {
		name   string
		path   string
		reason string
	}{
		{"blank", "  ", "Please select a file to upload"},
		{"extension", writeFile(t, "doc.docx", 10), "Only PDF and TXT files are supported"},
		{"no extension", writeFile(t, "README", 10), "Only PDF and TXT files are supported"},
		{"missing", filepath.Join(t.TempDir(), "gone.pdf"), "File not found: "},
		{"empty", writeFile(t, "empty.txt", 0), "The selected file is empty"},
		{"too large", writeFile(t, "big.pdf", 2048), "File exceeds the 1KB upload limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Validate(tc.path)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.True(t, strings.HasPrefix(verr.Reason, tc.reason), "reason %q", verr.Reason)
		})
	}

	st, err := c.Validate(writeFile(t, "Report.PDF", 100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Size())
}

func TestUploadSuccess(t *testing.T) {
	path := writeFile(t, "report.pdf", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Len(t, body, 64)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"abc","filename":"report.pdf","chunk_count":3}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	s, err := c.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "abc", s.SessionID)
	assert.Equal(t, "report.pdf", s.Filename)
	assert.Equal(t, 3, s.ChunkCount)
}

func TestUploadRejectedSurfacesDetail(t *testing.T) {
	path := writeFile(t, "report.txt", 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Error processing file: bad encoding"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), path)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusInternalServerError, uerr.Status)
	assert.Equal(t, "Error processing file: bad encoding", err.Error())
}

func TestUploadRejectedWithoutDetail(t *testing.T) {
	path := writeFile(t, "report.txt", 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","file"],"msg":"field required"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, "Failed to upload file", err.Error())
}

func TestUploadValidationSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), writeFile(t, "x.csv", 4))
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.False(t, called)
}

func TestUploadMissingSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"filename":"x.txt"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), writeFile(t, "x.txt", 4))
	assert.EqualError(t, err, "upload response missing session_id")
}

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		var req queryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.SessionID != "abc" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Session not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(queryResponse{Response: "answer to " + req.Query})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	got, err := c.Query(context.Background(), "abc", "why?")
	require.NoError(t, err)
	assert.Equal(t, "answer to why?", got)

	_, err = c.Query(context.Background(), "zzz", "why?")
	assert.EqualError(t, err, "Session not found")

	_, err = c.Query(context.Background(), "abc", " ")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "2MB", FormatSize(DefaultMaxBytes))
	assert.Equal(t, "1.5MB", FormatSize(3<<19))
	assert.Equal(t, "4KB", FormatSize(4096))
	assert.Equal(t, "12B", FormatSize(12))
}
