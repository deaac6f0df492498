package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"doc-chat/internal/chat"
)

func sampleMessages() []chat.Message {
	return []chat.Message{
		{ID: "system-1", Sender: chat.SenderSystem, Text: chat.Greeting("report.pdf")},
		{ID: "user-2", Sender: chat.SenderUser, Text: "What is the summary?"},
		{ID: "assistant-3", Sender: chat.SenderAssistant, Text: "The document discusses X."},
		{ID: "user-4", Sender: chat.SenderUser, Text: "And then?"},
		{ID: "assistant-5", Sender: chat.SenderAssistant, Text: "Partly", Streaming: true},
	}
}

func TestBuildTranscriptMarkdown(t *testing.T) {
	out := BuildTranscriptMarkdown(sampleMessages())

	if !strings.HasPrefix(out, "> You've uploaded \"report.pdf\".") {
		t.Fatalf("expected system greeting as blockquote, got:\n%s", out)
	}
	if strings.Count(out, "## You") != 2 || strings.Count(out, "## Assistant") != 2 {
		t.Fatalf("unexpected headings:\n%s", out)
	}
	if !strings.Contains(out, "The document discusses X.") {
		t.Fatalf("expected answer text, got:\n%s", out)
	}
	if !strings.HasSuffix(out, "Partly\n\n_(incomplete)_\n") {
		t.Fatalf("expected unfinished answer to be marked, got:\n%s", out)
	}
}

func TestBuildTranscriptMarkdown_SkipsEmptyFinishedAnswer(t *testing.T) {
	msgs := []chat.Message{
		{Sender: chat.SenderUser, Text: "q"},
		{Sender: chat.SenderAssistant, Text: "  "},
	}
	out := BuildTranscriptMarkdown(msgs)
	if strings.Contains(out, "## Assistant") {
		t.Fatalf("expected empty finished answer to be skipped, got:\n%s", out)
	}
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	e.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	session := chat.SessionDescriptor{SessionID: "0f8fad5b-d9cb-469f-a165-70867728950e", Filename: "Q3 report.pdf"}
	path, err := e.Export(session, sampleMessages())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if want := filepath.Join(dir, "Q3_report-0f8fad5b.md"); path != want {
		t.Fatalf("unexpected path: got %s want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	md := string(data)
	for _, want := range []string{
		"# Chat about Q3 report.pdf",
		"Exported: 2025-03-01T12:00:00Z",
		"session: 0f8fad5b-d9cb-469f-a165-70867728950e",
		"message_count: 5",
		"## Assistant",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("export missing %q:\n%s", want, md)
		}
	}
}

func TestOutputPathDefaultsToExportsUnderCwd(t *testing.T) {
	e := &Exporter{cwd: "/work"}
	got := e.outputPath(chat.SessionDescriptor{SessionID: "abc", Filename: "notes.txt"})
	if got != filepath.Join("/work", "exports", "notes-abc.md") {
		t.Fatalf("unexpected default path: %s", got)
	}

	e.overrideDir = "out"
	got = e.outputPath(chat.SessionDescriptor{})
	if got != filepath.Join("/work", "out", "chat.md") {
		t.Fatalf("unexpected relative override path: %s", got)
	}
}
