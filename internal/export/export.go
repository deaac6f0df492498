package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc-chat/internal/chat"
)

type Exporter struct {
	overrideDir string
	cwd         string
	now         func() time.Time
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{
		overrideDir: strings.TrimSpace(overrideDir),
		cwd:         cwd,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *Exporter) Export(session chat.SessionDescriptor, messages []chat.Message) (string, error) {
	path := e.outputPath(session)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(messages)
	md := BuildSessionMarkdown(session, body, len(messages), e.now())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

func BuildTranscriptMarkdown(messages []chat.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Text)
		switch m.Sender {
		case chat.SenderSystem:
			if content == "" {
				continue
			}
			for _, line := range strings.Split(content, "\n") {
				b.WriteString("> " + line + "\n")
			}
			b.WriteString("\n")
		case chat.SenderUser:
			if content == "" {
				continue
			}
			b.WriteString("## You\n\n")
			b.WriteString(content + "\n\n")
		case chat.SenderAssistant:
			if content == "" && !m.Streaming {
				continue
			}
			b.WriteString("## Assistant\n\n")
			if content != "" {
				b.WriteString(content + "\n\n")
			}
			if m.Streaming {
				b.WriteString("_(incomplete)_\n\n")
			}
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func BuildSessionMarkdown(session chat.SessionDescriptor, transcript string, count int, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Chat about " + safeValue(session.Filename) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("document: " + safeValue(session.Filename) + "\n")
	b.WriteString("session: " + safeValue(session.SessionID) + "\n")
	b.WriteString(fmt.Sprintf("message_count: %d\n", count))
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(session chat.SessionDescriptor) string {
	dir := filepath.Join(e.cwd, "exports")
	if e.overrideDir != "" {
		dir = e.overrideDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.cwd, dir)
		}
	}
	return filepath.Join(dir, fileStem(session)+".md")
}

func fileStem(session chat.SessionDescriptor) string {
	name := strings.TrimSuffix(filepath.Base(session.Filename), filepath.Ext(session.Filename))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	id := session.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	switch {
	case name != "" && id != "":
		return safeFileName(name + "-" + id)
	case id != "":
		return safeFileName(id)
	default:
		return safeFileName(name)
	}
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "chat"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
