package ui

import (
	"strings"

	"doc-chat/internal/chat"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const streamCursor = "▍"

// markdownCache renders finished assistant answers once per width. Streaming
// text is never cached since it still changes.
type markdownCache struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	rendered map[string]string
}

func newMarkdownCache(style string) *markdownCache {
	return &markdownCache{style: style, rendered: map[string]string{}}
}

func (c *markdownCache) reset() {
	c.renderer = nil
	c.rendered = map[string]string{}
}

func (c *markdownCache) render(id, text string, width int) string {
	if width != c.width {
		c.width = width
		c.reset()
	}
	if out, ok := c.rendered[id]; ok {
		return out
	}
	if c.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(c.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return lipgloss.NewStyle().Width(width).Render(text)
		}
		c.renderer = r
	}
	out, err := c.renderer.Render(text)
	if err != nil {
		out = lipgloss.NewStyle().Width(width).Render(text)
	}
	out = strings.Trim(out, "\n")
	c.rendered[id] = out
	return out
}

func renderTranscript(msgs []chat.Message, width int, md *markdownCache) string {
	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, renderMessage(msg, width, md))
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(msg chat.Message, width int, md *markdownCache) string {
	body := lipgloss.NewStyle().Width(width)
	switch msg.Sender {
	case chat.SenderSystem:
		return systemStyle.Width(width).Render(msg.Text)
	case chat.SenderUser:
		return userLabelStyle.Render("You") + "\n" + body.Render(msg.Text)
	default:
		label := assistantLabelStyle.Render("Assistant")
		if msg.Streaming {
			return label + "\n" + body.Render(msg.Text+streamCursor)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return label + "\n" + mutedStyle.Render("(no answer)")
		}
		return label + "\n" + md.render(msg.ID, msg.Text, width)
	}
}
