package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc-chat/internal/chat"
	"doc-chat/internal/clipboard"
	"doc-chat/internal/config"
	"doc-chat/internal/export"
	"doc-chat/internal/highlight"
	"doc-chat/internal/upload"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	eventBuffer   = 256
	uploadTimeout = 5 * time.Minute
	copyTimeout   = 3 * time.Second
)

// Uploader turns a local document into a chat session.
type Uploader interface {
	Validate(path string) (os.FileInfo, error)
	Upload(ctx context.Context, path string) (chat.SessionDescriptor, error)
}

type Deps struct {
	Uploader Uploader
	Dialer   chat.Dialer
	Exporter *export.Exporter
	Logger   *slog.Logger
}

type screen int

const (
	screenUpload screen = iota
	screenChat
)

type Model struct {
	cfg      config.AppConfig
	uploader Uploader
	exporter *export.Exporter
	logger   *slog.Logger

	ctrl   *chat.Controller
	events chan chat.Event

	path     textinput.Model
	input    textinput.Model
	search   textinput.Model
	viewport viewport.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap
	md       *markdownCache

	width  int
	height int

	screen      screen
	uploading   bool
	uploadErr   string
	searchMode  bool
	searchQuery string
	matchLines  []int
	matchCount  int
	matchIndex  int

	status string
}

type uploadMsg struct {
	session chat.SessionDescriptor
	err     error
}
type transportMsg struct {
	event chat.Event
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	err error
}

func NewModel(cfg config.AppConfig, deps Deps) Model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	events := make(chan chat.Event, eventBuffer)
	ctrl := chat.NewController(deps.Dialer, func(ev chat.Event) {
		events <- ev
	}, chat.WithLogger(logger))

	path := textinput.New()
	path.Placeholder = "path/to/document.pdf"
	path.Prompt = "file: "
	path.CharLimit = 4096
	path.Focus()

	input := textinput.New()
	input.Placeholder = "Ask a question about your document..."
	input.Prompt = "> "
	input.CharLimit = 4000

	search := textinput.New()
	search.Placeholder = "Search transcript..."
	search.Prompt = "/ "
	search.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.Points

	h := help.New()
	h.ShowAll = false

	style := cfg.GlamourStyle
	if style == "" {
		style = config.DefaultGlamourStyle
	}

	m := Model{
		cfg:        cfg,
		uploader:   deps.Uploader,
		exporter:   deps.Exporter,
		logger:     logger,
		ctrl:       ctrl,
		events:     events,
		path:       path,
		input:      input,
		search:     search,
		viewport:   viewport.New(60, 20),
		help:       h,
		spinner:    sp,
		keys:       defaultKeys(),
		md:         newMarkdownCache(style),
		matchIndex: -1,
	}

	if file := strings.TrimSpace(cfg.File); file != "" {
		m.path.SetValue(file)
		if _, err := m.uploader.Validate(expandHome(file)); err != nil {
			m.uploadErr = err.Error()
		} else {
			m.uploading = true
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForEvent()}
	if m.uploading {
		cmds = append(cmds, m.spinner.Tick, m.uploadCmd(expandHome(strings.TrimSpace(m.cfg.File))))
	}
	return tea.Batch(cmds...)
}

// Controller exposes the conversation state, mainly for tests and callers
// that wrap the model.
func (m Model) Controller() *chat.Controller {
	return m.ctrl
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return transportMsg{event: <-events}
	}
}

func (m Model) uploadCmd(path string) tea.Cmd {
	uploader := m.uploader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		session, err := uploader.Upload(ctx, path)
		return uploadMsg{session: session, err: err}
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	exp := m.exporter
	session := m.ctrl.Session()
	msgs := m.ctrl.Messages()
	return func() tea.Msg {
		path, err := exp.Export(session, msgs)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	text, _ := m.ctrl.LastAnswer()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), copyTimeout)
		defer cancel()
		return copyMsg{err: clipboard.Copy(ctx, text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()

	case uploadMsg:
		m.uploading = false
		if msg.err != nil {
			m.logger.Warn("upload failed", "error", msg.err)
			m.uploadErr = msg.err.Error()
			break
		}
		cmds = append(cmds, m.startSession(msg.session))

	case transportMsg:
		wasPending := m.ctrl.Pending()
		m.ctrl.Apply(msg.event)
		m.refreshTranscript()
		cmds = append(cmds, m.waitForEvent())
		if wasPending && !m.ctrl.Pending() && m.screen == screenChat && !m.searchMode {
			cmds = append(cmds, m.input.Focus())
		}

	case exportMsg:
		if msg.err != nil {
			m.logger.Warn("export failed", "error", msg.err)
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		switch {
		case msg.err == nil:
			m.status = "Copied last answer to clipboard"
		case errors.Is(msg.err, clipboard.ErrEmpty):
			m.status = "No finished answer to copy"
		case errors.Is(msg.err, clipboard.ErrUnavailable):
			m.status = "Could not copy: clipboard tool not found"
		default:
			m.status = "Could not copy: " + msg.err.Error()
		}

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.ctrl.Close()
			return m, tea.Quit
		}
		if m.screen == screenUpload {
			return m.updateUpload(msg)
		}
		return m.updateChat(msg)
	}

	var cmd tea.Cmd
	switch {
	case m.screen == screenUpload:
		m.path, cmd = m.path.Update(msg)
	case m.searchMode:
		m.search, cmd = m.search.Update(msg)
	default:
		m.input, cmd = m.input.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Upload):
		if m.uploading {
			return m, nil
		}
		path := expandHome(strings.TrimSpace(m.path.Value()))
		if _, err := m.uploader.Validate(path); err != nil {
			m.uploadErr = err.Error()
			return m, nil
		}
		m.uploading = true
		m.uploadErr = ""
		return m, tea.Batch(m.spinner.Tick, m.uploadCmd(path))

	case key.Matches(msg, m.keys.Back):
		if m.uploading || m.ctrl.Session().SessionID == "" {
			return m, nil
		}
		m.screen = screenChat
		m.uploadErr = ""
		m.path.Blur()
		m.refreshTranscript()
		cmd := m.focusInput()
		return m, cmd
	}

	if m.uploading {
		return m, nil
	}
	before := m.path.Value()
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	if m.path.Value() != before {
		m.uploadErr = ""
	}
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchMode {
		return m.updateSearch(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		cmd := m.submit()
		return m, cmd
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.input.Blur()
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.NextMatch):
		m.jumpToMatch(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevMatch):
		m.jumpToMatch(-1)
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Copy):
		return m, m.copyCmd()
	case key.Matches(msg, m.keys.NewDocument):
		m.screen = screenUpload
		m.input.Blur()
		m.uploadErr = ""
		m.path.SetValue("")
		cmd := m.path.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Back):
		if m.searchQuery != "" {
			m.searchQuery = ""
			m.refreshTranscript()
		}
		return m, nil
	}

	if !m.inputOpen() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.searchQuery = ""
		m.search.SetValue("")
		m.search.Blur()
		m.refreshTranscript()
		cmd := m.focusInput()
		return m, cmd
	case "enter":
		m.searchMode = false
		m.search.Blur()
		m.searchQuery = strings.TrimSpace(m.search.Value())
		m.refreshTranscript()
		if m.searchQuery != "" {
			m.jumpToMatch(0)
		}
		cmd := m.focusInput()
		return m, cmd
	}

	before := strings.TrimSpace(m.search.Value())
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := strings.TrimSpace(m.search.Value()); after != before {
		m.searchQuery = after
		m.refreshTranscript()
	}
	return m, cmd
}

// inputOpen is the input gate: nothing can be typed or sent while a query
// is in flight.
func (m Model) inputOpen() bool {
	return !m.ctrl.Pending()
}

func (m Model) busy() bool {
	return m.uploading || m.ctrl.Pending()
}

func (m *Model) focusInput() tea.Cmd {
	if m.screen != screenChat || !m.inputOpen() {
		return nil
	}
	return m.input.Focus()
}

func (m *Model) submit() tea.Cmd {
	if !m.inputOpen() {
		return nil
	}
	if !m.ctrl.Submit(m.input.Value()) {
		return nil
	}
	m.input.Reset()
	m.input.Blur()
	m.status = ""
	m.refreshTranscript()
	return m.spinner.Tick
}

func (m *Model) startSession(session chat.SessionDescriptor) tea.Cmd {
	m.ctrl.Initialize(session)
	m.md.reset()
	m.screen = screenChat
	m.uploadErr = ""
	m.searchMode = false
	m.searchQuery = ""
	m.clearMatches()
	m.status = "Uploaded " + session.Filename
	if session.ChunkCount > 0 {
		m.status += fmt.Sprintf(" (%d chunks)", session.ChunkCount)
	}
	m.path.Blur()
	m.input.Reset()
	m.refreshTranscript()
	return m.input.Focus()
}

func (m *Model) refreshTranscript() {
	if m.ctrl.Session().SessionID == "" {
		return
	}
	width := m.viewport.Width
	if width < 20 {
		width = 20
	}
	content := renderTranscript(m.ctrl.Messages(), width, m.md)

	query := strings.TrimSpace(m.searchQuery)
	if query == "" {
		m.clearMatches()
		m.viewport.SetContent(content)
		m.viewport.GotoBottom()
		return
	}

	res := highlight.Apply(content, query, func(s string) string {
		return searchMatchStyle.Render(s)
	})
	m.setMatchMeta(res)
	m.viewport.SetContent(res.Text)
	m.viewport.SetYOffset(m.clampViewportOffset(m.viewport.YOffset))
}

func (m *Model) setMatchMeta(res highlight.Result) {
	if res.Count == 0 || len(res.LineIndex) == 0 {
		m.clearMatches()
		return
	}
	m.matchCount = res.Count
	m.matchLines = append(m.matchLines[:0], res.LineIndex...)
	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	}
}

func (m *Model) clearMatches() {
	m.matchLines = nil
	m.matchCount = 0
	m.matchIndex = -1
}

func (m *Model) jumpToMatch(delta int) {
	if len(m.matchLines) == 0 {
		m.status = "No search matches in transcript"
		return
	}

	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	} else if delta > 0 {
		m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	} else if delta < 0 {
		m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	}

	line := m.matchLines[m.matchIndex]
	m.viewport.SetYOffset(m.clampViewportOffset(line))
	m.status = fmt.Sprintf("Match %d/%d", m.matchIndex+1, m.matchCount)
}

func (m *Model) clampViewportOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	// header, status, error, input and help lines plus the panel border.
	bodyHeight := m.height - 7
	if bodyHeight < 5 {
		bodyHeight = 5
	}
	m.viewport.Width = m.width - 4
	m.viewport.Height = bodyHeight
	if m.viewport.Width < 20 {
		m.viewport.Width = 20
	}

	inputWidth := m.width - 20
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.search.Width = inputWidth
	m.path.Width = inputWidth
	m.help.Width = m.width
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	if m.screen == screenUpload {
		return m.uploadView()
	}
	return m.chatView()
}

func (m Model) uploadView() string {
	lines := []string{
		titleStyle.Render("Upload a Document"),
		"Upload a PDF or text file to start asking questions about it.",
		mutedStyle.Render("Maximum file size: " + upload.FormatSize(m.uploadLimit())),
		"",
		m.path.View(),
	}
	if m.uploading {
		lines = append(lines, m.spinner.View()+" Uploading...")
	}
	if m.uploadErr != "" {
		lines = append(lines, errorStyle.Render(m.uploadErr))
	}
	bindings := []key.Binding{m.keys.Upload, m.keys.Quit}
	if m.ctrl.Session().SessionID != "" {
		bindings = []key.Binding{m.keys.Upload, m.keys.Back, m.keys.Quit}
	}
	lines = append(lines, "", m.help.ShortHelpView(bindings))
	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) chatView() string {
	session := m.ctrl.Session()
	header := titleStyle.Render("Chat with your document: " + session.Filename)
	body := panelStyle(!m.searchMode).Width(m.width - 2).Render(m.viewport.View())

	errLine := ""
	if e := m.ctrl.LastError(); e != "" {
		errLine = errorStyle.Render("Error: " + e)
	}

	var inputLine string
	switch {
	case m.searchMode:
		inputLine = m.search.View()
	case m.ctrl.Pending():
		inputLine = m.input.View() + "  " + m.spinner.View() + " Thinking..."
	default:
		inputLine = m.input.View() + "  " + mutedStyle.Render("enter: Send")
	}

	helpView := m.help.View(m.keys)
	if m.searchQuery != "" && !m.searchMode {
		helpView = "search: " + m.searchQuery + "  " + helpView
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.statusLine(),
		body,
		errLine,
		inputLine,
		helpView,
	)
}

func (m Model) statusLine() string {
	s := m.ctrl.Session()
	status := fmt.Sprintf(
		"session=%s  document=%s  messages=%d",
		shorten(s.SessionID, 18),
		shorten(s.Filename, 32),
		len(m.ctrl.Messages()),
	)
	if m.ctrl.Pending() {
		status += "  [streaming]"
	}
	if m.searchQuery != "" || m.searchMode {
		status += "  [search]"
		if strings.TrimSpace(m.searchQuery) != "" {
			if m.matchCount > 0 {
				cur := m.matchIndex + 1
				if cur < 1 {
					cur = 1
				}
				status += fmt.Sprintf("  [match %d/%d]", cur, m.matchCount)
			} else {
				status += "  [match 0]"
			}
		}
	}
	if strings.TrimSpace(m.status) != "" {
		status += "  " + shorten(strings.TrimSpace(m.status), 80)
	}
	return statusStyle.Render(status)
}

func (m Model) uploadLimit() int64 {
	if m.cfg.UploadLimit > 0 {
		return m.cfg.UploadLimit
	}
	return upload.DefaultMaxBytes
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// shorten cuts s to at most n terminal cells without splitting a rune.
func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	if ansi.StringWidth(s) <= n {
		return s
	}
	if n <= 3 {
		return ansi.Truncate(s, n, "")
	}
	return ansi.Truncate(s, n, "...")
}
