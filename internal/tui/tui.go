package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/changepipe/internal/app"
	"github.com/sokinpui/changepipe/internal/highlight"
	"github.com/sokinpui/changepipe/internal/tokens"
	"github.com/sokinpui/changepipe/model"
	"github.com/sokinpui/changepipe/pipeline"
)

// --- Styles ---
var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	pathStyle     = lipgloss.NewStyle()
	faintStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	diffBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	// Lines taken by everything except the diff viewport.
	chromeLines = 8
)

// --- Messages ---
type inputMsg struct{ app.Input }

type chunkMsg struct {
	text string
	ok   bool
}

type proposalMsg struct{ pipeline.Proposal }

type acceptedMsg struct {
	path string
	err  error
}

type batchMsg struct {
	summary model.Summary
	err     error
}

type previewMsg struct {
	path string
	err  error
}

type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

func (e errorMsg) Unwrap() error { return e.err }

// ProgressMsg reports how many changes of a batch have been written.
type ProgressMsg struct {
	Done, Total int
}

// --- Keys ---
type keyMap struct {
	Up, Down, Accept, Reject, AcceptAll, RejectAll, Preview, Quit key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Accept:    key.NewBinding(key.WithKeys("a", "enter"), key.WithHelp("a", "accept")),
	Reject:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reject")),
	AcceptAll: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "accept all")),
	RejectAll: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reject all")),
	Preview:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) help() string {
	parts := make([]string, 0, 8)
	for _, b := range []key.Binding{k.Down, k.Up, k.Accept, k.Reject, k.AcceptAll, k.RejectAll, k.Preview, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}

// --- Model ---
type Model struct {
	app      *app.App
	ctx      context.Context
	spinner  spinner.Model
	viewport viewport.Model
	state    state
	animate  bool

	chunks   <-chan string
	thinking bool
	streamed string
	trace    model.ThinkingOutput
	tokens   int

	changes  []model.FileChange
	warnings []string
	cursor   int
	status   string
	progress ProgressMsg
	quitting bool

	summary summaryMsg
	err     error
}

type state int

const (
	stateLoading state = iota
	stateStreaming
	stateReview
	stateApplying
	stateSummary
	stateError
)

func New(ctx context.Context, a *app.App) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		app:      a,
		ctx:      ctx,
		spinner:  s,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeLines),
		state:    stateLoading,
		animate:  !a.Config().NoAnimation,
	}
}

func (m Model) Init() tea.Cmd {
	if !m.animate {
		return m.openInput
	}
	return tea.Batch(m.spinner.Tick, m.openInput)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = max(msg.Height-chromeLines-len(m.changes)-len(m.warnings), 3)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case inputMsg:
		if msg.Chunks == nil {
			return m, m.propose(msg.Content)
		}
		m.state = stateStreaming
		m.chunks, m.thinking = msg.Chunks, msg.Thinking
		return m, m.waitForChunk

	case chunkMsg:
		return m.handleChunk(msg)

	case proposalMsg:
		m.changes = msg.Changes
		m.warnings = msg.Warnings
		if len(m.changes) == 0 {
			return m.finish(model.Summary{Message: "No valid changes were generated. Nothing to do."})
		}
		m.state = stateReview
		m.refresh()
		return m, nil

	case ProgressMsg:
		m.progress = msg
		return m, nil

	case acceptedMsg:
		m.state = stateReview
		m.refresh()
		if m.quitting {
			return m.finish(m.app.Summary())
		}
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = successStyle.Render("Wrote " + msg.path)
		}
		return m.finishIfDecided()

	case batchMsg:
		m.state = stateReview
		m.refresh()
		if m.quitting {
			return m.finish(m.app.Summary())
		}
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = successStyle.Render(fmt.Sprintf("Wrote %d file(s)", len(msg.summary.Created)+len(msg.summary.Modified)))
		}
		return m.finishIfDecided()

	case previewMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = faintStyle.Render("Previewing " + msg.path)
		}
		return m, nil

	case summaryMsg:
		return m.finish(msg.Summary)

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.busy() && m.animate {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
}

func (m Model) busy() bool {
	return m.state == stateLoading || m.state == stateStreaming || m.state == stateApplying
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		if m.state == stateApplying {
			// The running write finishes; no new batch starts.
			m.app.Session().Orchestrator().Stop()
			m.quitting = true
			m.status = warningStyle.Render("Quitting after the current write...")
			return m, nil
		}
		if m.state == stateReview {
			return m.finish(m.app.Summary())
		}
		return m, tea.Quit
	}
	if m.state != stateReview {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.showDiff()
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.changes)-1 {
			m.cursor++
			m.showDiff()
		}
	case key.Matches(msg, keys.Accept):
		if c, ok := m.selected(); ok && c.IsPending() {
			// Keys stay locked until the write reports back.
			m.state = stateApplying
			m.progress = ProgressMsg{Total: 1}
			m.status = ""
			cmd := m.accept(c)
			if m.animate {
				cmd = tea.Batch(m.spinner.Tick, cmd)
			}
			return m, cmd
		}
	case key.Matches(msg, keys.Reject):
		if c, ok := m.selected(); ok && m.app.Session().Orchestrator().Reject(c.ID) {
			m.refresh()
			m.status = warningStyle.Render("Rejected " + c.FilePath)
			return m.finishIfDecided()
		}
	case key.Matches(msg, keys.AcceptAll):
		m.state = stateApplying
		m.progress = ProgressMsg{}
		m.status = ""
		return m, tea.Batch(m.spinner.Tick, m.acceptAll)
	case key.Matches(msg, keys.RejectAll):
		n := m.app.Session().Orchestrator().RejectAll()
		m.refresh()
		m.status = warningStyle.Render(fmt.Sprintf("Rejected %d file(s)", n))
		return m.finishIfDecided()
	case key.Matches(msg, keys.Preview):
		if c, ok := m.selected(); ok {
			return m, m.preview(c)
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleChunk(msg chunkMsg) (tea.Model, tea.Cmd) {
	if msg.ok {
		if m.thinking {
			m.trace = m.app.Session().Ingest(msg.text)
			m.tokens = tokens.EstimateSimple(m.app.Session().Ingestor().Buffer())
		} else {
			m.streamed += msg.text
			m.tokens = tokens.EstimateSimple(m.streamed)
		}
		return m, m.waitForChunk
	}

	markdown := m.streamed
	if m.thinking {
		m.trace = m.app.Session().FinishStream()
		markdown = m.trace.FinalAnswer
	}
	m.state = stateLoading
	return m, m.propose(markdown)
}

func (m Model) finish(s model.Summary) (tea.Model, tea.Cmd) {
	m.state = stateSummary
	m.summary = summaryMsg{Summary: s}
	return m, tea.Quit
}

func (m Model) finishIfDecided() (tea.Model, tea.Cmd) {
	if pending, _, _ := m.app.Session().Changes().Counts(); pending > 0 {
		return m, nil
	}
	return m.finish(m.app.Summary())
}

func (m *Model) refresh() {
	m.changes = m.app.Session().Changes().List()
	if m.cursor >= len(m.changes) {
		m.cursor = max(len(m.changes)-1, 0)
	}
	m.showDiff()
}

func (m *Model) selected() (model.FileChange, bool) {
	if m.cursor < 0 || m.cursor >= len(m.changes) {
		return model.FileChange{}, false
	}
	return m.changes[m.cursor], true
}

func (m *Model) showDiff() {
	c, ok := m.selected()
	if !ok {
		m.viewport.SetContent("")
		return
	}
	lines, _ := m.app.Session().Diff(c.ID)
	h := highlight.New(c.Language, c.FilePath, m.app.Config().HighlightStyle)
	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = gutterStyle(l.Kind).Render(highlight.Gutter(l.Kind)) + h.Line(l.Text)
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoTop()
}

func gutterStyle(kind model.DiffKind) lipgloss.Style {
	switch kind {
	case model.DiffAdded:
		return successStyle
	case model.DiffRemoved:
		return errorStyle
	default:
		return faintStyle
	}
}

// --- Commands ---

func (m Model) openInput() tea.Msg {
	in, err := m.app.Open(m.ctx)
	if err != nil {
		return errorMsg{err}
	}
	return inputMsg{in}
}

func (m Model) waitForChunk() tea.Msg {
	select {
	case <-m.ctx.Done():
		return chunkMsg{}
	case text, ok := <-m.chunks:
		return chunkMsg{text: text, ok: ok}
	}
}

func (m Model) propose(markdown string) tea.Cmd {
	return func() tea.Msg {
		if strings.TrimSpace(markdown) == "" {
			return summaryMsg{model.Summary{Message: "Source is empty. Nothing to process."}}
		}
		return proposalMsg{m.app.Session().Propose(m.ctx, markdown)}
	}
}

func (m Model) accept(c model.FileChange) tea.Cmd {
	return func() tea.Msg {
		_, err := m.app.Session().Orchestrator().Accept(m.ctx, c.ID)
		m.app.Sync()
		return acceptedMsg{path: c.FilePath, err: err}
	}
}

func (m Model) acceptAll() tea.Msg {
	orch := m.app.Session().Orchestrator()
	orch.Resume()
	summary, err := m.app.AcceptAll(m.ctx)
	return batchMsg{summary: summary, err: err}
}

func (m Model) preview(c model.FileChange) tea.Cmd {
	return func() tea.Msg {
		err := m.app.Session().Orchestrator().Preview(m.ctx, c.ID)
		return previewMsg{path: c.FilePath, err: err}
	}
}

// --- Views ---

func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return m.spin("Processing...")
	case stateStreaming:
		return m.renderStream()
	case stateReview, stateApplying:
		return m.renderReview()
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m Model) spin(label string) string {
	if !m.animate {
		return label
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), label)
}

func (m Model) renderStream() string {
	var b strings.Builder
	if !m.thinking {
		b.WriteString(m.spin("Receiving response... " + faintStyle.Render(tokens.Format(m.tokens))))
		return b.String()
	}

	title := m.trace.UI.Title
	if title == "" {
		title = "Thinking"
	}
	b.WriteString(m.spin(headerStyle.Render(title)))
	b.WriteString(faintStyle.Render(fmt.Sprintf("  %s  %s", m.trace.UI.Mode, tokens.Format(m.tokens))))
	if m.trace.UI.Model != "" {
		b.WriteString(faintStyle.Render("  " + m.trace.UI.Model))
	}
	b.WriteString("\n")
	for _, ev := range m.trace.Trace {
		b.WriteString(fmt.Sprintf("  %s %s\n", traceIcon(ev.Status), ev.Label))
	}
	if n := len(m.trace.ThoughtSummary); n > 0 {
		b.WriteString(faintStyle.Render("  " + m.trace.ThoughtSummary[n-1]))
		b.WriteString("\n")
	}
	return b.String()
}

func traceIcon(s model.TraceStatus) string {
	switch s {
	case model.TraceOK:
		return successStyle.Render("✓")
	case model.TraceWarn:
		return warningStyle.Render("!")
	case model.TraceFail:
		return errorStyle.Render("✗")
	default:
		return faintStyle.Render("…")
	}
}

func (m Model) renderReview() string {
	var b strings.Builder
	pending, accepted, rejected := m.app.Session().Changes().Counts()
	b.WriteString(headerStyle.Render("Proposed changes"))
	b.WriteString(faintStyle.Render(fmt.Sprintf("  %d pending  %d accepted  %d rejected", pending, accepted, rejected)))
	b.WriteString("\n")
	for _, w := range m.warnings {
		b.WriteString(warningStyle.Render("! "+w) + "\n")
	}

	for i, c := range m.changes {
		cursor := "  "
		path := pathStyle.Render(c.FilePath)
		if i == m.cursor {
			cursor = selectedStyle.Render("> ")
			path = selectedStyle.Render(c.FilePath)
		}
		tag := ""
		if c.IsNewFile {
			tag = faintStyle.Render(" (new)")
		}
		stats := successStyle.Render(fmt.Sprintf("+%d", c.Additions)) + " " + errorStyle.Render(fmt.Sprintf("-%d", c.Deletions))
		b.WriteString(fmt.Sprintf("%s%s %s%s %s\n", cursor, statusIcon(c.Status), path, tag, stats))
	}

	b.WriteString(diffBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")

	if m.state == stateApplying {
		b.WriteString(m.spin(fmt.Sprintf("Writing %d/%d...", m.progress.Done, m.progress.Total)))
	} else {
		b.WriteString(faintStyle.Render(keys.help()))
	}
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	return b.String()
}

func statusIcon(s model.Status) string {
	switch s {
	case model.StatusAccepted:
		return successStyle.Render("✓")
	case model.StatusRejected:
		return errorStyle.Render("✗")
	default:
		return faintStyle.Render("•")
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	section := func(title string, style lipgloss.Style, paths []string) {
		if len(paths) == 0 {
			return
		}
		hasContent = true
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range paths {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section("Created:", successStyle, m.summary.Created)
	section("Modified:", successStyle, m.summary.Modified)
	section("Rejected:", warningStyle, m.summary.Rejected)
	section("Failed:", errorStyle, m.summary.Failed)

	if !hasContent && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}

// Err returns the error that ended the program, if any.
func (m Model) Err() error { return m.err }

// PrintStack writes the stack trace of an internal panic to stderr.
func PrintStack(err error) {
	var detailed *app.DetailedError
	if errors.As(err, &detailed) {
		// The TUI has exited, so the trace goes straight to stderr.
		fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
	}
}
