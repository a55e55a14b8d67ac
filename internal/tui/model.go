// Package tui is the interactive front-end: a bubbletea program that walks
// a core.Session through context edits, scene layouts and chapters.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/export"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A1A1AA"))

	errorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(0, 1)
)

const (
	inputHeight = 3
	// stepGrace bounds how long Run waits for an interrupted step to
	// checkpoint after the program exits.
	stepGrace = 30 * time.Second
)

// Options configure the program.
type Options struct {
	Pipeline *core.Pipeline
	// Checkpoints saves the session after every step; may be nil.
	Checkpoints *core.CheckpointManager
	// Session resumes an existing session. When nil a new one is planned
	// from Request.
	Session *core.Session
	Request core.RunRequest
	// GlamourStyle names a glamour style; empty picks one from the terminal.
	GlamourStyle string
	Logger       *slog.Logger
}

// snapshot is the part of the session the view reads. It is taken only
// while no step is running.
type snapshot struct {
	id        string
	state     core.State
	index     int
	total     int
	done      bool
	canRevise bool
	layout    string
	overview  string
	title     string
}

// Model is the bubbletea model.
type Model struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	session *core.Session
	snap    snapshot

	spinner  spinner.Model
	viewport viewport.Model
	input    textarea.Model
	help     help.Model
	renderer *glamour.TermRenderer

	busy        bool
	status      string
	lastChapter string
	coherence   string
	err         error

	width    int
	ready    bool
	quitting bool

	// steps counts session calls still running off the UI goroutine.
	steps sync.WaitGroup
}

// sessionMsg carries a newly planned session.
type sessionMsg struct {
	session *core.Session
	err     error
}

// stepMsg reports a finished session step.
type stepMsg struct {
	op        string
	chapter   *core.ChapterArtifact
	coherence string
	err       error
}

func New(opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))

	in := textarea.New()
	in.Placeholder = "Revision instruction or scene feedback (optional)"
	in.ShowLineNumbers = false
	in.CharLimit = 4000
	in.SetHeight(inputHeight)
	in.Focus()

	m := &Model{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("component", "tui"),
		session: opts.Session,
		spinner: s,
		input:   in,
		help:    help.New(),
		status:  "Planning the story...",
	}
	if m.session != nil {
		m.refresh()
	}
	return m
}

// Session returns the session being driven, nil until planning finishes.
func (m *Model) Session() *core.Session {
	return m.session
}

func (m *Model) Init() tea.Cmd {
	if m.session != nil {
		return nil
	}
	m.busy = true
	p, req, ctx := m.opts.Pipeline, m.opts.Request, m.ctx
	m.steps.Add(1)
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		defer m.steps.Done()
		s, err := p.NewSession(ctx, req)
		if err == nil {
			m.checkpoint(ctx, s, "start")
		}
		return sessionMsg{session: s, err: err}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) || (m.snap.done && msg.String() == "q") {
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		}
		switch {
		case key.Matches(msg, keys.Up):
			m.viewport.HalfPageUp()
			return m, nil
		case key.Matches(msg, keys.Down):
			m.viewport.HalfPageDown()
			return m, nil
		}
		if m.busy || m.session == nil || m.snap.done {
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Revise):
			return m, m.revise()
		case key.Matches(msg, keys.Layout):
			return m, m.layout()
		case key.Matches(msg, keys.Chapter):
			return m, m.chapter()
		case key.Matches(msg, keys.Coherence):
			return m, m.checkCoherence()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not start the session."
			if core.IsValidationError(msg.err) {
				m.status = "The story request is invalid."
			}
			return m, nil
		}
		m.session = msg.session
		m.refresh()
		return m, nil

	case stepMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.input.Reset()
		}
		if msg.chapter != nil {
			m.lastChapter = msg.chapter.Text
		}
		if msg.coherence != "" {
			m.coherence = msg.coherence
		}
		m.refresh()
		switch {
		case core.IsTransitionError(msg.err):
			m.status = "That step is not available now. " + m.status
		case errors.Is(msg.err, context.Canceled):
			m.status = "Interrupted; the session is saved at its last finished step."
		}
		if msg.chapter != nil {
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) revise() tea.Cmd {
	instruction := strings.TrimSpace(m.input.Value())
	if !m.snap.canRevise {
		m.status = "The story can only be revised once per chapter, before scenes are planned."
		return nil
	}
	if instruction == "" {
		m.status = "Type how the story should change, then press ctrl+r."
		return nil
	}
	return m.step("revise", "Revising the story...", func(ctx context.Context, s *core.Session) stepMsg {
		return stepMsg{err: s.ReviseContext(ctx, instruction)}
	})
}

func (m *Model) layout() tea.Cmd {
	feedback := strings.TrimSpace(m.input.Value())
	status := "Planning scenes..."
	if m.snap.layout != "" {
		if feedback == "" {
			m.status = "Type feedback to revise the scene layout, or press ctrl+g to write the chapter."
			return nil
		}
		status = "Revising scenes..."
	}
	return m.step("layout", status, func(ctx context.Context, s *core.Session) stepMsg {
		return stepMsg{err: s.GenerateSceneLayout(ctx, feedback)}
	})
}

func (m *Model) chapter() tea.Cmd {
	if m.snap.state != core.StateSceneLayoutReady {
		m.status = "Plan the scenes first with ctrl+l."
		return nil
	}
	feedback := strings.TrimSpace(m.input.Value())
	status := fmt.Sprintf("Writing chapter %d of %d...", m.snap.index, m.snap.total)
	return m.step("chapter", status, func(ctx context.Context, s *core.Session) stepMsg {
		ch, err := s.GenerateChapter(ctx, feedback)
		if err != nil {
			return stepMsg{err: err}
		}
		return stepMsg{chapter: &ch}
	})
}

func (m *Model) checkCoherence() tea.Cmd {
	if len(m.session.Chapters) == 0 {
		m.status = "Write a chapter before checking coherence."
		return nil
	}
	return m.step("coherence", "Checking coherence...", func(ctx context.Context, s *core.Session) stepMsg {
		report, needsRevision := s.CheckCoherence(ctx)
		if needsRevision {
			report += "\n\n_Revision suggested._"
		}
		return stepMsg{coherence: report}
	})
}

// step runs fn off the UI goroutine and checkpoints the session afterwards.
// A failed or interrupted step leaves the session at its previous state,
// which is saved as well.
func (m *Model) step(op, status string, fn func(context.Context, *core.Session) stepMsg) tea.Cmd {
	m.busy = true
	m.err = nil
	m.status = status
	ctx, s := m.ctx, m.session
	m.steps.Add(1)
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		defer m.steps.Done()
		msg := fn(ctx, s)
		msg.op = op
		m.checkpoint(ctx, s, op)
		return msg
	})
}

// checkpoint saves s. Quitting cancels ctx while a step may still be
// running, so the save ignores cancellation.
func (m *Model) checkpoint(ctx context.Context, s *core.Session, op string) {
	cp := m.opts.Checkpoints
	if cp == nil {
		return
	}
	if err := cp.Save(context.WithoutCancel(ctx), s); err != nil {
		m.logger.Error("checkpoint failed", "session_id", s.ID, "op", op, "error", err)
	}
}

// wait blocks until running steps have checkpointed or timeout passes.
func (m *Model) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.steps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *Model) refresh() {
	s := m.session
	m.snap = snapshot{
		id:        s.ID,
		state:     s.State,
		index:     s.Current,
		total:     s.Total,
		done:      s.Done(),
		canRevise: s.CanReviseContext(),
		layout:    s.SceneLayout,
		overview:  export.Overview(s.Context),
	}
	if s.Context != nil {
		m.snap.title = s.Context.Title
	}
	if m.snap.done {
		m.input.Blur()
	}
	m.status = m.hint()
	if m.ready {
		m.viewport.SetContent(m.render(m.document()))
	}
}

func (m *Model) hint() string {
	sn := m.snap
	switch {
	case sn.done:
		return fmt.Sprintf("All %d chapters written. Press q to quit.", sn.total)
	case sn.state == core.StateSceneLayoutReady:
		return "Type feedback and press ctrl+l to revise the scenes, or ctrl+g to write the chapter."
	case sn.canRevise:
		return fmt.Sprintf("Chapter %d of %d. Type a revision and press ctrl+r, or ctrl+l to plan the scenes.", sn.index, sn.total)
	}
	return fmt.Sprintf("Chapter %d of %d. Press ctrl+l to plan the scenes.", sn.index, sn.total)
}

// document is the Markdown shown in the viewport.
func (m *Model) document() string {
	var b strings.Builder
	b.WriteString(m.snap.overview)
	if m.snap.layout != "" {
		fmt.Fprintf(&b, "\n## Scene Layout: Chapter %d\n\n%s\n", m.snap.index, m.snap.layout)
	}
	if m.lastChapter != "" {
		fmt.Fprintf(&b, "\n## Latest Chapter\n\n%s\n", m.lastChapter)
	}
	if m.coherence != "" {
		fmt.Fprintf(&b, "\n## Coherence\n\n%s\n", m.coherence)
	}
	return b.String()
}

func (m *Model) render(md string) string {
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		m.logger.Debug("markdown render failed", "error", err)
		return md
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) resize(width, height int) {
	m.width = width
	vpHeight := height - inputHeight - 6
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width)
	m.help.Width = width

	style := glamour.WithAutoStyle()
	if m.opts.GlamourStyle != "" {
		style = glamour.WithStandardStyle(m.opts.GlamourStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(max(width-4, 20)))
	if err != nil {
		m.logger.Debug("markdown renderer unavailable", "error", err)
		r = nil
	}
	m.renderer = r
	if m.session != nil {
		m.viewport.SetContent(m.render(m.document()))
	}
}

func (m *Model) View() string {
	if m.quitting {
		if m.snap.id != "" {
			return fmt.Sprintf("\nSession %s saved. Resume with: storyloom resume -session %s\n", m.snap.id, m.snap.id)
		}
		return "\n"
	}
	if !m.ready || m.session == nil {
		line := fmt.Sprintf("\n%s %s\n", m.spinner.View(), m.status)
		if m.err != nil {
			line += "\n" + errorStyle.Render(m.err.Error()) + "\n"
		}
		return line
	}

	header := "storyloom"
	if m.snap.title != "" {
		header += " · " + m.snap.title
	}
	if !m.snap.done {
		header += fmt.Sprintf(" · chapter %d/%d", m.snap.index, m.snap.total)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header) + "\n")
	b.WriteString(m.viewport.View() + "\n")
	if m.busy {
		b.WriteString(m.spinner.View() + " " + m.status + "\n")
	} else {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	if !m.snap.done {
		b.WriteString(m.input.View() + "\n")
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

// Run starts the program on the terminal and returns the session it drove.
func Run(opts Options) (*core.Session, error) {
	m := New(opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	m.cancel()
	if !m.wait(stepGrace) {
		m.logger.Warn("step still running at exit; last checkpoint kept")
	}
	if err != nil {
		return m.session, fmt.Errorf("running tui: %w", err)
	}
	return m.session, nil
}
