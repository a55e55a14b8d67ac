package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/storage"
)

func newTestModel(t *testing.T, chapters int) (*Model, *core.CheckpointManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agents, err := fiction.NewAgents(agent.NewClient(fiction.NewDryRunBackend(), agent.WithLogger(logger)), fiction.Config{Logger: logger})
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	cp := core.NewCheckpointManager(storage.NewFileSystem(t.TempDir()))
	m := New(Options{
		Pipeline:     core.NewPipeline(agents, core.WithLogger(logger)),
		Checkpoints:  cp,
		Request:      core.RunRequest{Premise: "A lamplighter in a drowned city", Genre: "Fantasy", Chapters: chapters},
		GlamourStyle: "notty",
		Logger:       logger,
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, cp
}

// drain runs cmd and feeds session results back into the model. Timer
// driven messages are dropped.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case sessionMsg, stepMsg:
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func press(t *testing.T, m *Model, k tea.KeyType) {
	t.Helper()
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	drain(t, m, cmd)
}

func TestModelWalksSession(t *testing.T) {
	m, cp := newTestModel(t, 2)
	drain(t, m, m.Init())

	s := m.Session()
	if s == nil {
		t.Fatalf("session not started: %v", m.err)
	}
	if m.snap.state != core.StateAwaitingContextEdit || !m.snap.canRevise {
		t.Fatalf("unexpected start state %+v", m.snap)
	}
	if !strings.Contains(m.View(), "The Lantern Keeper") {
		t.Errorf("view should show the story title")
	}

	m.input.SetValue("Give the Tidewarden a daughter")
	press(t, m, tea.KeyCtrlR)
	if m.err != nil {
		t.Fatalf("revise: %v", m.err)
	}
	if m.snap.canRevise || m.snap.state != core.StateAwaitingSceneLayout {
		t.Errorf("after revise: %+v", m.snap)
	}
	if m.input.Value() != "" {
		t.Errorf("input should be cleared after a step")
	}

	press(t, m, tea.KeyCtrlL)
	if m.snap.state != core.StateSceneLayoutReady || m.snap.layout == "" {
		t.Fatalf("after layout: %+v", m.snap)
	}

	press(t, m, tea.KeyCtrlG)
	if m.snap.index != 2 || !strings.HasPrefix(m.lastChapter, "Chapter 1:") {
		t.Fatalf("after chapter 1: index=%d chapter=%q", m.snap.index, m.lastChapter)
	}

	cpt, err := cp.Load(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cpt.Chapter != 2 {
		t.Errorf("checkpoint chapter = %d, want 2", cpt.Chapter)
	}

	press(t, m, tea.KeyCtrlL)
	press(t, m, tea.KeyCtrlG)
	if !m.snap.done {
		t.Fatalf("session should be done: %+v", m.snap)
	}
	if !strings.Contains(m.status, "All 2 chapters written") {
		t.Errorf("status = %q", m.status)
	}

	press(t, m, tea.KeyCtrlK)
	if m.coherence != "" {
		t.Errorf("no steps should run once the session is done")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !m.quitting {
		t.Errorf("q should quit a finished session")
	}
	if !strings.Contains(m.View(), s.ID) {
		t.Errorf("quit view should name the session")
	}
}

func TestModelGuardsOutOfOrderKeys(t *testing.T) {
	m, _ := newTestModel(t, 1)
	drain(t, m, m.Init())

	press(t, m, tea.KeyCtrlG)
	if !strings.Contains(m.status, "Plan the scenes first") {
		t.Errorf("status = %q", m.status)
	}

	press(t, m, tea.KeyCtrlR)
	if !strings.Contains(m.status, "Type how the story should change") {
		t.Errorf("status = %q", m.status)
	}

	press(t, m, tea.KeyCtrlL)
	first := m.snap.layout
	press(t, m, tea.KeyCtrlL)
	if m.snap.layout != first || !strings.Contains(m.status, "Type feedback") {
		t.Errorf("empty feedback should leave the layout alone: %q", m.status)
	}

	press(t, m, tea.KeyCtrlK)
	if !strings.Contains(m.status, "Write a chapter before") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModelResumesSession(t *testing.T) {
	m, cp := newTestModel(t, 2)
	drain(t, m, m.Init())
	press(t, m, tea.KeyCtrlL)

	restored, err := cp.Restore(context.Background(), m.Session().ID, m.opts.Pipeline)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	resumed := New(Options{Pipeline: m.opts.Pipeline, Session: restored, GlamourStyle: "notty"})
	if cmd := resumed.Init(); cmd != nil {
		t.Errorf("resumed model should not plan a new story")
	}
	if resumed.snap.state != core.StateSceneLayoutReady || resumed.snap.layout == "" {
		t.Errorf("resumed snapshot = %+v", resumed.snap)
	}
}

func TestModelStartFailure(t *testing.T) {
	m, _ := newTestModel(t, 0)
	drain(t, m, m.Init())
	if m.Session() != nil || m.err == nil {
		t.Fatalf("invalid request should fail to start")
	}
	if m.status != "The story request is invalid." {
		t.Errorf("status = %q", m.status)
	}
	if !strings.Contains(m.View(), "Chapters") {
		t.Errorf("view should show the validation error: %q", m.View())
	}
}

func TestModelCheckpointsInterruptedStep(t *testing.T) {
	m, cp := newTestModel(t, 2)
	drain(t, m, m.Init())
	press(t, m, tea.KeyCtrlL)
	id := m.Session().ID

	before, err := cp.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("checkpoint after layout: %v", err)
	}

	// quitting cancels the model context while the chapter step runs
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	m.cancel()
	drain(t, m, cmd)
	if !m.wait(time.Second) {
		t.Fatal("step did not finish")
	}

	if !errors.Is(m.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", m.err)
	}
	if !strings.HasPrefix(m.status, "Interrupted") {
		t.Errorf("status = %q", m.status)
	}
	s := m.Session()
	if s.State != core.StateSceneLayoutReady || len(s.Chapters) != 0 || s.Summary != nil {
		t.Errorf("interrupted chapter changed the session: state=%s chapters=%d", s.State, len(s.Chapters))
	}

	after, err := cp.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("checkpoint after interruption: %v", err)
	}
	if !after.Timestamp.After(before.Timestamp) {
		t.Errorf("checkpoint was not rewritten after the interrupted step")
	}
	if after.State != core.StateSceneLayoutReady || after.Chapter != 1 {
		t.Errorf("checkpoint = %s chapter %d", after.State, after.Chapter)
	}
}

func TestModelRejectedStepKeepsInput(t *testing.T) {
	m, _ := newTestModel(t, 1)
	drain(t, m, m.Init())
	m.input.SetValue("a change")

	// drive a step the session will refuse
	cmd := m.step("revise", "Revising...", func(ctx context.Context, s *core.Session) stepMsg {
		if err := s.SkipContextEdit(ctx); err != nil {
			return stepMsg{err: err}
		}
		return stepMsg{err: s.SkipContextEdit(ctx)}
	})
	drain(t, m, cmd)

	if !core.IsTransitionError(m.err) {
		t.Fatalf("err = %v, want a transition error", m.err)
	}
	if !strings.HasPrefix(m.status, "That step is not available now.") {
		t.Errorf("status = %q", m.status)
	}
	if m.input.Value() != "a change" {
		t.Errorf("input should be kept after a rejected step")
	}
}
