package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// State is a step of the interactive per-chapter cycle.
type State string

const (
	StateAwaitingContextEdit       State = "awaiting_context_edit"
	StateAwaitingSceneLayout       State = "awaiting_scene_layout"
	StateSceneLayoutReady          State = "scene_layout_ready"
	StateAwaitingChapterGeneration State = "awaiting_chapter_generation"
	StateChapterComplete           State = "chapter_complete"
)

// Session is the interactive state machine. All state lives in the struct
// so it can be checkpointed and restored; it is not shared between
// goroutines without its own lock.
type Session struct {
	ID              string         `json:"id"`
	Request         RunRequest     `json:"request"`
	State           State          `json:"state"`
	Context         *story.Context `json:"context"`
	Chapters        []string       `json:"chapters"`
	Summary         *string        `json:"summary,omitempty"`
	Current         int            `json:"current"`
	Total           int            `json:"total"`
	SceneLayout     string         `json:"scene_layout,omitempty"`
	ContextModified bool           `json:"context_modified"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	mu       sync.Mutex
	pipeline *Pipeline
	words    *fiction.WordTracker
}

// NewSession validates req, plans the story and returns a session waiting
// on the optional context edit for chapter 1.
func (p *Pipeline) NewSession(ctx context.Context, req RunRequest) (*Session, error) {
	req = req.Normalized()
	if err := p.validator.Validate(req); err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Request:   req,
		State:     StateAwaitingContextEdit,
		Chapters:  []string{},
		Current:   1,
		Total:     req.Chapters,
		CreatedAt: now,
		UpdatedAt: now,
		pipeline:  p,
		words:     fiction.NewWordTracker(),
	}
	ctx = events.WithRunID(ctx, s.ID)
	s.Context = p.agents.Plot.Generate(ctx, req.Premise, req.Genre)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Info("session started", "session_id", s.ID, "genre", req.Genre, "chapters", req.Chapters)
	p.fanOut(ctx, "run_started", func(ctx context.Context, sink ArtifactSink) error {
		return sink.RunStarted(ctx, s.info())
	})
	return s, nil
}

// RestoreSession decodes a session saved with json.Marshal and binds it to
// p.
func RestoreSession(data []byte, p *Pipeline) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.ID == "" || s.Total < MinChapters || s.Current < 1 {
		return nil, fmt.Errorf("decoding session: incomplete session record")
	}
	if s.Context == nil {
		s.Context = story.Empty()
	}
	if s.Chapters == nil {
		s.Chapters = []string{}
	}
	// a crash mid-generation leaves the layout in place
	if s.State == StateAwaitingChapterGeneration {
		s.State = StateSceneLayoutReady
	}
	s.pipeline = p
	s.words = countWords(s.Chapters)
	return &s, nil
}

// Done reports whether every chapter has been generated.
func (s *Session) Done() bool {
	return s.Current > s.Total
}

// Position is the chapter the session is working on.
func (s *Session) Position() story.Position {
	return story.Position{Index: s.Current, Total: s.Total}
}

// CanReviseContext reports whether ReviseContext is currently allowed.
func (s *Session) CanReviseContext() bool {
	return !s.Done() && s.State == StateAwaitingContextEdit && s.SceneLayout == "" && !s.ContextModified
}

// ReviseContext asks the planner to rework the story context. It is only
// allowed before the chapter's scene layout exists, once per chapter.
func (s *Session) ReviseContext(ctx context.Context, instruction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("revise_context"); err != nil {
		return err
	}
	if !s.CanReviseContext() {
		return s.reject("revise_context", "context already revised or scene layout exists")
	}
	ctx = events.WithRunID(ctx, s.ID)
	revised := s.pipeline.agents.Plot.Modify(ctx, s.Request.Premise, s.Request.Genre, s.Context, instruction)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Context = revised
	s.ContextModified = true
	s.transition(ctx, StateAwaitingSceneLayout)
	return nil
}

// SkipContextEdit moves past the optional context edit.
func (s *Session) SkipContextEdit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("skip_context_edit"); err != nil {
		return err
	}
	if s.State != StateAwaitingContextEdit {
		return s.reject("skip_context_edit", "")
	}
	s.transition(ctx, StateAwaitingSceneLayout)
	return nil
}

// GenerateSceneLayout plans the chapter's scenes if none exist yet. With
// a layout in place, non-empty feedback replaces it and empty feedback
// leaves it alone. The session is SceneLayoutReady afterwards either way.
func (s *Session) GenerateSceneLayout(ctx context.Context, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("generate_scene_layout"); err != nil {
		return err
	}
	switch s.State {
	case StateAwaitingContextEdit, StateAwaitingSceneLayout, StateSceneLayoutReady:
	default:
		return s.reject("generate_scene_layout", "")
	}

	ctx = events.WithRunID(ctx, s.ID)
	agents := s.pipeline.agents
	layout := s.SceneLayout
	switch {
	case layout == "":
		layout = agents.Scenes.Plan(ctx, s.Context, s.Position(), s.Summary)
	case feedback != "":
		layout = agents.Scenes.Modify(ctx, s.Context, s.Position(), layout, feedback, s.Summary)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.SceneLayout = layout
	s.transition(ctx, StateSceneLayoutReady)
	return nil
}

// GenerateChapter applies optional scene feedback, then writes, refines,
// summarizes and tracks the chapter as one step and advances to the next.
// If ctx is cancelled the chapter is dropped and the session stays
// SceneLayoutReady with its previous summary and context.
func (s *Session) GenerateChapter(ctx context.Context, feedback string) (ChapterArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("generate_chapter"); err != nil {
		return ChapterArtifact{}, err
	}
	if s.State != StateSceneLayoutReady {
		return ChapterArtifact{}, s.reject("generate_chapter", "scene layout not generated")
	}

	ctx = events.WithRunID(ctx, s.ID)
	p := s.pipeline
	pos := s.Position()
	if feedback != "" {
		layout := p.agents.Scenes.Modify(ctx, s.Context, pos, s.SceneLayout, feedback, s.Summary)
		if err := ctx.Err(); err != nil {
			return ChapterArtifact{}, err
		}
		s.SceneLayout = layout
	}
	if s.words == nil {
		s.words = countWords(s.Chapters)
	}
	s.transition(ctx, StateAwaitingChapterGeneration)

	result, err := p.chapter(ctx, s.words, s.Context, pos, s.SceneLayout, s.Summary)
	if err != nil {
		p.logger.Warn("chapter interrupted", "session_id", s.ID, "chapter", pos.String(), "error", err)
		s.transition(context.WithoutCancel(ctx), StateSceneLayoutReady)
		return ChapterArtifact{}, err
	}
	s.Chapters = append(s.Chapters, result.Text)
	s.Summary = &result.Summary
	s.Context = result.Context
	s.transition(ctx, StateChapterComplete)

	p.logger.Info("chapter complete",
		"session_id", s.ID,
		"chapter", pos.String(),
		"words", result.Words,
		"total_words", s.words.Total(),
		"tracked", result.Tracked)
	p.complete(ctx, s.ID, result)
	result.RunID = s.ID

	s.Current++
	s.SceneLayout = ""
	s.ContextModified = false
	if s.Done() {
		p.fanOut(ctx, "run_finished", func(ctx context.Context, sink ArtifactSink) error {
			info := s.info()
			info.FinishedAt = time.Now()
			return sink.RunFinished(ctx, info)
		})
	} else {
		s.transition(ctx, StateAwaitingContextEdit)
	}
	return result, nil
}

// CheckCoherence reviews the chapters written so far. It does not change
// the session state.
func (s *Session) CheckCoherence(ctx context.Context) (report string, needsRevision bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.pipeline.agents.Tracker.CheckCoherence(events.WithRunID(ctx, s.ID), s.Context, s.Chapters)
	return r.Report, r.NeedsRevision
}

func (s *Session) check(op string) error {
	if s.pipeline == nil {
		return fmt.Errorf("%s: session is not bound to a pipeline", op)
	}
	if s.Done() {
		return &TransitionError{Op: op, From: s.State, Chapter: s.Current, Err: ErrSessionDone}
	}
	return nil
}

func (s *Session) reject(op, reason string) error {
	s.pipeline.logger.Debug("session operation rejected",
		"session_id", s.ID,
		"op", op,
		"state", s.State,
		"chapter", s.Current)
	return &TransitionError{Op: op, From: s.State, Chapter: s.Current, Reason: reason, Err: ErrInvalidTransition}
}

func (s *Session) transition(ctx context.Context, to State) {
	from := s.State
	s.State = to
	s.UpdatedAt = time.Now()
	if s.pipeline.events != nil {
		_ = s.pipeline.events.Publish(ctx, events.Event{
			Type:   events.TypeSessionTransition,
			Source: "session",
			Data: map[string]any{
				"from":    string(from),
				"to":      string(to),
				"chapter": s.Current,
			},
			Metadata: map[string]any{"session_id": s.ID},
		})
	}
}

func (s *Session) info() RunInfo {
	info := RunInfo{
		ID:        s.ID,
		Mode:      ModeInteractive,
		Request:   s.Request,
		Context:   s.Context,
		Chapters:  len(s.Chapters),
		StartedAt: s.CreatedAt,
	}
	if s.Summary != nil {
		info.Summary = *s.Summary
	}
	return info
}
