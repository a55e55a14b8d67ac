package fiction

import (
	"context"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// DefaultSceneModel is the model scene layouts are planned with unless
// configured otherwise.
const DefaultSceneModel = "llama-3.3-70b-versatile"

// ScenePlanner produces a free-text scene layout for one chapter.
type ScenePlanner struct {
	phase.Base
	plan   *agent.Agent
	modify *agent.Agent
}

// NewScenePlanner pins model on every call it makes; an empty model means
// DefaultSceneModel. A per-stage override for scene_planner or
// scene_modifier takes precedence for that stage.
func NewScenePlanner(f *agent.Factory, model string, opts ...phase.BaseOption) *ScenePlanner {
	if model == "" {
		model = DefaultSceneModel
	}
	pinned := func(stage string) agent.CallOption {
		if m := f.Override(stage); m != "" {
			return agent.WithModel(m)
		}
		return agent.WithModel(model)
	}
	return &ScenePlanner{
		Base: phase.NewBase(StageScenePlanner, opts...),
		plan: f.Create(StageScenePlanner, systemTemplate(StageScenePlanner), userTemplate(StageScenePlanner)).
			WithCallOptions(pinned(StageScenePlanner)),
		modify: f.Create(StageSceneModifier, systemTemplate(StageSceneModifier), userTemplate(StageSceneModifier)).
			WithCallOptions(pinned(StageSceneModifier)),
	}
}

type scenePrompt struct {
	Position story.Position
	Guidance string
	Genre    string
	Brief    string
	Existing string
	Feedback string
}

func newScenePrompt(sc *story.Context, pos story.Position, summary *string) scenePrompt {
	return scenePrompt{
		Position: pos,
		Guidance: pos.Band().Guidance(),
		Genre:    sc.Genre,
		Brief:    story.NewBrief(sc, pos, summary).JSON(),
	}
}

// Plan returns the scene layout for the chapter at pos. summary is the
// rolling summary so far, nil for the first chapter.
func (s *ScenePlanner) Plan(ctx context.Context, sc *story.Context, pos story.Position, summary *string) string {
	start := s.LogStart(pos.String(), "band", pos.Band().String())
	out, err := s.plan.Run(ctx, newScenePrompt(sc, pos, summary))
	if err != nil {
		return ""
	}
	layout := s.Text(ctx, out, pos.Index)
	s.LogComplete(pos.String(), start, len(layout))
	if layout != "" {
		s.Publish(ctx, events.TypeScenesPlanned, events.ChapterData{Chapter: pos.Index, Total: pos.Total, Words: CountWords(layout)})
	}
	return layout
}

// Modify rewrites an existing layout according to feedback.
func (s *ScenePlanner) Modify(ctx context.Context, sc *story.Context, pos story.Position, existing, feedback string, summary *string) string {
	start := s.LogStart(pos.String(), "feedback_length", len(feedback))
	data := newScenePrompt(sc, pos, summary)
	data.Existing = existing
	data.Feedback = feedback

	out, err := s.modify.Run(ctx, data)
	if err != nil {
		return ""
	}
	layout := s.Text(ctx, out, pos.Index)
	s.LogComplete(pos.String(), start, len(layout))
	if layout != "" {
		s.Publish(ctx, events.TypeScenesPlanned, events.ChapterData{Chapter: pos.Index, Total: pos.Total, Words: CountWords(layout)})
	}
	return layout
}
