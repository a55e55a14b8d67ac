package fiction

import (
	"log/slog"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase"
)

// Agents is the full set of story agents a controller drives.
type Agents struct {
	Plot       *PlotPlanner
	Scenes     *ScenePlanner
	Writer     *ChapterWriter
	Refiner    *ChapterRefiner
	Summarizer *Summarizer
	Tracker    *NarrativeTracker
}

// Config wires the agents.
type Config struct {
	// SceneModel is pinned on scene planning calls.
	SceneModel string
	// Models overrides the gateway default per stage name.
	Models map[string]string
	// PromptsDir holds template overrides; may be empty.
	PromptsDir string
	Events     events.Publisher
	Logger     *slog.Logger
}

// NewAgents builds every agent over gateway. It fails only if a prompt
// template cannot be parsed.
func NewAgents(gateway agent.Gateway, cfg Config) (*Agents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompts := NewPromptCache(cfg.PromptsDir)
	if err := PreloadPrompts(prompts); err != nil {
		return nil, err
	}

	f := agent.NewFactory(gateway, prompts, cfg.Models).WithLogger(logger)
	opts := []phase.BaseOption{phase.WithLogger(logger), phase.WithEvents(cfg.Events)}

	return &Agents{
		Plot:       NewPlotPlanner(f, opts...),
		Scenes:     NewScenePlanner(f, cfg.SceneModel, opts...),
		Writer:     NewChapterWriter(f, opts...),
		Refiner:    NewChapterRefiner(f, opts...),
		Summarizer: NewSummarizer(f, opts...),
		Tracker:    NewNarrativeTracker(f, opts...),
	}, nil
}
