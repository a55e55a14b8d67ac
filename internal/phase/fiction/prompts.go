package fiction

import (
	"embed"
	"io/fs"

	"github.com/vampirenirmal/storyloom/internal/agent"
)

//go:embed prompts/*.tmpl
var promptFiles embed.FS

// Agent names. They double as gateway operation labels and as keys for
// per-stage model overrides.
const (
	StagePlotPlanner      = "plot_planner"
	StagePlotModifier     = "plot_modifier"
	StageScenePlanner     = "scene_planner"
	StageSceneModifier    = "scene_modifier"
	StageChapterWriter    = "chapter_writer"
	StageChapterRefiner   = "chapter_refiner"
	StageSummarizer       = "summarizer"
	StageNarrativeTracker = "narrative_tracker"
	StageCoherenceChecker = "coherence_checker"
)

// Stages lists every agent name in pipeline order.
var Stages = []string{
	StagePlotPlanner,
	StagePlotModifier,
	StageScenePlanner,
	StageSceneModifier,
	StageChapterWriter,
	StageChapterRefiner,
	StageSummarizer,
	StageNarrativeTracker,
	StageCoherenceChecker,
}

// PromptFS returns the built-in prompt templates.
func PromptFS() fs.FS {
	sub, err := fs.Sub(promptFiles, "prompts")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewPromptCache returns a cache over the built-in prompts, overridable by
// files in overrideDir.
func NewPromptCache(overrideDir string) *agent.PromptCache {
	return agent.NewPromptCache(PromptFS(), overrideDir)
}

func systemTemplate(stage string) string { return stage + ".system.tmpl" }

func userTemplate(stage string) string { return stage + ".user.tmpl" }

// templateNames lists every template an agent renders, for preloading.
func templateNames() []string {
	names := []string{
		"plot_modifier.existing.tmpl",
		"plot_modifier.instruction.tmpl",
		systemTemplate(StagePlotModifier),
	}
	for _, stage := range Stages {
		if stage == StagePlotModifier {
			continue
		}
		names = append(names, systemTemplate(stage), userTemplate(stage))
	}
	return names
}

// PreloadPrompts parses every template so a broken override fails early.
func PreloadPrompts(pc *agent.PromptCache) error {
	return pc.Preload(templateNames()...)
}
