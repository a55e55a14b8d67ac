package fiction

import (
	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// PlotPlan is the planner's structured answer. Character maps are kept as
// free-form attributes so whatever the model supplies is copied through.
type PlotPlan struct {
	Title        string            `json:"title"`
	Genre        string            `json:"genre"`
	CentralTheme string            `json:"central_theme"`
	Protagonist  map[string]string `json:"protagonist"`
	Antagonist   map[string]string `json:"antagonist"`
	PlotThreads  []string          `json:"plot_threads"`
	Tensions     []string          `json:"tensions"`
}

// Context builds a story context from the plan. genre is the caller's
// genre, not the one the model echoed.
func (p PlotPlan) Context(genre string) *story.Context {
	return story.New(story.Seed{
		Title:        p.Title,
		Genre:        genre,
		CentralTheme: p.CentralTheme,
		Protagonist:  p.Protagonist,
		Antagonist:   p.Antagonist,
		PlotThreads:  p.PlotThreads,
		Tensions:     p.Tensions,
	})
}

// Shapes used only to generate JSON schemas for structured output.
type (
	protagonistShape struct {
		Name             string `json:"name"`
		Background       string `json:"background"`
		PrimaryGoal      string `json:"primary_goal"`
		InternalConflict string `json:"internal_conflict"`
	}
	antagonistShape struct {
		Name        string `json:"name"`
		Motivation  string `json:"motivation"`
		PowerSource string `json:"power_source"`
	}
	plotPlanShape struct {
		Title        string           `json:"title"`
		Genre        string           `json:"genre"`
		CentralTheme string           `json:"central_theme" jsonschema:"description=Core narrative theme in fewer than 10 words"`
		Protagonist  protagonistShape `json:"protagonist"`
		Antagonist   antagonistShape  `json:"antagonist"`
		PlotThreads  []string         `json:"plot_threads"`
		Tensions     []string         `json:"tensions"`
	}
	trackerShape struct {
		CharacterDevelopments map[string]story.ArcSnapshot `json:"character_developments"`
		PlotThreadStatus      map[string]string            `json:"plot_thread_status"`
		NewTensions           []string                     `json:"new_tensions"`
		ThematicProgression   map[string]string            `json:"thematic_progression"`
	}
)

var (
	plotPlanSchema = agent.SchemaFor[plotPlanShape]()
	trackerSchema  = agent.SchemaFor[trackerShape]()
)
