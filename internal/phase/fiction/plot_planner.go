package fiction

import (
	"context"
	"encoding/json"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// PlotPlanner turns a premise into the initial story context and revises
// that context on request.
type PlotPlanner struct {
	phase.Base
	generate *agent.Agent
	modify   *agent.Agent
}

func NewPlotPlanner(f *agent.Factory, opts ...phase.BaseOption) *PlotPlanner {
	return &PlotPlanner{
		Base: phase.NewBase(StagePlotPlanner, opts...),
		generate: f.Create(StagePlotPlanner,
			systemTemplate(StagePlotPlanner), userTemplate(StagePlotPlanner)).
			WithCallOptions(agent.WithJSON(StagePlotPlanner, plotPlanSchema)),
		modify: f.Create(StagePlotModifier,
			systemTemplate(StagePlotModifier), "plot_modifier.existing.tmpl", "plot_modifier.instruction.tmpl").
			WithCallOptions(agent.WithJSON(StagePlotModifier, plotPlanSchema)),
	}
}

type planPrompt struct {
	Premise     string
	Genre       string
	Existing    string
	Instruction string
}

// Generate plans a new story. If the model's answer cannot be parsed the
// result is an empty context; it never fails.
func (p *PlotPlanner) Generate(ctx context.Context, premise, genre string) *story.Context {
	start := p.LogStart("plan", "genre", genre)
	out, err := p.generate.Run(ctx, planPrompt{Premise: premise, Genre: genre})
	if err != nil {
		p.Degrade(ctx, events.TypeBookkeepingSkipped, 0, err.Error(), "")
		return story.Empty()
	}

	var plan PlotPlan
	if err := phase.DecodeObject(out.Text, &plan); err != nil {
		p.Degrade(ctx, events.TypeBookkeepingSkipped, 0, "story structure not parsed: "+err.Error(), out.Text)
		return story.Empty()
	}

	sc := plan.Context(genre)
	p.LogComplete("plan", start, len(out.Text))
	p.Publish(ctx, events.TypeStoryPlanned, sc.Clone())
	return sc
}

// Modify asks the model to rework existing according to instruction. A
// parsed answer replaces the context wholesale, character arcs included;
// otherwise existing is returned unchanged.
func (p *PlotPlanner) Modify(ctx context.Context, premise, genre string, existing *story.Context, instruction string) *story.Context {
	if existing == nil {
		existing = story.Empty()
	}
	start := p.LogStart("plan", "genre", genre, "instruction_length", len(instruction))

	prior, err := json.Marshal(existing)
	if err != nil {
		p.Degrade(ctx, events.TypeBookkeepingSkipped, 0, "encoding existing structure: "+err.Error(), "")
		return existing
	}
	out, err := p.modify.Run(ctx, planPrompt{
		Premise:     premise,
		Genre:       genre,
		Existing:    string(prior),
		Instruction: instruction,
	})
	if err != nil {
		p.Degrade(ctx, events.TypeBookkeepingSkipped, 0, err.Error(), "")
		return existing
	}

	var plan PlotPlan
	if err := phase.DecodeObject(out.Text, &plan); err != nil {
		p.Degrade(ctx, events.TypeBookkeepingSkipped, 0, "modified structure not parsed: "+err.Error(), out.Text)
		return existing
	}

	sc := plan.Context(genre)
	p.LogComplete("plan", start, len(out.Text))
	p.Publish(ctx, events.TypeStoryRevised, sc.Clone())
	return sc
}
