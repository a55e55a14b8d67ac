// Package story holds the narrative state threaded through a generation run.
package story

import (
	"strings"
)

// Context is the aggregate record of narrative facts for one story run.
// It is owned by a single controller; agents receive it read-only and
// return new values instead of mutating it.
type Context struct {
	Title              string                   `json:"title" yaml:"title"`
	Genre              string                   `json:"genre" yaml:"genre"`
	CentralTheme       string                   `json:"central_theme" yaml:"central_theme"`
	Protagonist        map[string]string        `json:"protagonist" yaml:"protagonist"`
	Antagonist         map[string]string        `json:"antagonist" yaml:"antagonist"`
	ActivePlotThreads  []string                 `json:"active_plot_threads" yaml:"active_plot_threads"`
	UnresolvedTensions []string                 `json:"unresolved_tensions" yaml:"unresolved_tensions"`
	CharacterArcs      map[string][]ArcSnapshot `json:"character_arcs" yaml:"character_arcs"`
}

// ArcSnapshot records one chapter's worth of development for a character.
type ArcSnapshot struct {
	ArcProgression string `json:"arc_progression" yaml:"arc_progression"`
	EmotionalState string `json:"emotional_state" yaml:"emotional_state"`
	KeyDecision    string `json:"key_decision" yaml:"key_decision"`
}

// Empty returns a context with every field at its zero value and every
// collection allocated, so it serialises as empty lists and objects.
func Empty() *Context {
	return &Context{
		Protagonist:        map[string]string{},
		Antagonist:         map[string]string{},
		ActivePlotThreads:  []string{},
		UnresolvedTensions: []string{},
		CharacterArcs:      map[string][]ArcSnapshot{},
	}
}

// Seed describes the planner-supplied fields of a new context.
type Seed struct {
	Title        string
	Genre        string
	CentralTheme string
	Protagonist  map[string]string
	Antagonist   map[string]string
	PlotThreads  []string
	Tensions     []string
}

// New builds a context from a seed. The genre is lower-cased and the
// character arc history starts empty.
func New(seed Seed) *Context {
	sc := Empty()
	sc.Title = seed.Title
	sc.Genre = NormalizeGenre(seed.Genre)
	sc.CentralTheme = seed.CentralTheme
	for k, v := range seed.Protagonist {
		sc.Protagonist[k] = v
	}
	for k, v := range seed.Antagonist {
		sc.Antagonist[k] = v
	}
	sc.ActivePlotThreads = append(sc.ActivePlotThreads, seed.PlotThreads...)
	sc.UnresolvedTensions = append(sc.UnresolvedTensions, seed.Tensions...)
	return sc
}

// NormalizeGenre lower-cases and trims a genre label.
func NormalizeGenre(genre string) string {
	return strings.ToLower(strings.TrimSpace(genre))
}

// IsZero reports whether the context carries no narrative facts at all.
func (c *Context) IsZero() bool {
	if c == nil {
		return true
	}
	return c.Title == "" && c.Genre == "" && c.CentralTheme == "" &&
		len(c.Protagonist) == 0 && len(c.Antagonist) == 0 &&
		len(c.ActivePlotThreads) == 0 && len(c.UnresolvedTensions) == 0 &&
		len(c.CharacterArcs) == 0
}

// Clone returns a deep copy. Nil collections stay nil so a clone is
// reflect.DeepEqual to its source.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{
		Title:              c.Title,
		Genre:              c.Genre,
		CentralTheme:       c.CentralTheme,
		Protagonist:        cloneAttrs(c.Protagonist),
		Antagonist:         cloneAttrs(c.Antagonist),
		ActivePlotThreads:  cloneStrings(c.ActivePlotThreads),
		UnresolvedTensions: cloneStrings(c.UnresolvedTensions),
	}
	if c.CharacterArcs != nil {
		out.CharacterArcs = make(map[string][]ArcSnapshot, len(c.CharacterArcs))
		for name, arcs := range c.CharacterArcs {
			if arcs == nil {
				out.CharacterArcs[name] = nil
				continue
			}
			out.CharacterArcs[name] = append(make([]ArcSnapshot, 0, len(arcs)), arcs...)
		}
	}
	return out
}

// ArcCounts returns the number of arc snapshots recorded per character.
func (c *Context) ArcCounts() map[string]int {
	counts := make(map[string]int, len(c.CharacterArcs))
	for name, arcs := range c.CharacterArcs {
		counts[name] = len(arcs)
	}
	return counts
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
