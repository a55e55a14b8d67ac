package story

import (
	"encoding/json"
)

// Brief is the slice of the context that agents inject into their prompts.
// Field order is the order the model sees.
type Brief struct {
	StoryTitle      string            `json:"Story Title"`
	Genre           string            `json:"Genre"`
	CentralTheme    string            `json:"Central Theme"`
	ChapterTitle    string            `json:"Chapter Title"`
	Protagonist     map[string]string `json:"Protagonist Details"`
	PlotThreads     []string          `json:"Active Plot Threads"`
	Tensions        []string          `json:"Unresolved Tensions"`
	PreviousSummary string            `json:"Previous Chapter Summary,omitempty"`
}

// NewBrief builds the brief for the chapter at pos. An empty or nil summary
// is left out.
func NewBrief(c *Context, pos Position, summary *string) Brief {
	if c == nil {
		c = Empty()
	}
	b := Brief{
		StoryTitle:   c.Title,
		Genre:        c.Genre,
		CentralTheme: c.CentralTheme,
		ChapterTitle: pos.ChapterTitle(),
		Protagonist:  c.Protagonist,
		PlotThreads:  c.ActivePlotThreads,
		Tensions:     c.UnresolvedTensions,
	}
	if b.Protagonist == nil {
		b.Protagonist = map[string]string{}
	}
	if b.PlotThreads == nil {
		b.PlotThreads = []string{}
	}
	if b.Tensions == nil {
		b.Tensions = []string{}
	}
	if summary != nil {
		b.PreviousSummary = *summary
	}
	return b
}

// JSON renders the brief with two-space indentation.
func (b Brief) JSON() string {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// JSON renders the full context with two-space indentation.
func (c *Context) JSON() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
