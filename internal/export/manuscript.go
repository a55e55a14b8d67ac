package export

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/vampirenirmal/storyloom/internal/story"
)

// Manuscript renders a title page and one section per chapter as Markdown.
// Chapters without a valid heading are left out; skipped counts them.
func Manuscript(title, theme string, chapters []string) (doc []byte, skipped int) {
	var b strings.Builder
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if theme != "" {
		fmt.Fprintf(&b, "*%s*\n", theme)
	}

	for _, ch := range chapters {
		h, body, ok := ParseHeading(ch)
		if !ok {
			skipped++
			continue
		}
		fmt.Fprintf(&b, "\n---\n\n## %s\n\n### %s\n\n%s\n", h.Number, h.Title, body)
	}
	return []byte(b.String()), skipped
}

// Overview renders the story context as Markdown for display.
func Overview(sc *story.Context) string {
	if sc == nil {
		sc = story.Empty()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orDash(sc.Title))
	fmt.Fprintf(&b, "_%s_\n\n", titleCase(sc.Genre))
	fmt.Fprintf(&b, "### Central Theme\n\n%s\n\n", orDash(sc.CentralTheme))

	b.WriteString("### Protagonist\n\n")
	fmt.Fprintf(&b, "**%s**\n\n%s\n\n", orDash(sc.Protagonist["name"]), sc.Protagonist["background"])
	fmt.Fprintf(&b, "**Goal:** %s\n\n", sc.Protagonist["primary_goal"])
	fmt.Fprintf(&b, "**Internal Conflict:** %s\n\n", sc.Protagonist["internal_conflict"])

	b.WriteString("### Antagonist\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", orDash(sc.Antagonist["name"]))
	fmt.Fprintf(&b, "**Motivation:** %s\n\n", sc.Antagonist["motivation"])
	fmt.Fprintf(&b, "**Power Source:** %s\n\n", sc.Antagonist["power_source"])

	writeList(&b, "Active Plot Threads", sc.ActivePlotThreads)
	writeList(&b, "Unresolved Tensions", sc.UnresolvedTensions)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	fmt.Fprintf(b, "### %s\n\n", heading)
	if len(items) == 0 {
		b.WriteString("_none_\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// bible is the YAML layout of the story bible.
type bible struct {
	Title        string                         `yaml:"title"`
	Genre        string                         `yaml:"genre"`
	CentralTheme string                         `yaml:"central_theme"`
	Protagonist  map[string]string              `yaml:"protagonist"`
	Antagonist   map[string]string              `yaml:"antagonist"`
	PlotThreads  []string                       `yaml:"active_plot_threads"`
	Tensions     []string                       `yaml:"unresolved_tensions"`
	Arcs         map[string][]story.ArcSnapshot `yaml:"character_arcs,omitempty"`
	Chapters     []Heading                      `yaml:"chapters,omitempty"`
}

// StoryBible renders the context and the chapter headings as YAML.
func StoryBible(sc *story.Context, chapters []string) ([]byte, error) {
	if sc == nil {
		sc = story.Empty()
	}
	doc := bible{
		Title:        sc.Title,
		Genre:        sc.Genre,
		CentralTheme: sc.CentralTheme,
		Protagonist:  sc.Protagonist,
		Antagonist:   sc.Antagonist,
		PlotThreads:  sc.ActivePlotThreads,
		Tensions:     sc.UnresolvedTensions,
		Arcs:         sc.CharacterArcs,
	}
	for _, ch := range chapters {
		if h, _, ok := ParseHeading(ch); ok {
			doc.Chapters = append(doc.Chapters, h)
		}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling story bible: %w", err)
	}
	return out, nil
}
