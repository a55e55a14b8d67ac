package export

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vampirenirmal/storyloom/internal/storage"
	"github.com/vampirenirmal/storyloom/internal/story"
)

func TestParseHeading(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   Heading
		body   string
		wantOK bool
	}{
		{"standard", "Chapter 1: The Tide\n\nMara woke.", Heading{"Chapter 1", "The Tide"}, "Mara woke.", true},
		{"leading whitespace", "\n  Chapter 12: Ash and Oil\nBody", Heading{"Chapter 12", "Ash and Oil"}, "Body", true},
		{"heading only", "Chapter 2: Alone", Heading{"Chapter 2", "Alone"}, "", true},
		{"crlf", "Chapter 3: Windows\r\nBody", Heading{"Chapter 3", "Windows"}, "Body", true},
		{"no space after colon", "Chapter 1:The Tide\nBody", Heading{}, "", false},
		{"markdown heading", "# Chapter 1: The Tide\nBody", Heading{}, "", false},
		{"lower case", "chapter 1: The Tide\nBody", Heading{}, "", false},
		{"no number", "Chapter One: The Tide\nBody", Heading{}, "", false},
		{"empty", "", Heading{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, body, ok := ParseHeading(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, h)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestManuscript(t *testing.T) {
	doc, skipped := Manuscript("The Lantern Keeper", "Light survives by being shared", []string{
		"Chapter 1: The Tide\n\nMara woke.",
		"no heading here",
		"Chapter 2: The Stair\n\nShe climbed.",
	})
	assert.Equal(t, 1, skipped)

	text := string(doc)
	assert.True(t, strings.HasPrefix(text, "# The Lantern Keeper\n\n*Light survives by being shared*\n"))
	assert.Contains(t, text, "## Chapter 1\n\n### The Tide\n\nMara woke.\n")
	assert.Contains(t, text, "## Chapter 2\n\n### The Stair\n\nShe climbed.\n")
	assert.NotContains(t, text, "no heading here")
	assert.Less(t, strings.Index(text, "Chapter 1"), strings.Index(text, "Chapter 2"))
}

func TestManuscriptUntitled(t *testing.T) {
	doc, skipped := Manuscript("", "", nil)
	assert.Zero(t, skipped)
	assert.Equal(t, "# Untitled\n\n", string(doc))
}

func lanternContext() *story.Context {
	sc := story.New(story.Seed{
		Title:        "The Lantern Keeper",
		Genre:        "science fiction",
		CentralTheme: "Light survives by being shared",
		Protagonist:  map[string]string{"name": "Mara Vell", "primary_goal": "Relight the lantern"},
		Antagonist:   map[string]string{"name": "The Tidewarden"},
		PlotThreads:  []string{"The missing lantern oil"},
	})
	sc.CharacterArcs["Mara Vell"] = []story.ArcSnapshot{{ArcProgression: "Trusts herself"}}
	return sc
}

func TestOverview(t *testing.T) {
	md := Overview(lanternContext())
	assert.Contains(t, md, "# The Lantern Keeper")
	assert.Contains(t, md, "_Science Fiction_")
	assert.Contains(t, md, "**Mara Vell**")
	assert.Contains(t, md, "**Goal:** Relight the lantern")
	assert.Contains(t, md, "- The missing lantern oil")
	assert.Contains(t, md, "### Unresolved Tensions\n\n_none_")

	assert.Contains(t, Overview(nil), "# -")
}

func TestStoryBible(t *testing.T) {
	out, err := StoryBible(lanternContext(), []string{"Chapter 1: The Tide\nBody", "junk"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out, &got))
	assert.Equal(t, "The Lantern Keeper", got["title"])
	assert.Equal(t, "science fiction", got["genre"])
	chapters := got["chapters"].([]any)
	require.Len(t, chapters, 1)
	assert.Equal(t, "The Tide", chapters[0].(map[string]any)["title"])
	arcs := got["character_arcs"].(map[string]any)
	assert.Contains(t, arcs, "Mara Vell")
}

func TestRun(t *testing.T) {
	store := storage.NewFileSystem(t.TempDir())
	ctx := context.Background()
	dir := "sessions/run-1"

	require.NoError(t, store.Save(ctx, dir+"/context.json", []byte(lanternContext().JSON())))
	require.NoError(t, store.Save(ctx, dir+"/chapters/chapter-01.md", []byte("Chapter 1: The Tide\n\nMara woke.")))
	require.NoError(t, store.Save(ctx, dir+"/chapters/chapter-02.md", []byte("Chapter 2: The Stair\n\nShe climbed.")))

	res, err := Run(ctx, store, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chapters)
	assert.Zero(t, res.Skipped)
	assert.True(t, store.Exists(ctx, res.Manuscript))
	assert.True(t, store.Exists(ctx, res.Bible))

	_, err = Run(ctx, store, "sessions/missing")
	assert.Error(t, err)
}
