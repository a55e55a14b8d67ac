package phase

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"inline fence", "```{\"a\":1}```", `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":{\"b\":2}}\nEnjoy!", `{"a":{"b":2}}`},
		{"brace in string", `Sure {"a":"x}y"} done`, `{"a":"x}y"}`},
		{"not json", "no object here", "no object here"},
		{"trailing comma left alone", `{"a":1,}`, `{"a":1,}`},
		{"first of two objects", `{"a":1} {"b":2}`, `{"a":1}`},
		{"unbalanced left alone", `Result: {"a":1`, `Result: {"a":1`},
		{"top-level array kept", `[{"a":1}]`, `[{"a":1}]`},
		{"fence with prose inside", "```json\nHere:\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSONResponse(tt.in); got != tt.want {
				t.Errorf("CleanJSONResponse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	type plan struct {
		Title   string   `json:"title"`
		Threads []string `json:"threads"`
	}

	t.Run("decodes with extras", func(t *testing.T) {
		var p plan
		err := DecodeObject("```json\n{\"title\":\"T\",\"threads\":[\"a\"],\"extra\":1}\n```", &p, "title", "threads")
		if err != nil {
			t.Fatalf("DecodeObject() error = %v", err)
		}
		if p.Title != "T" || len(p.Threads) != 1 {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		var p plan
		err := DecodeObject(`{"title":"T"}`, &p, "title", "threads")
		if !errors.Is(err, ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		var p plan
		if err := DecodeObject(`{"title":"T","threads":"a"}`, &p, "title"); err == nil {
			t.Error("expected type error")
		}
	})

	t.Run("no object", func(t *testing.T) {
		var p plan
		if err := DecodeObject("I cannot do that", &p); !errors.Is(err, ErrNoJSONObject) {
			t.Errorf("expected ErrNoJSONObject, got %v", err)
		}
	})

	t.Run("array is not an object", func(t *testing.T) {
		var p plan
		if err := DecodeObject(`[{"title":"T"}]`, &p); !errors.Is(err, ErrNoJSONObject) {
			t.Errorf("expected ErrNoJSONObject, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		var p plan
		if err := DecodeObject(`{"title": "T",}`, &p); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestBase_TextPublishesOnEmpty(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Stop()

	var got []events.Degradation
	_, _ = bus.Subscribe(events.PatternDegradation, func(ctx context.Context, e events.Event) error {
		got = append(got, e.Data.(events.Degradation))
		return nil
	})

	b := NewBase("summarizer", WithEvents(bus))
	ctx := context.Background()

	if text := b.Text(ctx, agent.Completion{Text: "fine", Status: agent.StatusOK}, 1); text != "fine" {
		t.Errorf("Text() = %q", text)
	}
	if text := b.Text(ctx, agent.Completion{Status: agent.StatusEmpty}, 2); text != "" {
		t.Errorf("Text() = %q, want empty", text)
	}
	b.Text(ctx, agent.Completion{Status: agent.StatusFailed}, 3)

	if len(got) != 2 {
		t.Fatalf("expected 2 degradation events, got %d", len(got))
	}
	if got[0].Stage != "summarizer" || got[0].Chapter != 2 || got[0].Reason != "empty response" {
		t.Errorf("unexpected event %+v", got[0])
	}
	if got[1].Reason != "gateway failure" {
		t.Errorf("unexpected reason %q", got[1].Reason)
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("abc", 5) != "abc" {
		t.Error("short strings are unchanged")
	}
	if Truncate("abcdef", 3) != "abc..." {
		t.Errorf("Truncate = %q", Truncate("abcdef", 3))
	}

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"naïve", 3, "na..."},
		{"naïve", 4, "naï..."},
		{"€uro", 2, "..."},
		{"日本語", 7, "日本..."},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
