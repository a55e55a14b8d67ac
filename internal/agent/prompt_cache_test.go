package agent

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestPromptCache(t *testing.T) {
	base := fstest.MapFS{
		"greet.tmpl":  {Data: []byte("Hello {{.Name}}, chapter {{add .Index 1}}\n")},
		"list.tmpl":   {Data: []byte(`{{join .Items ", "}}`)},
		"broken.tmpl": {Data: []byte("{{.Name")},
		"uses.tmpl":   {Data: []byte(`{{template "sig" .}} {{.Name}}`)},
		"_sig.tmpl":   {Data: []byte(`{{define "sig"}}--{{end}}`)},
	}

	t.Run("renders built-in template", func(t *testing.T) {
		pc := NewPromptCache(base, "")
		got, err := pc.Render("greet.tmpl", map[string]any{"Name": "Mara", "Index": 1})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "Hello Mara, chapter 2" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("caches parsed templates", func(t *testing.T) {
		pc := NewPromptCache(base, "")
		for i := 0; i < 3; i++ {
			if _, err := pc.Render("list.tmpl", map[string]any{"Items": []string{"a", "b"}}); err != nil {
				t.Fatal(err)
			}
		}
		if pc.Len() != 1 {
			t.Errorf("Len() = %d, want 1", pc.Len())
		}
		pc.Clear()
		if pc.Len() != 0 {
			t.Errorf("Len() after Clear = %d", pc.Len())
		}
	})

	t.Run("override directory wins", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "greet.tmpl"), []byte("Hi {{.Name}}"), 0644); err != nil {
			t.Fatal(err)
		}
		pc := NewPromptCache(base, dir)
		got, err := pc.Render("greet.tmpl", map[string]any{"Name": "Mara", "Index": 0})
		if err != nil {
			t.Fatal(err)
		}
		if got != "Hi Mara" {
			t.Errorf("Render() = %q, want override", got)
		}
		// not overridden
		if _, err := pc.Render("list.tmpl", map[string]any{"Items": []string{"x"}}); err != nil {
			t.Errorf("fallback to base failed: %v", err)
		}
	})

	t.Run("partials are shared", func(t *testing.T) {
		pc := NewPromptCache(base, "")
		got, err := pc.Render("uses.tmpl", map[string]any{"Name": "x"})
		if err != nil {
			t.Fatal(err)
		}
		if got != "-- x" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("missing key is an error", func(t *testing.T) {
		pc := NewPromptCache(base, "")
		if _, err := pc.Render("greet.tmpl", map[string]any{"Index": 1}); err == nil {
			t.Error("expected error for missing key")
		}
	})

	t.Run("preload reports parse errors", func(t *testing.T) {
		pc := NewPromptCache(base, "")
		if err := pc.Preload("greet.tmpl", "broken.tmpl"); err == nil {
			t.Error("expected parse error")
		}
		if err := pc.Preload("nope.tmpl"); err == nil {
			t.Error("expected not-found error")
		}
	})
}
