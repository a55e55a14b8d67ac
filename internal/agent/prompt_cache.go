package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// PromptCache parses prompt templates once and renders them on demand.
// Templates are read from base; a file with the same name under overrideDir
// replaces the built-in one. Files whose name starts with an underscore are
// partials: they are parsed into every template so {{template}} can use them.
type PromptCache struct {
	mu          sync.RWMutex
	base        fs.FS
	overrideDir string
	templates   map[string]*template.Template
}

var promptFuncs = template.FuncMap{
	"join":  strings.Join,
	"trim":  strings.TrimSpace,
	"add":   func(a, b int) int { return a + b },
	"lines": func(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") },
}

// NewPromptCache reads templates from base. overrideDir may be empty.
func NewPromptCache(base fs.FS, overrideDir string) *PromptCache {
	return &PromptCache{
		base:        base,
		overrideDir: overrideDir,
		templates:   make(map[string]*template.Template),
	}
}

// Template returns the parsed template called name.
func (pc *PromptCache) Template(name string) (*template.Template, error) {
	pc.mu.RLock()
	if tmpl, ok := pc.templates[name]; ok {
		pc.mu.RUnlock()
		return tmpl, nil
	}
	pc.mu.RUnlock()

	content, err := pc.read(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
	}
	if err := pc.addPartials(tmpl); err != nil {
		return nil, err
	}

	pc.mu.Lock()
	pc.templates[name] = tmpl
	pc.mu.Unlock()
	return tmpl, nil
}

// Render executes the template called name with data.
func (pc *PromptCache) Render(name string, data any) (string, error) {
	tmpl, err := pc.Template(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (pc *PromptCache) read(name string) (string, error) {
	if pc.overrideDir != "" {
		content, err := os.ReadFile(filepath.Join(pc.overrideDir, name))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading prompt override %s: %w", name, err)
		}
	}
	if pc.base == nil {
		return "", fmt.Errorf("prompt %s: %w", name, fs.ErrNotExist)
	}
	content, err := fs.ReadFile(pc.base, name)
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return string(content), nil
}

func (pc *PromptCache) addPartials(tmpl *template.Template) error {
	if pc.base == nil {
		return nil
	}
	names, err := fs.Glob(pc.base, "_*.tmpl")
	if err != nil {
		return fmt.Errorf("listing prompt partials: %w", err)
	}
	for _, name := range names {
		content, err := pc.read(name)
		if err != nil {
			return err
		}
		if _, err := tmpl.New(name).Parse(content); err != nil {
			return fmt.Errorf("parsing prompt partial %s: %w", name, err)
		}
	}
	return nil
}

// Preload parses every named template so bad overrides fail at startup.
func (pc *PromptCache) Preload(names ...string) error {
	for _, name := range names {
		if _, err := pc.Template(name); err != nil {
			return fmt.Errorf("preloading %s: %w", name, err)
		}
	}
	return nil
}

// Clear drops all parsed templates.
func (pc *PromptCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.templates = make(map[string]*template.Template)
}

// Len returns the number of parsed templates.
func (pc *PromptCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.templates)
}
