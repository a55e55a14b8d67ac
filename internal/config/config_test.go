package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Limits.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.Limits.MaxRetries)
	}
	if cfg.AI.Temperature != 0.9 || cfg.AI.MaxTokens != 8000 {
		t.Errorf("sampling defaults = %v/%d", cfg.AI.Temperature, cfg.AI.MaxTokens)
	}
	if cfg.Paths.Archive != filepath.Join(cfg.Paths.OutputDir, "runs.db") {
		t.Errorf("Archive = %q", cfg.Paths.Archive)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_from_env")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.Model != "llama-3.1-8b-instant" || cfg.AI.SceneModel != "llama-3.3-70b-versatile" {
		t.Errorf("models = %q/%q", cfg.AI.Model, cfg.AI.SceneModel)
	}
	if cfg.AI.APIKey != "gsk_from_env" {
		t.Errorf("APIKey = %q", cfg.AI.APIKey)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey: %v", err)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	t.Setenv("STORYLOOM_TEST_KEY", "sk-test-override")
	out := t.TempDir()
	path := writeConfig(t, `
ai:
  provider: OpenAI
  api_key: ${STORYLOOM_TEST_KEY}
  model: gpt-4o-mini
  models:
    chapter_writer: gpt-4.1
  structured_output: json_schema
  cache:
    enabled: true
    ttl: 10m
paths:
  output_dir: `+out+`
  naming: descriptive
limits:
  max_retries: 2
  timeout: 90s
story:
  genres: [Horror, Fantasy]
  default_chapters: 5
  coherence_check: true
log:
  level: DEBUG
  format: json
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.APIKey != "sk-test-override" {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.AI.BaseURL != "" {
		t.Errorf("BaseURL = %q, want the OpenAI default", cfg.AI.BaseURL)
	}
	if cfg.AI.SceneModel != "gpt-4o-mini" {
		t.Errorf("scene model should follow the provider, got %q", cfg.AI.SceneModel)
	}
	if cfg.AI.Temperature != 0.9 {
		t.Errorf("unset fields should keep defaults, Temperature = %v", cfg.AI.Temperature)
	}
	if cfg.AI.Models["chapter_writer"] != "gpt-4.1" {
		t.Errorf("Models = %v", cfg.AI.Models)
	}
	if !cfg.AI.Cache.Enabled || cfg.AI.Cache.TTL != 10*time.Minute || cfg.AI.Cache.Size != 256 {
		t.Errorf("cache = %+v", cfg.AI.Cache)
	}
	if cfg.Limits.MaxRetries != 2 || cfg.Limits.Timeout != 90*time.Second {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.Limits.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("rate limit default lost: %+v", cfg.Limits.RateLimit)
	}
	if len(cfg.Story.Genres) != 2 || cfg.Story.DefaultChapters != 5 || !cfg.Story.CoherenceCheck {
		t.Errorf("story = %+v", cfg.Story)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Paths.Archive != filepath.Join(out, "runs.db") {
		t.Errorf("Archive = %q", cfg.Paths.Archive)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"unknown provider", "ai:\n  provider: anthropic\n", "Provider"},
		{"bad structured mode", "ai:\n  structured_output: xml\n", "StructuredOutput"},
		{"temperature too high", "ai:\n  temperature: 3\n", "Temperature"},
		{"too many chapters", "story:\n  default_chapters: 11\n", "DefaultChapters"},
		{"no genres", "story:\n  genres: []\n", "Genres"},
		{"retries out of range", "limits:\n  max_retries: 50\n", "MaxRetries"},
		{"bad naming", "paths:\n  naming: random\n", "Naming"},
		{"bad log level", "log:\n  level: loud\n", "Level"},
		{"bad base url", "ai:\n  base_url: not a url\n", "BaseURL"},
		{"malformed yaml", "ai: [\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := LoadFrom(writeConfig(t, "ai:\n  provider: gemini\n"))
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.RequireAPIKey()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("RequireAPIKey = %v, want ErrMissingAPIKey", err)
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestProviderModelDefaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "ai:\n  provider: gemini\n  scene_model: gemini-2.5-pro\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.Model != "gemini-2.0-flash" || cfg.AI.SceneModel != "gemini-2.5-pro" {
		t.Errorf("models = %q/%q", cfg.AI.Model, cfg.AI.SceneModel)
	}
	if cfg.AI.BaseURL != "" {
		t.Errorf("BaseURL = %q", cfg.AI.BaseURL)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("STORYLOOM_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := Path(); got != "/tmp/xdg/storyloom/config.yaml" {
		t.Errorf("Path = %q", got)
	}
	t.Setenv("STORYLOOM_CONFIG", "/etc/storyloom.yaml")
	if got := Path(); got != "/etc/storyloom.yaml" {
		t.Errorf("Path = %q", got)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORYLOOM_DOTENV_KEY=gsk_dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("STORYLOOM_DOTENV_KEY") })
	t.Setenv("STORYLOOM_CONFIG", writeConfig(t, "ai:\n  api_key: ${STORYLOOM_DOTENV_KEY}\n"))
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.APIKey != "gsk_dotenv" {
		t.Errorf("APIKey = %q, want value from .env", cfg.AI.APIKey)
	}
}
