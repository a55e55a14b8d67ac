// Package config loads storyloom settings from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Providers.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	groqBaseURL    = "https://api.groq.com/openai/v1"
	groqModel      = "llama-3.1-8b-instant"
	groqSceneModel = "llama-3.3-70b-versatile"
)

// providerModels are used in place of the Groq model defaults when another
// provider is selected without naming models.
var providerModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.0-flash",
}

var ErrMissingAPIKey = errors.New("API key is not set")

type Config struct {
	AI     AIConfig    `yaml:"ai"`
	Paths  PathsConfig `yaml:"paths"`
	Limits Limits      `yaml:"limits"`
	Story  StoryConfig `yaml:"story"`
	Log    LogConfig   `yaml:"log"`
}

type AIConfig struct {
	Provider string `yaml:"provider" validate:"oneof=groq openai gemini"`
	// APIKey may reference the environment, e.g. ${GROQ_API_KEY}. When empty
	// the provider's variable is used.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model" validate:"required"`
	// SceneModel is pinned on every scene planning call.
	SceneModel string `yaml:"scene_model" validate:"required"`
	// Models overrides Model for individual stages, keyed by stage name.
	// Entries for scene_planner and scene_modifier win over SceneModel.
	Models           map[string]string `yaml:"models"`
	Temperature      float64           `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens        int               `yaml:"max_tokens" validate:"min=1,max=131072"`
	StructuredOutput string            `yaml:"structured_output" validate:"oneof=prompt json_object json_schema"`
	Cache            CacheConfig       `yaml:"cache"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size" validate:"min=1,max=100000"`
	TTL     time.Duration `yaml:"ttl" validate:"min=1s"`
}

type PathsConfig struct {
	OutputDir string `yaml:"output_dir" validate:"required"`
	// PromptsDir holds template overrides by file name; optional.
	PromptsDir string `yaml:"prompts_dir"`
	// Archive is the SQLite run history; defaults to <output_dir>/runs.db.
	Archive string `yaml:"archive"`
	Naming  string `yaml:"naming" validate:"oneof=uuid timestamp descriptive"`
}

type StoryConfig struct {
	Genres          []string `yaml:"genres" validate:"min=1,dive,required"`
	DefaultChapters int      `yaml:"default_chapters" validate:"min=1,max=10"`
	CoherenceCheck  bool     `yaml:"coherence_check"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Provider:         ProviderGroq,
			BaseURL:          groqBaseURL,
			Model:            groqModel,
			SceneModel:       groqSceneModel,
			Temperature:      0.9,
			MaxTokens:        8000,
			StructuredOutput: "prompt",
			Cache: CacheConfig{
				Size: 256,
				TTL:  time.Hour,
			},
		},
		Paths: PathsConfig{
			OutputDir: filepath.Join(dataHome(), "storyloom", "output"),
			Naming:    "timestamp",
		},
		Limits: DefaultLimits(),
		Story: StoryConfig{
			Genres:          []string{"General Fiction", "Science Fiction", "Fantasy", "Mystery", "Romance"},
			DefaultChapters: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env from the working directory, then the YAML file at Path.
// A missing file yields the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(Path())
}

// LoadFrom reads the YAML file at path over the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path is STORYLOOM_CONFIG, else config.yaml under the XDG config home.
func Path() string {
	if path := os.Getenv("STORYLOOM_CONFIG"); path != "" {
		return expandTilde(path)
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "storyloom", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "storyloom", "config.yaml")
}

func dataHome() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return xdgData
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// resolve fills values derived from the environment and other fields.
func (c *Config) resolve() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.AI.APIKey = strings.TrimSpace(os.ExpandEnv(c.AI.APIKey))
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv(c.APIKeyEnv())
	}
	if c.AI.Provider != ProviderGroq && c.AI.BaseURL == groqBaseURL {
		c.AI.BaseURL = ""
	}
	if model, ok := providerModels[c.AI.Provider]; ok {
		if c.AI.Model == groqModel {
			c.AI.Model = model
		}
		if c.AI.SceneModel == groqSceneModel {
			c.AI.SceneModel = model
		}
	}

	c.Paths.OutputDir = expandTilde(c.Paths.OutputDir)
	c.Paths.PromptsDir = expandTilde(c.Paths.PromptsDir)
	if c.Paths.Archive == "" {
		c.Paths.Archive = filepath.Join(c.Paths.OutputDir, "runs.db")
	} else {
		c.Paths.Archive = expandTilde(c.Paths.Archive)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// APIKeyEnv names the environment variable holding the provider's key.
func (c *Config) APIKeyEnv() string {
	switch c.AI.Provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return "GROQ_API_KEY"
}

// RequireAPIKey fails when no key was configured. Dry runs skip it.
func (c *Config) RequireAPIKey() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("%w: set %s or ai.api_key in %s", ErrMissingAPIKey, c.APIKeyEnv(), Path())
	}
	return nil
}

// Validate checks field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
