package agent

import "log/slog"

// Factory builds agents that share a gateway, a prompt cache and logger,
// applying per-stage model overrides.
type Factory struct {
	gateway Gateway
	prompts *PromptCache
	models  map[string]string
	logger  *slog.Logger
}

// NewFactory creates a factory. models maps agent names to the model they
// should use; agents without an entry use the gateway default.
func NewFactory(gateway Gateway, prompts *PromptCache, models map[string]string) *Factory {
	return &Factory{
		gateway: gateway,
		prompts: prompts,
		models:  models,
		logger:  slog.Default(),
	}
}

func (f *Factory) WithLogger(logger *slog.Logger) *Factory {
	f.logger = logger
	return f
}

// Create returns the agent called name using the system template and the
// given user templates.
func (f *Factory) Create(name, system string, user ...string) *Agent {
	a := NewAgent(name, f.gateway, f.prompts, system, user...).WithLogger(f.logger)
	if model, ok := f.models[name]; ok && model != "" {
		a.WithCallOptions(WithModel(model))
	}
	return a
}

// Override returns the configured model for the agent called name, or "".
func (f *Factory) Override(name string) string {
	return f.models[name]
}
