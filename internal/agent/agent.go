package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Agent is one prompt-driven stage: a system template plus one or more user
// templates, rendered with the same data and sent through a Gateway.
type Agent struct {
	name     string
	gateway  Gateway
	prompts  *PromptCache
	system   string
	user     []string
	callOpts []CallOption
	logger   *slog.Logger
}

// NewAgent creates an agent named name. system and user are template names
// in prompts; each user template becomes its own user message.
func NewAgent(name string, gateway Gateway, prompts *PromptCache, system string, user ...string) *Agent {
	return &Agent{
		name:    name,
		gateway: gateway,
		prompts: prompts,
		system:  system,
		user:    user,
		logger:  slog.Default().With("component", "agent", "agent", name),
	}
}

// WithLogger sets a custom logger for the agent
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger.With("component", "agent", "agent", a.name)
	return a
}

// WithCallOptions adds options applied to every call this agent makes.
func (a *Agent) WithCallOptions(opts ...CallOption) *Agent {
	a.callOpts = append(a.callOpts, opts...)
	return a
}

func (a *Agent) Name() string { return a.name }

// Messages renders the agent's prompt for data.
func (a *Agent) Messages(data any) ([]Message, error) {
	msgs := make([]Message, 0, 1+len(a.user))
	if a.system != "" {
		text, err := a.prompts.Render(a.system, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
		msgs = append(msgs, System(text))
	}
	for _, name := range a.user {
		text, err := a.prompts.Render(name, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
		msgs = append(msgs, User(text))
	}
	return msgs, nil
}

// Run renders the prompt and calls the gateway. The error is non-nil only
// when the prompt cannot be rendered; transport outcomes are in the
// Completion status.
func (a *Agent) Run(ctx context.Context, data any, opts ...CallOption) (Completion, error) {
	start := time.Now()
	msgs, err := a.Messages(data)
	if err != nil {
		a.logger.Error("prompt rendering failed", "error", err)
		return Completion{Status: StatusFailed, Err: err}, err
	}

	promptLength := 0
	for _, m := range msgs {
		promptLength += len(m.Content)
	}
	a.logger.Debug("starting agent execution",
		"messages", len(msgs),
		"prompt_length", promptLength)

	callOpts := append([]CallOption{WithOperation(a.name)}, a.callOpts...)
	callOpts = append(callOpts, opts...)
	out := a.gateway.Complete(ctx, msgs, callOpts...)

	a.logger.Info("agent execution completed",
		"status", out.Status.String(),
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", len(out.Text),
		"cached", out.Cached)
	return out, nil
}
