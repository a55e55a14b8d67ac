package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vampirenirmal/storyloom/internal/events"
)

const (
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTemperature = 0.9
	DefaultMaxTokens   = 8000
)

// Client is the Model Gateway. It resolves per-call parameters, applies
// rate limiting and the optional cache, and converts every backend failure
// into a Completion status.
type Client struct {
	backend     Backend
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	maxPrompt   int
	limiter     *rate.Limiter
	cache       *ResponseCache
	events      events.Publisher
	logger      *slog.Logger
}

type Option func(*Client)

// WithRetry enables up to maxRetries extra attempts for retryable errors.
// The default is zero.
func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
	}
}

// WithTimeout bounds each backend attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

// WithDefaults sets the parameters used when a call does not override them.
func WithDefaults(model string, temperature float64, maxTokens int) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
		c.temperature = temperature
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithMaxPromptSize rejects requests whose messages exceed n characters.
func WithMaxPromptSize(n int) Option {
	return func(c *Client) {
		c.maxPrompt = n
	}
}

func WithCache(cache *ResponseCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithEvents publishes gateway.failed and gateway.empty events.
func WithEvents(p events.Publisher) Option {
	return func(c *Client) {
		c.events = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "model_gateway")
	}
}

// NewClient wraps backend as a Gateway.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.Default().With("component", "model_gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("model gateway initialized",
		"backend", backend.Name(),
		"model", c.model,
		"temperature", c.temperature,
		"max_tokens", c.maxTokens,
		"max_retries", c.maxRetries,
		"rate_limited", c.limiter != nil,
		"cache", c.cache != nil)
	return c
}

// Complete sends messages to the backend. It never returns an error: a
// failed call yields StatusFailed and empty text.
func (c *Client) Complete(ctx context.Context, messages []Message, opts ...CallOption) Completion {
	req := Request{
		Messages:    messages,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, opt := range opts {
		opt(&req)
	}

	requestID := newRequestID()
	start := time.Now()
	logger := c.logger.With("request_id", requestID, "operation", req.Operation, "model", req.Model)

	if err := c.check(req); err != nil {
		return c.fail(ctx, logger, req, start, err)
	}

	if c.cache != nil {
		if text, ok := c.cache.Get(req); ok {
			logger.Debug("cache hit", "response_length", len(text))
			return Completion{Text: text, Status: StatusOK, Model: req.Model, Duration: time.Since(start), Cached: true}
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail(ctx, logger, req, start, fmt.Errorf("rate limit wait failed: %w", err))
		}
		logger.Debug("rate limit passed", "wait_ms", time.Since(start).Milliseconds())
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			logger.Debug("retry backoff", "attempt", attempt, "backoff_seconds", backoff.Seconds())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return c.fail(ctx, logger, req, start, ctx.Err())
			}
		}

		attemptStart := time.Now()
		text, err := c.attempt(ctx, req)
		if err == nil {
			return c.succeed(ctx, logger, req, start, attempt, time.Since(attemptStart), text)
		}
		lastErr = err
		if !IsRetryable(err) || attempt == c.maxRetries {
			break
		}
		logger.Warn("model request failed, will retry",
			"attempt", attempt,
			"duration_ms", time.Since(attemptStart).Milliseconds(),
			"error", err)
	}
	return c.fail(ctx, logger, req, start, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.backend.Generate(ctx, req)
}

func (c *Client) check(req Request) error {
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}
	size := 0
	for _, m := range req.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser {
			return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
		size += len(m.Content)
	}
	if c.maxPrompt > 0 && size > c.maxPrompt {
		return fmt.Errorf("%w: %d > %d characters", ErrPromptTooLarge, size, c.maxPrompt)
	}
	return nil
}

func (c *Client) succeed(ctx context.Context, logger *slog.Logger, req Request, start time.Time, attempt int, took time.Duration, text string) Completion {
	out := Completion{Text: text, Status: StatusOK, Model: req.Model, Duration: time.Since(start)}
	if text == "" {
		out.Status = StatusEmpty
		logger.Warn("model returned empty text", "attempt", attempt, "duration_ms", took.Milliseconds())
		c.publish(ctx, events.TypeGatewayEmpty, req, "empty response")
		return out
	}
	if c.cache != nil {
		c.cache.Set(req, text)
	}
	logger.Info("model request successful",
		"attempt", attempt,
		"duration_ms", took.Milliseconds(),
		"response_length", len(text),
		"total_duration_ms", out.Duration.Milliseconds())
	return out
}

func (c *Client) fail(ctx context.Context, logger *slog.Logger, req Request, start time.Time, err error) Completion {
	logger.Error("model request failed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"error", err)
	c.publish(ctx, events.TypeGatewayFailed, req, err.Error())
	return Completion{Status: StatusFailed, Model: req.Model, Duration: time.Since(start), Err: err}
}

func (c *Client) publish(ctx context.Context, eventType string, req Request, reason string) {
	if c.events == nil {
		return
	}
	// published even after the caller cancels
	ctx = context.WithoutCancel(ctx)
	err := c.events.Publish(ctx, events.Event{
		Type:   eventType,
		Source: "model_gateway",
		Data:   events.Degradation{Stage: req.Operation, Reason: reason},
		Metadata: events.Attribute(ctx, map[string]any{
			"model": req.Model,
		}),
	})
	if err != nil && !errors.Is(err, events.ErrStopped) {
		c.logger.Debug("gateway event not published", "error", err)
	}
}

func newRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
