package phase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
)

// rawLimit caps how much offending model output travels in events.
const rawLimit = 500

// Base carries what every story agent shares: its name, a scoped logger and
// the publisher for degradation events.
type Base struct {
	name   string
	logger *slog.Logger
	events events.Publisher
}

// BaseOption allows customization of Base
type BaseOption func(*Base)

// WithLogger configures a custom logger
func WithLogger(logger *slog.Logger) BaseOption {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEvents sets where degradation events go.
func WithEvents(p events.Publisher) BaseOption {
	return func(b *Base) {
		b.events = p
	}
}

func NewBase(name string, options ...BaseOption) Base {
	b := Base{
		name:   name,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(&b)
	}
	b.logger = b.logger.With("component", name)
	return b
}

func (b Base) Name() string { return b.name }

func (b Base) Logger() *slog.Logger { return b.logger }

// LogStart logs the start of an agent call
func (b Base) LogStart(pos string, attrs ...any) time.Time {
	b.logger.Debug("agent call started", append([]any{"chapter", pos}, attrs...)...)
	return time.Now()
}

// LogComplete logs a finished agent call
func (b Base) LogComplete(pos string, start time.Time, length int) {
	b.logger.Info("agent call completed",
		"chapter", pos,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_length", length)
}

// Text returns the completion text. Empty output is logged and published
// as output.empty for chapter, but otherwise passed through unchanged.
func (b Base) Text(ctx context.Context, out agent.Completion, chapter int) string {
	if strings.TrimSpace(out.Text) != "" {
		return out.Text
	}
	reason := "empty response"
	if out.Status == agent.StatusFailed {
		reason = "gateway failure"
	}
	b.Degrade(ctx, events.TypeOutputEmpty, chapter, reason, "")
	return out.Text
}

// Degrade records that the agent kept a fallback value instead of model
// output. It never fails.
func (b Base) Degrade(ctx context.Context, eventType string, chapter int, reason, raw string) {
	b.logger.Warn("agent output degraded",
		"event", eventType,
		"chapter", chapter,
		"reason", reason,
		"raw", Truncate(raw, rawLimit))
	if b.events == nil {
		return
	}
	_ = b.events.Publish(context.WithoutCancel(ctx), events.Event{
		Type:   eventType,
		Source: b.name,
		Data: events.Degradation{
			Stage:   b.name,
			Chapter: chapter,
			Reason:  reason,
			Raw:     Truncate(raw, rawLimit),
		},
		Metadata: events.Attribute(ctx, nil),
	})
}

// Publish emits a lifecycle event from this agent.
func (b Base) Publish(ctx context.Context, eventType string, data any) {
	if b.events == nil {
		return
	}
	_ = b.events.Publish(context.WithoutCancel(ctx), events.Event{
		Type:     eventType,
		Source:   b.name,
		Data:     data,
		Metadata: events.Attribute(ctx, nil),
	})
}
