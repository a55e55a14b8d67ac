// Package events provides the in-process event bus used to surface story
// lifecycle changes and silent degradation to observers.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrStopped is returned when publishing to a stopped bus.
var ErrStopped = errors.New("event bus is stopped")

// Event is a single published occurrence.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Publisher is the write side of the bus, accepted by components that only emit.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Options configure a subscription.
type Options struct {
	// Async delivers on a separate goroutine; Publish does not wait.
	Async bool
	// Timeout bounds a single handler call. Zero means no bound.
	Timeout time.Duration
	// Priority orders synchronous delivery, higher first.
	Priority int
	// Filter narrows matching beyond the type pattern.
	Filter func(Event) bool
}

// Subscription is an active registration.
type Subscription struct {
	ID      string
	Pattern string
	handler Handler
	opts    Options
	re      *regexp.Regexp
}

// Metrics counts bus activity.
type Metrics struct {
	Published    int64
	Delivered    int64
	Failed       int64
	LastActivity time.Time
}

// Bus routes events to subscribers whose pattern matches the event type.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	stopped bool
	wg      sync.WaitGroup
	logger  *slog.Logger

	metricsMu sync.Mutex
	metrics   Metrics
}

// NewBus creates a running bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		logger: logger.With("component", "event_bus"),
	}
}

// Subscribe registers handler for event types matching the regular
// expression pattern.
func (b *Bus) Subscribe(pattern string, handler Handler, opts ...Options) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if pattern == "" {
		return nil, errors.New("pattern cannot be empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	sub := &Subscription{
		ID:      uuid.NewString(),
		Pattern: pattern,
		handler: handler,
		opts:    o,
		re:      re,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscription created",
		"subscription_id", sub.ID,
		"pattern", pattern,
		"async", o.Async)
	return sub, nil
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return fmt.Errorf("subscription %q not found", id)
	}
	delete(b.subs, id)
	return nil
}

// Publish delivers event to every matching subscription. Handler failures
// are logged and counted, never returned. A nil bus discards events.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Stop takes the write lock before waiting, so async deliveries are
	// registered with wg only while the bus is still running.
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return ErrStopped
	}
	subs := b.matchingLocked(event)
	for _, sub := range subs {
		if sub.opts.Async {
			b.wg.Add(1)
		}
	}
	b.mu.RUnlock()

	b.count(func(m *Metrics) {
		m.Published++
		m.LastActivity = event.Timestamp
	})
	for _, sub := range subs {
		if sub.opts.Async {
			go func(s *Subscription) {
				defer b.wg.Done()
				b.deliver(ctx, event, s)
			}(sub)
			continue
		}
		b.deliver(ctx, event, sub)
	}
	return nil
}

// matchingLocked returns the subscriptions for event, highest priority
// first. b.mu must be held.
func (b *Bus) matchingLocked(event Event) []*Subscription {
	var out []*Subscription
	for _, sub := range b.subs {
		if !sub.re.MatchString(event.Type) {
			continue
		}
		if sub.opts.Filter != nil && !sub.opts.Filter(event) {
			continue
		}
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].opts.Priority > out[j].opts.Priority
	})
	return out
}

func (b *Bus) deliver(ctx context.Context, event Event, sub *Subscription) {
	if sub.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.opts.Timeout)
		defer cancel()
	}
	if err := b.safeCall(ctx, event, sub); err != nil {
		b.logger.Warn("event handler failed",
			"event_id", event.ID,
			"type", event.Type,
			"subscription_id", sub.ID,
			"error", err)
		b.count(func(m *Metrics) { m.Failed++ })
		return
	}
	b.count(func(m *Metrics) { m.Delivered++ })
}

func (b *Bus) safeCall(ctx context.Context, event Event, sub *Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

// Stop rejects further publishes and waits for async handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
	b.logger.Debug("event bus stopped")
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.metrics
}

func (b *Bus) count(update func(*Metrics)) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	update(&b.metrics)
}
