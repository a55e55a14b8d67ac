package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vampirenirmal/storyloom/internal/events"
)

type flakyBackend struct {
	mu    sync.Mutex
	errs  []error
	text  string
	calls int
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.text, nil
}

func TestClient_Complete(t *testing.T) {
	backend := NewScriptedBackend().On("plan", "a plan")
	client := NewClient(backend)

	got := client.Complete(context.Background(),
		[]Message{System("sys"), User("hello")},
		WithOperation("plan"))

	if !got.OK() || got.Text != "a plan" {
		t.Fatalf("Complete() = %+v", got)
	}
	calls := backend.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Model != DefaultModel || calls[0].Temperature != DefaultTemperature || calls[0].MaxTokens != DefaultMaxTokens {
		t.Errorf("defaults not applied: %+v", calls[0])
	}
}

func TestClient_CallOptionsOverrideDefaults(t *testing.T) {
	backend := NewScriptedBackend().Default("ok")
	client := NewClient(backend, WithDefaults("base-model", 0.5, 100))

	client.Complete(context.Background(), []Message{User("x")},
		WithModel("scene-model"), WithMaxTokens(42), WithTemperature(0.1), WithJSON("plan", nil))

	req := backend.Calls()[0]
	if req.Model != "scene-model" || req.MaxTokens != 42 || req.Temperature != 0.1 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.JSON == nil || req.JSON.Name != "plan" {
		t.Errorf("expected JSON format, got %+v", req.JSON)
	}
}

func TestClient_EmptyAndFailedAreDistinct(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Stop()

	var mu sync.Mutex
	var seen []string
	_, _ = bus.Subscribe(events.PatternDegradation, func(ctx context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	})

	backend := NewScriptedBackend().
		On("empty", "").
		Fail("broken", errors.New("connection refused"))
	client := NewClient(backend, WithEvents(bus))

	empty := client.Complete(context.Background(), []Message{User("x")}, WithOperation("empty"))
	if empty.Status != StatusEmpty || empty.Text != "" || empty.Err != nil {
		t.Errorf("empty answer: %+v", empty)
	}

	failed := client.Complete(context.Background(), []Message{User("x")}, WithOperation("broken"))
	if failed.Status != StatusFailed || failed.Text != "" || failed.Err == nil {
		t.Errorf("failed call: %+v", failed)
	}

	want := []string{events.TypeGatewayEmpty, events.TypeGatewayFailed}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("events = %v, want %v", seen, want)
	}
}

func TestClient_RejectsBadMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     error
	}{
		{"no messages", nil, ErrNoMessages},
		{"assistant role", []Message{{Role: "assistant", Content: "x"}}, ErrInvalidRole},
		{"too large", []Message{User(strings.Repeat("a", 11))}, ErrPromptTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewScriptedBackend().Default("never")
			client := NewClient(backend, WithMaxPromptSize(10))

			got := client.Complete(context.Background(), tt.messages)
			if got.Status != StatusFailed || !errors.Is(got.Err, tt.want) {
				t.Errorf("Complete() = %+v, want error %v", got, tt.want)
			}
			if len(backend.Calls()) != 0 {
				t.Error("backend should not be called")
			}
		})
	}
}

func TestClient_NoRetryByDefault(t *testing.T) {
	backend := &flakyBackend{
		errs: []error{&StatusError{Provider: "groq", StatusCode: 503, Err: errors.New("busy")}},
		text: "late",
	}
	client := NewClient(backend)

	got := client.Complete(context.Background(), []Message{User("x")})
	if got.Status != StatusFailed {
		t.Errorf("expected failure without retries, got %+v", got)
	}
	if !errors.Is(got.Err, ErrServerError) {
		t.Errorf("expected server error, got %v", got.Err)
	}
	if backend.calls != 1 {
		t.Errorf("calls = %d, want 1", backend.calls)
	}
}

func TestClient_RetryWhenEnabled(t *testing.T) {
	backend := &flakyBackend{
		errs: []error{&StatusError{Provider: "groq", StatusCode: 429, Err: errors.New("slow down")}},
		text: "second time",
	}
	client := NewClient(backend, WithRetry(1))

	got := client.Complete(context.Background(), []Message{User("x")})
	if !got.OK() || got.Text != "second time" {
		t.Errorf("Complete() = %+v", got)
	}
	if backend.calls != 2 {
		t.Errorf("calls = %d, want 2", backend.calls)
	}
}

func TestClient_NonRetryableStopsImmediately(t *testing.T) {
	backend := &flakyBackend{
		errs: []error{&StatusError{Provider: "groq", StatusCode: 400, Err: errors.New("bad request")}},
		text: "unused",
	}
	client := NewClient(backend, WithRetry(3))

	got := client.Complete(context.Background(), []Message{User("x")})
	if got.Status != StatusFailed || backend.calls != 1 {
		t.Errorf("expected single failed call, got %+v after %d calls", got, backend.calls)
	}
}

func TestClient_Cache(t *testing.T) {
	backend := NewScriptedBackend().On("summary", "first", "second")
	client := NewClient(backend, WithCache(NewResponseCache(8, time.Minute)))
	msgs := []Message{User("same prompt")}

	a := client.Complete(context.Background(), msgs, WithOperation("summary"))
	b := client.Complete(context.Background(), msgs, WithOperation("summary"))
	if a.Text != "first" || b.Text != "first" || !b.Cached {
		t.Errorf("expected cached repeat, got %+v then %+v", a, b)
	}
	if len(backend.Calls()) != 1 {
		t.Errorf("backend called %d times", len(backend.Calls()))
	}

	c := client.Complete(context.Background(), []Message{User("other prompt")}, WithOperation("summary"))
	if c.Text != "second" || c.Cached {
		t.Errorf("different prompt should miss cache, got %+v", c)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(NewScriptedBackend().Default("x"))
	got := client.Complete(ctx, []Message{User("x")})
	if got.Status != StatusFailed || !errors.Is(got.Err, context.Canceled) {
		t.Errorf("Complete() = %+v", got)
	}
}

func TestStatusError_Is(t *testing.T) {
	tests := []struct {
		code      int
		rate      bool
		server    bool
		retryable bool
	}{
		{429, true, false, true},
		{500, false, true, true},
		{503, false, true, true},
		{400, false, false, false},
		{401, false, false, false},
	}
	for _, tt := range tests {
		err := error(&StatusError{Provider: "p", StatusCode: tt.code, Err: errors.New("x")})
		if errors.Is(err, ErrRateLimited) != tt.rate || errors.Is(err, ErrServerError) != tt.server || IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: rate=%v server=%v retryable=%v", tt.code,
				errors.Is(err, ErrRateLimited), errors.Is(err, ErrServerError), IsRetryable(err))
		}
	}
}
