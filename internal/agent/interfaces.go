package agent

import (
	"context"
	"time"
)

// Role tags a message for the model.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one role-tagged entry of a prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Gateway sends prompts to a text-generation backend. Transport failures are
// reported through Completion.Status, never as Go errors.
type Gateway interface {
	Complete(ctx context.Context, messages []Message, opts ...CallOption) Completion
}

// Backend performs a single request against a concrete provider.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is the fully resolved call handed to a Backend.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	// JSON, when set, asks the backend to constrain output to an object.
	JSON *JSONFormat
	// Operation names the calling stage for logs and events.
	Operation string
}

// JSONFormat describes the structured output a caller expects.
type JSONFormat struct {
	Name string
	// Schema is a JSON schema document; may be nil.
	Schema any
}

// Status tells an empty answer apart from a failed call.
type Status int

const (
	StatusOK Status = iota
	// StatusEmpty means the backend answered with no text.
	StatusEmpty
	// StatusFailed means the call did not complete.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Completion is the outcome of a gateway call. Text is empty unless
// Status is StatusOK.
type Completion struct {
	Text     string
	Status   Status
	Model    string
	Duration time.Duration
	Cached   bool
	// Err carries the transport error for diagnostics when Status is StatusFailed.
	Err error
}

// OK reports whether the call produced text.
func (c Completion) OK() bool { return c.Status == StatusOK }

// CallOption adjusts a single gateway call.
type CallOption func(*Request)

// WithModel selects the model for this call.
func WithModel(model string) CallOption {
	return func(r *Request) {
		if model != "" {
			r.Model = model
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(r *Request) { r.Temperature = t }
}

// WithMaxTokens overrides the output token cap.
func WithMaxTokens(n int) CallOption {
	return func(r *Request) {
		if n > 0 {
			r.MaxTokens = n
		}
	}
}

// WithJSON marks the call as expecting a JSON object shaped like schema.
func WithJSON(name string, schema any) CallOption {
	return func(r *Request) { r.JSON = &JSONFormat{Name: name, Schema: schema} }
}

// WithOperation labels the call with the stage that issued it.
func WithOperation(name string) CallOption {
	return func(r *Request) { r.Operation = name }
}
