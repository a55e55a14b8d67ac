package agent

import (
	"context"
	"sync"
)

// ScriptedBackend answers from canned responses keyed by Request.Operation.
// It backs tests and dry runs.
type ScriptedBackend struct {
	mu       sync.Mutex
	queues   map[string][]string
	funcs    map[string]func(Request) string
	failures map[string]error
	fallback string
	calls    []Request
}

func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{
		queues:   make(map[string][]string),
		funcs:    make(map[string]func(Request) string),
		failures: make(map[string]error),
	}
}

func (s *ScriptedBackend) Name() string { return "scripted" }

// On queues responses for operation. Once the queue is down to its last
// entry, that entry is repeated.
func (s *ScriptedBackend) On(operation string, responses ...string) *ScriptedBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[operation] = append(s.queues[operation], responses...)
	return s
}

// OnFunc computes the response for operation from the request.
func (s *ScriptedBackend) OnFunc(operation string, fn func(Request) string) *ScriptedBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[operation] = fn
	return s
}

// Fail makes every call for operation return err.
func (s *ScriptedBackend) Fail(operation string, err error) *ScriptedBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = err
	return s
}

// Default sets the response for operations with no script.
func (s *ScriptedBackend) Default(text string) *ScriptedBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = text
	return s
}

func (s *ScriptedBackend) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if err, ok := s.failures[req.Operation]; ok {
		return "", err
	}
	if fn, ok := s.funcs[req.Operation]; ok {
		return fn(req), nil
	}
	if q := s.queues[req.Operation]; len(q) > 0 {
		text := q[0]
		if len(q) > 1 {
			s.queues[req.Operation] = q[1:]
		}
		return text, nil
	}
	return s.fallback, nil
}

// Calls returns a copy of every request received so far.
func (s *ScriptedBackend) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// Operations returns the operation of each call in order.
func (s *ScriptedBackend) Operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.calls))
	for i, c := range s.calls {
		ops[i] = c.Operation
	}
	return ops
}
