package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// Stub is a scripted Client for tests and offline dry runs. Responses are
// consumed in order; once the script is exhausted the last step repeats, so
// a one-step stub serves any number of runs.
type Stub struct {
	mu    sync.Mutex
	steps []stubStep
	idx   int
	calls []Call
}

type stubStep struct {
	out json.RawMessage
	err error
}

// Call records one GenerateJSON invocation for assertions.
type Call struct {
	Prompt string
	Input  any
}

// NewStub scripts a stub with JSON responses, replayed in order.
func NewStub(responses ...string) *Stub {
	s := &Stub{}
	for _, r := range responses {
		s.steps = append(s.steps, stubStep{out: json.RawMessage(r)})
	}
	return s
}

// Then appends another JSON response to the script.
func (s *Stub) Then(response string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, stubStep{out: json.RawMessage(response)})
	return s
}

// ThenErr appends a failing step to the script.
func (s *Stub) ThenErr(err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, stubStep{err: err})
	return s
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Prompt: prompt, Input: input})
	if len(s.steps) == 0 {
		return nil, ErrEmptyResponse
	}
	step := s.steps[s.idx]
	if s.idx < len(s.steps)-1 {
		s.idx++
	}
	if step.err != nil {
		return nil, step.err
	}
	return step.out, nil
}

// Calls returns a copy of the recorded invocations.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
