package llm_test

import (
	"context"
	"errors"
	"testing"

	"quorum/internal/llm"
)

func TestStub_ReplaysScriptInOrder(t *testing.T) {
	stub := llm.NewStub(`{"n":1}`, `{"n":2}`)

	for i, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":2}`} {
		out, err := stub.GenerateJSON(context.Background(), "p", nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if string(out) != want {
			t.Errorf("call %d = %s, want %s", i, out, want)
		}
	}
}

func TestStub_ErrStep(t *testing.T) {
	boom := errors.New("boom")
	stub := llm.NewStub(`{}`).ThenErr(boom)

	if _, err := stub.GenerateJSON(context.Background(), "p", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := stub.GenerateJSON(context.Background(), "p", nil); !errors.Is(err, boom) {
		t.Errorf("second call err = %v, want boom", err)
	}
}

func TestStub_EmptyScript(t *testing.T) {
	stub := llm.NewStub()
	if _, err := stub.GenerateJSON(context.Background(), "p", nil); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestStub_RecordsCalls(t *testing.T) {
	stub := llm.NewStub(`{}`)
	_, _ = stub.GenerateJSON(context.Background(), "first", map[string]int{"a": 1})
	_, _ = stub.GenerateJSON(context.Background(), "second", nil)

	calls := stub.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Prompt != "first" || calls[1].Prompt != "second" {
		t.Errorf("recorded prompts = %q, %q", calls[0].Prompt, calls[1].Prompt)
	}
}

func TestStub_CancelledContext(t *testing.T) {
	stub := llm.NewStub(`{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := stub.GenerateJSON(ctx, "p", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
