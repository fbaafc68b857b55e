package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.text, s.err
}

func newTestFallback(t *testing.T) *FallbackGenerator {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewFallbackGenerator(log)
}

func TestFallbackGeneratorFirstSuccessWins(t *testing.T) {
	first := &stubGenerator{text: "from first"}
	second := &stubGenerator{text: "from second"}
	f := newTestFallback(t).Add("first", first).Add("second", second)

	out, err := f.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != "from first" {
		t.Fatalf("output: want=%q got=%q", "from first", out)
	}
	if second.calls != 0 {
		t.Fatalf("second provider should not be called, calls=%d", second.calls)
	}
}

func TestFallbackGeneratorSkipsFailuresAndEmpty(t *testing.T) {
	failing := &stubGenerator{err: errors.New("rate limited")}
	empty := &stubGenerator{text: "   "}
	ok := &stubGenerator{text: `{"answer":"yes"}`}
	f := newTestFallback(t).Add("failing", failing).Add("empty", empty).Add("ok", ok)

	out, err := f.GenerateJSON(context.Background(), "sys", "user", "schema", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out != `{"answer":"yes"}` {
		t.Fatalf("output: got=%q", out)
	}
	if failing.calls != 1 || empty.calls != 1 || ok.calls != 1 {
		t.Fatalf("call counts: failing=%d empty=%d ok=%d", failing.calls, empty.calls, ok.calls)
	}
}

func TestFallbackGeneratorAllFail(t *testing.T) {
	a := &stubGenerator{err: errors.New("boom a")}
	b := &stubGenerator{err: errors.New("boom b")}
	f := newTestFallback(t).Add("a", a).Add("b", b)

	_, err := f.GenerateText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatalf("GenerateText: expected error")
	}

	var fbErr *FallbackError
	if !errors.As(err, &fbErr) {
		t.Fatalf("error type: want *FallbackError got=%T", err)
	}
	if len(fbErr.Failures) != 2 {
		t.Fatalf("failures: want=2 got=%d", len(fbErr.Failures))
	}
	if fbErr.Failures[0].Provider != "a" || fbErr.Failures[1].Provider != "b" {
		t.Fatalf("failure order: got=%+v", fbErr.Failures)
	}
	if !strings.Contains(err.Error(), "boom a") || !strings.Contains(err.Error(), "boom b") {
		t.Fatalf("error message should carry provider failures: %v", err)
	}
}

func TestFallbackGeneratorSkipsNilProviders(t *testing.T) {
	ok := &stubGenerator{text: "fine"}
	f := newTestFallback(t).Add("nil", nil).Add("ok", ok)

	if f.Len() != 1 {
		t.Fatalf("Len: want=1 got=%d", f.Len())
	}
	out, err := f.GenerateText(context.Background(), "sys", "user")
	if err != nil || out != "fine" {
		t.Fatalf("GenerateText: out=%q err=%v", out, err)
	}
}

func TestFallbackGeneratorEmptyChain(t *testing.T) {
	f := newTestFallback(t)

	_, err := f.GenerateText(context.Background(), "sys", "user")
	var fbErr *FallbackError
	if !errors.As(err, &fbErr) {
		t.Fatalf("error type: want *FallbackError got=%T", err)
	}
	if msg := fbErr.Error(); msg != "no generator available" {
		t.Fatalf("empty chain message: got=%q", msg)
	}
}
