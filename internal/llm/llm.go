package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/openai"
)

// Generator is the text/structured-output capability consumed by the
// enrichment and retrieval services. The OpenAI client satisfies it.
type Generator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (string, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// Embedder is the embedding capability.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

var (
	_ Generator = openai.Client(nil)
	_ Embedder  = openai.Client(nil)
)

// ProviderFailure records one provider's failure inside a fallback chain.
type ProviderFailure struct {
	Provider string
	Err      error
}

// FallbackError carries per-provider failure summaries when every provider
// in the chain failed.
type FallbackError struct {
	Failures []ProviderFailure
}

func (e *FallbackError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "no generator available"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return "all generators failed: " + strings.Join(parts, "; ")
}

func (e *FallbackError) Unwrap() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

type namedGenerator struct {
	name string
	gen  Generator
}

// FallbackGenerator tries an ordered list of generators and returns the
// first non-empty success.
type FallbackGenerator struct {
	log   *logger.Logger
	chain []namedGenerator
}

func NewFallbackGenerator(log *logger.Logger) *FallbackGenerator {
	return &FallbackGenerator{log: log.With("component", "FallbackGenerator")}
}

// Add appends a provider to the chain. Nil generators are skipped.
func (f *FallbackGenerator) Add(name string, gen Generator) *FallbackGenerator {
	if gen == nil {
		return f
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("provider_%d", len(f.chain))
	}
	f.chain = append(f.chain, namedGenerator{name: name, gen: gen})
	return f
}

func (f *FallbackGenerator) Len() int {
	if f == nil {
		return 0
	}
	return len(f.chain)
}

func (f *FallbackGenerator) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (string, error) {
	var failures []ProviderFailure
	for _, ng := range f.chain {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		out, err := ng.gen.GenerateJSON(ctx, system, user, schemaName, schema)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		f.log.Warn("generator failed, trying next", "provider", ng.name, "error", err)
		failures = append(failures, ProviderFailure{Provider: ng.name, Err: err})
	}
	return "", &FallbackError{Failures: failures}
}

func (f *FallbackGenerator) GenerateText(ctx context.Context, system string, user string) (string, error) {
	var failures []ProviderFailure
	for _, ng := range f.chain {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		out, err := ng.gen.GenerateText(ctx, system, user)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		f.log.Warn("generator failed, trying next", "provider", ng.name, "error", err)
		failures = append(failures, ProviderFailure{Provider: ng.name, Err: err})
	}
	return "", &FallbackError{Failures: failures}
}

var _ Generator = (*FallbackGenerator)(nil)
