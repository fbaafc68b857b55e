package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/recall-backend/internal/llm"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// RankedSnippet is the reranker's verdict for one input snippet. Index is
// the snippet's position in the input slice.
type RankedSnippet struct {
	Index int
	Score float64
}

// Reranker reorders candidate snippets by relevance to a query, best first.
// Implementations may omit snippets they scored at zero; callers keep the
// omitted ones in their prior order.
type Reranker interface {
	Rerank(ctx context.Context, query string, snippets []string) ([]RankedSnippet, error)
}

type llmReranker struct {
	log *logger.Logger
	ai  llm.Generator
}

func NewLLMReranker(log *logger.Logger, ai llm.Generator) (Reranker, error) {
	if log == nil {
		return nil, fmt.Errorf("reranker requires logger")
	}
	if ai == nil {
		return nil, fmt.Errorf("reranker requires a generator")
	}
	return &llmReranker{log: log.With("component", "LLMReranker"), ai: ai}, nil
}

func (l *llmReranker) Rerank(ctx context.Context, query string, snippets []string) ([]RankedSnippet, error) {
	if len(snippets) == 0 {
		return nil, nil
	}

	var items strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&items, "[%d] %s\n\n", i+1, trimToChars(s, snippetCap))
	}

	rctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()
	sys, usr := promptRerank(query, items.String())
	raw, err := l.ai.GenerateJSON(rctx, sys, usr, "retrieve_rerank", schemaRerank())
	if err != nil {
		return nil, err
	}
	return parseRerank(raw, len(snippets))
}

// parseRerank decodes [{index, relevance}] verdicts. Prompt numbering is
// 1-based; out-of-range and duplicate indexes are dropped.
func parseRerank(raw string, n int) ([]RankedSnippet, error) {
	clean := stripJSONFences(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty rerank response")
	}
	var payload struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, n)
	out := make([]RankedSnippet, 0, len(payload.Results))
	for _, row := range payload.Results {
		idx, ok := asIndex(row["index"])
		if !ok {
			continue
		}
		idx--
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, RankedSnippet{Index: idx, Score: asFloat(row["relevance"])})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rerank response named no snippets")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
