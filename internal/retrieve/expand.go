package retrieve

import (
	"context"
	"encoding/json"
	"strings"
)

// expand turns the user query into up to maxQueries retrieval phrasings,
// original first. Expansion never fails a request: every problem degrades
// to searching the original query alone.
func (r *retriever) expand(ctx context.Context, query string) []string {
	ectx, cancel := context.WithTimeout(ctx, expandTimeout)
	defer cancel()

	sys, usr := promptExpand(query, r.cfg.maxQueries)
	raw, err := r.ai.GenerateJSON(ectx, sys, usr, "retrieve_expand", schemaExpand())
	if err != nil {
		r.log.Warn("query expansion failed", "error", err)
		return []string{query}
	}
	return mergeExpanded(query, parseExpanded(raw), r.cfg.maxQueries)
}

// parseExpanded tolerantly pulls the queries array out of the model output.
func parseExpanded(raw string) []string {
	clean := stripJSONFences(raw)
	if clean == "" {
		return nil
	}
	var payload struct {
		Queries []any `json:"queries"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil
	}
	out := make([]string, 0, len(payload.Queries))
	for _, q := range payload.Queries {
		s, ok := q.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mergeExpanded puts the original query first and dedupes the rest
// case-insensitively.
func mergeExpanded(original string, expansions []string, maxQueries int) []string {
	if maxQueries <= 0 {
		maxQueries = 5
	}
	out := []string{original}
	seen := map[string]bool{strings.ToLower(original): true}
	for _, q := range expansions {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) >= maxQueries {
			break
		}
	}
	return out
}
