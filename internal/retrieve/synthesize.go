package retrieve

import (
	"context"
	"fmt"
	"strings"
)

// synthesize writes the cited answer over the reranked sources. Failures
// and empty source lists both yield an empty answer; the sources still go
// back to the caller.
func (r *retriever) synthesize(ctx context.Context, query string, sources []Source) string {
	if len(sources) == 0 {
		return ""
	}

	var snippets strings.Builder
	for i, s := range sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&snippets, "[%d] %s\n%s\n\n", i+1, title, trimToChars(s.Snippet, snippetCap))
	}

	sctx, cancel := context.WithTimeout(ctx, synthesizeTimeout)
	defer cancel()
	sys, usr := promptSynthesize(query, snippets.String())
	answer, err := r.ai.GenerateText(sctx, sys, usr)
	if err != nil {
		r.log.Warn("answer synthesis failed", "error", err)
		return ""
	}
	return strings.TrimSpace(answer)
}
