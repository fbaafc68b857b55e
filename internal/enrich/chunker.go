package enrich

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one contiguous slice of a content payload, sized for embedding.
// Index values form a dense 0-based sequence.
type Chunk struct {
	Index         int
	Text          string
	TokenEstimate int
}

// EstimateTokens approximates the token count of s at four runes per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// ChunkText splits text into ordered chunks of at most maxTokens estimated
// tokens each. Markdown headings force a boundary, paragraphs fill chunks
// greedily, and a single paragraph over the budget is window-split at the
// nearest line or sentence break with a small overlap.
func ChunkText(text string, maxTokens int) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens < 50 {
		maxTokens = 50
	}

	var parts []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, s)
		}
		current.Reset()
		currentTokens = 0
	}

	for _, para := range splitParagraphs(text) {
		pt := EstimateTokens(para)
		if isHeading(para) && currentTokens > 0 {
			flush()
		}
		if pt > maxTokens {
			flush()
			parts = append(parts, windowSplit(para, maxTokens)...)
			continue
		}
		if currentTokens > 0 && currentTokens+pt+1 > maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
			currentTokens++
		}
		current.WriteString(para)
		currentTokens += pt
	}
	flush()

	out := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		out = append(out, Chunk{Index: i, Text: p, TokenEstimate: EstimateTokens(p)})
	}
	return out
}

func splitParagraphs(text string) []string {
	lines := strings.Split(text, "\n")
	var out []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			flush()
			continue
		}
		cur = append(cur, ln)
	}
	flush()
	return out
}

func isHeading(para string) bool {
	return strings.HasPrefix(para, "#")
}

// windowSplit cuts an oversized block into rune windows, preferring to break
// at a newline or sentence end inside the last fifth of each window.
func windowSplit(s string, maxTokens int) []string {
	r := []rune(s)
	size := maxTokens * 4
	if size < 200 {
		size = 200
	}
	overlap := size / 8

	var out []string
	start := 0
	for start < len(r) {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else {
			end = breakPoint(r, start, end)
		}
		p := strings.TrimSpace(string(r[start:end]))
		if p != "" {
			out = append(out, p)
		}
		if end >= len(r) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func breakPoint(r []rune, start, end int) int {
	limit := end - (end-start)/5
	for i := end - 1; i > limit; i-- {
		if r[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > limit; i-- {
		if r[i] == '.' || r[i] == '!' || r[i] == '?' {
			if i+1 < len(r) && (r[i+1] == ' ' || r[i+1] == '\n') {
				return i + 2
			}
		}
	}
	return end
}
