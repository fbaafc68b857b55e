package retrieve

import "fmt"

func promptExpand(query string, n int) (system string, user string) {
	system = `You expand a search query into alternative phrasings for retrieval over a personal knowledge base.
Return ONLY JSON matching the schema. Stay faithful to the original intent; vary vocabulary and specificity.`
	user = fmt.Sprintf("Query:\n%s\n\nTask: produce up to %d phrasings, the original query first.", query, n)
	return system, user
}

func schemaExpand() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queries": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []any{"queries"},
		"additionalProperties": false,
	}
}

func promptRerank(query string, items string) (system string, user string) {
	system = `You are a ranking model. Score each numbered snippet for relevance to the query.
Return ONLY JSON matching the schema. Use relevance 0-100 (higher is more relevant).
Be strict: only give high scores if the snippet directly helps answer the query.`
	user = "Query:\n" + query + "\n\nSnippets:\n" + items
	return system, user
}

func schemaRerank() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index":     map[string]any{"type": "integer", "minimum": 1},
						"relevance": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
					},
					"required":             []any{"index", "relevance"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"results"},
		"additionalProperties": false,
	}
}

func promptSynthesize(query string, snippets string) (system string, user string) {
	system = `You answer questions from a personal knowledge base. Use ONLY the numbered snippets as evidence.
Cite every claim with the snippet number in square brackets, like [1] or [2][3].
If the snippets do not answer the question, say so briefly. Do not invent sources.`
	user = "Question:\n" + query + "\n\nSnippets:\n" + snippets
	return system, user
}
