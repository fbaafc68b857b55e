package enrich

import (
	"fmt"
	"strings"
)

const truncationMarker = "... [content truncated]"

const unifiedSchemaName = "unified_enrichment"

const unifiedSystemPrompt = `
You are a knowledge-base curator. You will receive one piece of ingested
content and must produce tags, a quality rating, a summary, topic paths,
validations of pre-detected entities, and any additional entities.
Judge quality by substance, not production polish.
Return JSON only.`

// buildUserPrompt assembles the single enrichment request. Text is capped and
// marked when cut; vocabulary lists are capped for prompt budget.
func buildUserPrompt(in Input, cfg config) string {
	text := capRunes(in.Text, cfg.textCap)

	var b strings.Builder
	b.WriteString("TITLE:\n")
	b.WriteString(strings.TrimSpace(in.Title))
	b.WriteString("\n\nCONTENT_TYPE:\n")
	b.WriteString(strings.TrimSpace(in.ContentType))

	b.WriteString("\n\nEXISTING_TAGS (reuse these whenever they fit):\n")
	b.WriteString(joinOrNone(capStrings(in.ExistingTags, cfg.maxPromptTags)))

	b.WriteString("\n\nEXISTING_TOPICS (reuse exact names where possible):\n")
	b.WriteString(joinOrNone(capStrings(in.ExistingTopics, cfg.maxPromptTopics)))

	b.WriteString("\n\nPRE_DETECTED_ENTITIES (validate each one):\n")
	if len(in.PreDetected) == 0 {
		b.WriteString("(none)")
	} else {
		for i, p := range in.PreDetected {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "- %s (%s)", p.Name, p.EntityType)
		}
	}

	b.WriteString("\n\nCONTENT:\n")
	b.WriteString(text)

	b.WriteString(`

Task:
- tags: pick from EXISTING_TAGS only; lowercase kebab-case.
- new_tags: tags genuinely missing from EXISTING_TAGS; lowercase kebab-case; at most ` + fmt.Sprint(cfg.maxNewTags) + `.
- tier: one of S, A, B, C, D. S is reserved for exceptional, canonical material.
- quality_score: integer 1-100 consistent with the tier.
- summary: 2-4 sentences, factual, no hype.
- topics: hierarchical paths such as "DevOps > Kubernetes > Helm" with a confidence of high, medium or low; at most ` + fmt.Sprint(cfg.maxTopics) + `.
- pre_detected_validations: one entry per pre-detected entity; confirmed=false when the content does not actually discuss it; edge_type one of discusses, mentions, uses, cites, demonstrates.
- additional_entities: real tools, repos, papers or people central to the content that are not pre-detected; entity_type one of topic, repo, paper, tool, person.`)

	return strings.TrimSpace(b.String())
}

func unifiedSchema() map[string]any {
	confidence := map[string]any{"type": "string", "enum": []any{"high", "medium", "low"}}

	topic := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic":      map[string]any{"type": "string"},
			"confidence": confidence,
		},
		"required":             []any{"topic", "confidence"},
		"additionalProperties": false,
	}

	validation := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity":    map[string]any{"type": "string"},
			"confirmed": map[string]any{"type": "boolean"},
			"edge_type": map[string]any{"type": "string", "enum": []any{"discusses", "mentions", "uses", "cites", "demonstrates"}},
		},
		"required":             []any{"entity", "confirmed", "edge_type"},
		"additionalProperties": false,
	}

	entity := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"entity_type": map[string]any{"type": "string", "enum": []any{"topic", "repo", "paper", "tool", "person"}},
			"description": map[string]any{"type": "string"},
			"confidence":  confidence,
		},
		"required":             []any{"name", "entity_type", "description", "confidence"},
		"additionalProperties": false,
	}

	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags":                     stringArray,
			"new_tags":                 stringArray,
			"tier":                     map[string]any{"type": "string", "enum": []any{"S", "A", "B", "C", "D"}},
			"tier_explanation":         map[string]any{"type": "string"},
			"quality_score":            map[string]any{"type": "integer"},
			"score_explanation":        map[string]any{"type": "string"},
			"summary":                  map[string]any{"type": "string"},
			"topics":                   map[string]any{"type": "array", "items": topic},
			"pre_detected_validations": map[string]any{"type": "array", "items": validation},
			"additional_entities":      map[string]any{"type": "array", "items": entity},
		},
		"required": []any{
			"tags", "new_tags", "tier", "tier_explanation", "quality_score",
			"score_explanation", "summary", "topics", "pre_detected_validations",
			"additional_entities",
		},
		"additionalProperties": false,
	}
}

// capRunes cuts s at max runes and appends the truncation marker when cut.
func capRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "\n" + truncationMarker
}

func capStrings(in []string, max int) []string {
	if max > 0 && len(in) > max {
		return in[:max]
	}
	return in
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
