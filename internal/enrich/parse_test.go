package enrich

import (
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/recall-backend/internal/domain/entities"
)

func defaultParseOptions() parseOptions {
	return parseOptions{
		existingTags:        []string{"programming", "kubernetes"},
		maxNewTags:          5,
		maxTopics:           5,
		minTopicConfidence:  0.6,
		minEntityConfidence: 0.6,
	}
}

func TestParseUnifiedHappyPath(t *testing.T) {
	raw := `{
		"tags": ["programming", "kubernetes"],
		"new_tags": ["homelab"],
		"tier": "A",
		"tier_explanation": "thorough walkthrough",
		"quality_score": 78,
		"score_explanation": "clear and practical",
		"summary": "A practical guide to running Kubernetes at home.",
		"topics": [{"topic": "DevOps > Kubernetes > Helm", "confidence": "high"}],
		"pre_detected_validations": [{"entity": "langchain", "confirmed": true, "edge_type": "uses"}],
		"additional_entities": [{"name": "Helm", "entity_type": "tool", "description": "K8s package manager", "confidence": "medium"}]
	}`

	res, err := parseUnified(raw, defaultParseOptions())
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if res.Tier != "A" || res.QualityScore != 78 {
		t.Fatalf("tier/score = %s/%d, want A/78", res.Tier, res.QualityScore)
	}
	if got := strings.Join(res.AllTags(), ","); got != "programming,kubernetes,homelab" {
		t.Fatalf("AllTags = %s", got)
	}
	if len(res.NewTags) != 1 || res.NewTags[0] != "homelab" {
		t.Fatalf("NewTags = %v", res.NewTags)
	}
	if len(res.Topics) != 1 {
		t.Fatalf("topics = %v", res.Topics)
	}
	topic := res.Topics[0]
	if strings.Join(topic.Path, "/") != "DevOps/Kubernetes/Helm" {
		t.Fatalf("topic path = %v", topic.Path)
	}
	if topic.Confidence != 0.9 {
		t.Fatalf("topic confidence = %v, want 0.9", topic.Confidence)
	}
	v, ok := res.ValidationFor("LangChain")
	if !ok {
		t.Fatalf("validation for langchain missing")
	}
	if !v.Confirmed || v.EdgeType != entities.EdgeUses {
		t.Fatalf("validation = %+v", v)
	}
	if len(res.AdditionalEntities) != 1 {
		t.Fatalf("additional entities = %v", res.AdditionalEntities)
	}
	extra := res.AdditionalEntities[0]
	if extra.Name != "Helm" || extra.EntityType != entities.TypeTool || extra.Confidence != 0.7 {
		t.Fatalf("extra entity = %+v", extra)
	}
}

func TestParseUnifiedToleratesFencesAndCoercions(t *testing.T) {
	raw := "```json\n" + `{
		"tags": ["Programming", "programming", "Bad Tag!", "9starts-with-digit"],
		"tier": "legendary",
		"quality_score": "150",
		"summary": "s",
		"topics": ["Databases > Postgres"]
	}` + "\n```"

	res, err := parseUnified(raw, defaultParseOptions())
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if res.Tier != "C" {
		t.Fatalf("invalid tier should snap to C, got %s", res.Tier)
	}
	if res.QualityScore != 100 {
		t.Fatalf("score should clamp to 100, got %d", res.QualityScore)
	}
	if len(res.Tags) != 1 || res.Tags[0] != "programming" {
		t.Fatalf("tags = %v, want [programming]", res.Tags)
	}
	if len(res.Topics) != 1 || res.Topics[0].Confidence != confidenceMedium {
		t.Fatalf("string topic should default to medium confidence, got %v", res.Topics)
	}
}

func TestParseUnifiedScoreAndTierDefaults(t *testing.T) {
	cases := []struct {
		raw      string
		wantTier string
		wantScr  int
	}{
		{`{"tier": "s", "quality_score": 0}`, "S", 1},
		{`{"tier": " b ", "quality_score": -5}`, "B", 1},
		{`{"tier": "", "quality_score": "oops"}`, "C", 50},
		{`{}`, "C", 50},
		{`{"tier": "d", "quality_score": 33.6}`, "D", 34},
	}
	for _, c := range cases {
		res, err := parseUnified(c.raw, defaultParseOptions())
		if err != nil {
			t.Fatalf("parseUnified(%s): %v", c.raw, err)
		}
		if res.Tier != c.wantTier || res.QualityScore != c.wantScr {
			t.Fatalf("parseUnified(%s) tier/score = %s/%d, want %s/%d",
				c.raw, res.Tier, res.QualityScore, c.wantTier, c.wantScr)
		}
	}
}

func TestParseUnifiedEmptyAndBroken(t *testing.T) {
	for _, raw := range []string{"", "   ", "```json\n```"} {
		_, err := parseUnified(raw, defaultParseOptions())
		var se *StageError
		if !errors.As(err, &se) {
			t.Fatalf("parseUnified(%q) err = %v, want StageError", raw, err)
		}
		if se.Stage != StageParse || se.Code != CodeEmptyResponse {
			t.Fatalf("parseUnified(%q) = %s/%s, want parse/EMPTY_RESPONSE", raw, se.Stage, se.Code)
		}
	}

	for _, raw := range []string{"{not json", `["a","b"]`, `"just a string"`} {
		_, err := parseUnified(raw, defaultParseOptions())
		var se *StageError
		if !errors.As(err, &se) {
			t.Fatalf("parseUnified(%q) err = %v, want StageError", raw, err)
		}
		if se.Stage != StageParse || se.Code != CodeParseFailed {
			t.Fatalf("parseUnified(%q) = %s/%s, want parse/PARSE_FAILED", raw, se.Stage, se.Code)
		}
	}
}

func TestParseNewTagRemap(t *testing.T) {
	raw := `{
		"tags": ["programming"],
		"new_tags": ["kuberntes", "golang", "kubernetes"]
	}`
	res, err := parseUnified(raw, defaultParseOptions())
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	// kuberntes is one edit from kubernetes: remapped, not new.
	if got := res.TagRemaps["kuberntes"]; got != "kubernetes" {
		t.Fatalf("remap for kuberntes = %q, want kubernetes", got)
	}
	if len(res.NewTags) != 1 || res.NewTags[0] != "golang" {
		t.Fatalf("NewTags = %v, want [golang]", res.NewTags)
	}
	// Remapped and exact-known candidates still land on the content's tags.
	if got := strings.Join(res.Tags, ","); got != "programming,kubernetes" {
		t.Fatalf("Tags = %s, want programming,kubernetes", got)
	}
}

func TestParseNewTagCap(t *testing.T) {
	opts := defaultParseOptions()
	opts.maxNewTags = 1
	raw := `{"new_tags": ["zig", "odin", "gleam"]}`
	res, err := parseUnified(raw, opts)
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if len(res.NewTags) != 1 || res.NewTags[0] != "zig" {
		t.Fatalf("NewTags = %v, want [zig]", res.NewTags)
	}
}

func TestParseTopicsFilteringAndCap(t *testing.T) {
	opts := defaultParseOptions()
	opts.maxTopics = 2
	raw := `{
		"topics": [
			{"topic": "AI > LLMs", "confidence": "high"},
			{"topic": "AI > LLMs", "confidence": "high"},
			{"topic": "Gossip", "confidence": "low"},
			{"topic": "Systems > Databases", "confidence": 0.8},
			{"topic": "One > Too > Many", "confidence": "high"},
			{"topic": " > > ", "confidence": "high"}
		]
	}`
	res, err := parseUnified(raw, opts)
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("topics = %v, want 2 after dedupe, low-confidence drop, and cap", res.Topics)
	}
	if strings.Join(res.Topics[0].Path, "/") != "AI/LLMs" {
		t.Fatalf("first topic = %v", res.Topics[0].Path)
	}
	if strings.Join(res.Topics[1].Path, "/") != "Systems/Databases" {
		t.Fatalf("second topic = %v", res.Topics[1].Path)
	}
	if res.Topics[1].Confidence != 0.8 {
		t.Fatalf("numeric confidence lost: %v", res.Topics[1].Confidence)
	}
}

func TestParseValidationsMapForm(t *testing.T) {
	raw := `{
		"pre_detected_validations": {
			"LangChain": {"confirmed": true, "edge_type": "uses"},
			"numpy": false,
			"pandas": "discusses",
			"scikit": {"confirmed": true, "edge_type": "not-a-type"}
		}
	}`
	res, err := parseUnified(raw, defaultParseOptions())
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if v, ok := res.ValidationFor("langchain"); !ok || !v.Confirmed || v.EdgeType != entities.EdgeUses {
		t.Fatalf("langchain validation = %+v ok=%v", v, ok)
	}
	if v, ok := res.ValidationFor("numpy"); !ok || v.Confirmed {
		t.Fatalf("numpy should be unconfirmed, got %+v ok=%v", v, ok)
	}
	if v, ok := res.ValidationFor("pandas"); !ok || !v.Confirmed || v.EdgeType != entities.EdgeDiscusses {
		t.Fatalf("pandas edge-type string should confirm, got %+v ok=%v", v, ok)
	}
	if v, ok := res.ValidationFor("scikit"); !ok || v.EdgeType != entities.EdgeMentions {
		t.Fatalf("invalid edge type should default to mentions, got %+v ok=%v", v, ok)
	}
}

func TestParseAdditionalEntityFiltering(t *testing.T) {
	raw := `{
		"additional_entities": [
			{"name": "Helm", "entity_type": "tool", "confidence": "high"},
			{"name": "Helm", "type": "tool", "confidence": "high"},
			{"name": "whatever", "entity_type": "vibe", "confidence": "high"},
			{"name": "longshot", "entity_type": "tool", "confidence": "low"},
			{"entity_type": "tool", "confidence": "high"}
		]
	}`
	res, err := parseUnified(raw, defaultParseOptions())
	if err != nil {
		t.Fatalf("parseUnified: %v", err)
	}
	if len(res.AdditionalEntities) != 1 {
		t.Fatalf("additional entities = %+v, want just Helm", res.AdditionalEntities)
	}
	if res.AdditionalEntities[0].Name != "Helm" {
		t.Fatalf("entity = %+v", res.AdditionalEntities[0])
	}
}

func TestStripJSONFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  \n```json\n{}\n```  ", "{}"},
	}
	for _, c := range cases {
		if got := stripJSONFences(c.in); got != c.want {
			t.Fatalf("stripJSONFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
