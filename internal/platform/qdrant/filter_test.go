package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterMapSubset(t *testing.T) {
	filter := map[string]any{
		"kind": "chunk",
		"content_id": map[string]any{
			"$in": []any{"content-1", "content-2"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	kindCond := findConditionByKey(got.Must, "kind")
	if kindCond == nil {
		t.Fatalf("missing kind condition")
	}
	kindMatch, ok := kindCond["match"].(map[string]any)
	if !ok || kindMatch["value"] != "chunk" {
		t.Fatalf("kind match: got=%v", kindCond["match"])
	}

	idCond := findConditionByKey(got.Must, "content_id")
	if idCond == nil {
		t.Fatalf("missing content_id condition")
	}
	idMatch, ok := idCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("content_id match type: got=%T", idCond["match"])
	}
	anyVals, ok := idMatch["any"].([]any)
	if !ok {
		t.Fatalf("content_id any type: got=%T", idMatch["any"])
	}
	if len(anyVals) != 2 || anyVals[0] != "content-1" || anyVals[1] != "content-2" {
		t.Fatalf("content_id any values: got=%v", anyVals)
	}
}

func TestTranslateFilterMapNeAndNot(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"tier": map[string]any{
			"$ne": "D",
		},
		"$not": map[string]any{
			"kind": "summary",
		},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.MustNot) != 2 {
		t.Fatalf("must_not length: want=2 got=%d", len(got.MustNot))
	}
}

func TestTranslateFilterMapOr(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"$or": []any{
			map[string]any{"tier": "S"},
			map[string]any{"tier": "A"},
		},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Should) != 2 {
		t.Fatalf("should length: want=2 got=%d", len(got.Should))
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"kind": map[string]any{
			"$gt": 2,
		},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	var typed *OperationError
	if !errors.As(err, &typed) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if typed.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, typed.Code)
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
