package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
)

func TestJobEventTerminal(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{domainjobs.StatusPending, false},
		{domainjobs.StatusProcessing, false},
		{domainjobs.StatusCompleted, true},
		{domainjobs.StatusFailed, true},
		{domainjobs.StatusCancelled, true},
		{"", false},
	}
	for _, tc := range cases {
		ev := JobEvent{Status: tc.status}
		if got := ev.Terminal(); got != tc.want {
			t.Fatalf("Terminal(%q): want=%v got=%v", tc.status, tc.want, got)
		}
	}
}

func TestJobEventJSONRoundTrip(t *testing.T) {
	contentID := uuid.New()
	ev := JobEvent{
		JobID:     uuid.New(),
		ContentID: &contentID,
		JobType:   domainjobs.TypeUnifiedEnrich,
		Status:    domainjobs.StatusFailed,
		Stage:     "llm_call",
		Progress:  40,
		Message:   "model unavailable",
		ErrorCode: "LLM_CALL_ERROR",
		EmittedAt: time.Now().UTC().Truncate(time.Second),
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got JobEvent
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.JobID != ev.JobID || got.Status != ev.Status || got.Stage != ev.Stage {
		t.Fatalf("round trip mismatch: want=%+v got=%+v", ev, got)
	}
	if got.ContentID == nil || *got.ContentID != contentID {
		t.Fatalf("content id lost in round trip")
	}
	if got.ErrorCode != "LLM_CALL_ERROR" {
		t.Fatalf("error code: want=LLM_CALL_ERROR got=%s", got.ErrorCode)
	}
}
