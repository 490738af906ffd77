package auditlog

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	valid := Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        "operator-7",
		Action:       "run.login",
		ResourceType: "run",
		ResourceID:   "run-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := map[string]func(Event) Event{
		"zero time":     func(e Event) Event { e.OccurredAt = time.Time{}; return e },
		"no actor":      func(e Event) Event { e.Actor = " "; return e },
		"no action":     func(e Event) Event { e.Action = ""; return e },
		"no resource":   func(e Event) Event { e.ResourceType = ""; return e },
		"no resourceid": func(e Event) Event { e.ResourceID = ""; return e },
	}
	for name, mutate := range cases {
		if err := mutate(valid).Validate(); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}

func TestIntegrityIsStableAndPayloadSensitive(t *testing.T) {
	event := Event{
		OccurredAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Actor:        "operator-7",
		Action:       "skid.closed",
		ResourceType: "skid",
		ResourceID:   "skid-1",
		RequestID:    "req-1",
	}
	payload, _ := json.Marshal(map[string]any{"skid_number": 1})

	first, err := ComputeIntegritySHA256(event, payload)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	second, err := ComputeIntegritySHA256(event, payload)
	if err != nil {
		t.Fatalf("integrity repeat: %v", err)
	}
	if first != second || len(first) != 64 {
		t.Fatalf("expected stable sha256 hex, got %q vs %q", first, second)
	}

	other, _ := json.Marshal(map[string]any{"skid_number": 2})
	changed, err := ComputeIntegritySHA256(event, other)
	if err != nil {
		t.Fatalf("integrity changed payload: %v", err)
	}
	if changed == first {
		t.Fatalf("payload change must change integrity")
	}
}
