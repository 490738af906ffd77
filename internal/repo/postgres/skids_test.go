package postgres

import (
	"strings"
	"testing"
)

func TestSkidClaimIsAtomic(t *testing.T) {
	if !strings.Contains(claimSkidQuery, "ON CONFLICT (run_id, skid_number) DO NOTHING") {
		t.Fatalf("expected conflict clause on the (run_id, skid_number) index")
	}
	if !strings.Contains(claimSkidQuery, "COALESCE(MAX(skid_number), 0) + 1") {
		t.Fatalf("expected the claim to assign the next contiguous number")
	}
	if !strings.Contains(claimSkidQuery, "RETURNING") {
		t.Fatalf("expected the claim to return the inserted row")
	}
}

func TestCloseQueriesGuardOpenRows(t *testing.T) {
	for name, query := range map[string]string{
		"close skid": closeSkidQuery,
		"close run":  closeRunQuery,
	} {
		if !strings.Contains(query, "ended_at IS NULL") {
			t.Fatalf("%s must only touch open rows", name)
		}
	}
	if !strings.Contains(closeSkidQuery, "skid_number = $5") {
		t.Fatalf("close skid must address the skid by number")
	}
}

func TestOpenSkidSelectsHighestOpenNumber(t *testing.T) {
	if !strings.Contains(selectOpenSkidQuery, "ended_at IS NULL") {
		t.Fatalf("open skid lookup must filter on the end stamp")
	}
	if !strings.Contains(selectOpenSkidQuery, "ORDER BY skid_number DESC") {
		t.Fatalf("open skid lookup must take the highest number")
	}
}

func TestStageFlagQueriesGuardUnstartedRows(t *testing.T) {
	for name, query := range map[string]string{
		"by skid": clearOpenBySkidQuery,
		"by run":  clearOpenByRunQuery,
	} {
		if !strings.Contains(query, "started_at IS NULL") {
			t.Fatalf("clear open %s must not touch started rows", name)
		}
		if !strings.Contains(query, "open = FALSE") {
			t.Fatalf("clear open %s must flip the flag off", name)
		}
	}
	if !strings.Contains(clearOpenBySkidQuery, "skid_number = $4") {
		t.Fatalf("skid-scoped propagation must match the skid number")
	}
}

func TestScheduleCloseIsIdempotent(t *testing.T) {
	if !strings.Contains(closeScheduleEntryQuery, "closed = FALSE") {
		t.Fatalf("schedule close must only affect entries still open")
	}
}
