package chread

import (
	"testing"
	"time"
)

func TestBuildFilter_ProjectOnly(t *testing.T) {
	where, args := buildFilter(ListEventsParams{ProjectID: "proj_1"})
	if where != "project_id = @project_id" {
		t.Errorf("unexpected where: %s", where)
	}
	if len(args) != 1 {
		t.Errorf("expected 1 arg, got %d", len(args))
	}
}

func TestBuildFilter_AllFilters(t *testing.T) {
	sev := "error"
	hash := "abc"
	start := time.Now().Add(-time.Hour)
	end := time.Now()

	where, args := buildFilter(ListEventsParams{
		ProjectID:   "proj_1",
		Severity:    &sev,
		MessageHash: &hash,
		StartTime:   &start,
		EndTime:     &end,
	})

	want := "project_id = @project_id AND severity = @severity AND message_hash = @message_hash" +
		" AND timestamp >= @start_time AND timestamp <= @end_time"
	if where != want {
		t.Errorf("unexpected where:\n got: %s\nwant: %s", where, want)
	}
	if len(args) != 5 {
		t.Errorf("expected 5 args, got %d", len(args))
	}
}
