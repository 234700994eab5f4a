package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		expected string
	}{
		{Assigned, "assigned"},
		{ConflictNotified, "conflict_notified"},
		{Unauthorized, "unauthorized"},
		{InputInvalid, "input_invalid"},
		{OutcomeUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.outcome.String(); got != tt.expected {
				t.Errorf("Outcome.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOutcomeJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Outcome{"outcome": ConflictNotified})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"outcome":"conflict_notified"}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var decoded struct {
		Outcome Outcome `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(`{"outcome":"unauthorized"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Outcome != Unauthorized {
		t.Errorf("decoded outcome = %v, want %v", decoded.Outcome, Unauthorized)
	}

	if err := json.Unmarshal([]byte(`{"outcome":"maybe"}`), &decoded); err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestEngagementActive(t *testing.T) {
	var nilEngagement *Engagement
	if nilEngagement.Active() {
		t.Error("nil engagement must not be active")
	}

	e := &Engagement{Project: "Alpha", Vendor: "Acme", Type: EngagementTypePrime, Start: Date(time.Now())}
	if !e.Active() {
		t.Error("engagement without end should be active")
	}

	end := Date(time.Now())
	e.End = &end
	if e.Active() {
		t.Error("engagement with end should be closed")
	}
}

func TestDateTruncates(t *testing.T) {
	in := time.Date(2024, 3, 9, 23, 59, 1, 5, time.FixedZone("x", -3600))
	got := Date(in)
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Date() = %v, want %v", got, want)
	}
}
