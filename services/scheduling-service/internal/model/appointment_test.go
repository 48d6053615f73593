package model

import "testing"

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Cancelled ")
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if s != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", s)
	}
	if _, err := ParseStatus("booked"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, true},
		{StatusScheduled, Status("booked"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
	if StatusCancelled.Blocks() {
		t.Fatal("cancelled must not block")
	}
	if !StatusCompleted.Blocks() {
		t.Fatal("completed must block")
	}
}
