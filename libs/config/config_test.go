package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q (%v)", p, err)
	}
}

func TestTypedValues(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "45m")
	t.Setenv("TEST_LIST", " a, ,b ")

	if n, err := Int("TEST_INT", 1); err != nil || n != 12 {
		t.Fatalf("Int: got %d (%v)", n, err)
	}
	if b, err := Bool("TEST_BOOL", false); err != nil || !b {
		t.Fatalf("Bool: got %v (%v)", b, err)
	}
	if d, err := Duration("TEST_DURATION", time.Minute); err != nil || d != 45*time.Minute {
		t.Fatalf("Duration: got %s (%v)", d, err)
	}
	if l := List("TEST_LIST"); len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("List: got %v", l)
	}

	t.Setenv("TEST_INT", "twelve")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatal("expected Int error")
	}
}

func TestLocation(t *testing.T) {
	t.Setenv("TEST_TZ", "")
	loc, err := Location("TEST_TZ")
	if err != nil || loc != time.Local {
		t.Fatalf("expected time.Local, got %v (%v)", loc, err)
	}
	t.Setenv("TEST_TZ", "UTC")
	loc, err = Location("TEST_TZ")
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("expected UTC, got %v (%v)", loc, err)
	}
	t.Setenv("TEST_TZ", "Mars/Olympus")
	if _, err := Location("TEST_TZ"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
