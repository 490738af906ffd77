package env

import (
	"testing"
	"time"
)

func TestStringDefault(t *testing.T) {
	if got := String("FLOORTRACK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("FLOORTRACK_TEST_SET", "value")
	if got := String("FLOORTRACK_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestIntParse(t *testing.T) {
	if got, err := Int("FLOORTRACK_TEST_UNSET", 7); err != nil || got != 7 {
		t.Fatalf("expected default 7, got %d err %v", got, err)
	}
	t.Setenv("FLOORTRACK_TEST_INT", "42")
	if got, err := Int("FLOORTRACK_TEST_INT", 7); err != nil || got != 42 {
		t.Fatalf("expected 42, got %d err %v", got, err)
	}
	t.Setenv("FLOORTRACK_TEST_INT", "forty-two")
	if _, err := Int("FLOORTRACK_TEST_INT", 7); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDurationParse(t *testing.T) {
	t.Setenv("FLOORTRACK_TEST_DURATION", "150ms")
	if got, err := Duration("FLOORTRACK_TEST_DURATION", time.Second); err != nil || got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %v err %v", got, err)
	}
	t.Setenv("FLOORTRACK_TEST_DURATION", "soon")
	if _, err := Duration("FLOORTRACK_TEST_DURATION", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBoolParse(t *testing.T) {
	t.Setenv("FLOORTRACK_TEST_BOOL", "true")
	if got, err := Bool("FLOORTRACK_TEST_BOOL", false); err != nil || !got {
		t.Fatalf("expected true, got %v err %v", got, err)
	}
	t.Setenv("FLOORTRACK_TEST_BOOL", "sure")
	if _, err := Bool("FLOORTRACK_TEST_BOOL", false); err == nil {
		t.Fatalf("expected parse error")
	}
}
