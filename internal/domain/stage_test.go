package domain

import "testing"

func TestNormalizeStage(t *testing.T) {
	cases := map[string]Stage{
		"press":         StagePress,
		" Pressing ":    StagePress,
		"SINTER":        StageSinter,
		"sintering":     StageSinter,
		"assembly":      StageAssembly,
		"molding":       StageMolding,
		"secondary_ops": StageSecondary,
		"paint":         "",
		"":              "",
	}
	for input, expected := range cases {
		if got := NormalizeStage(input); got != expected {
			t.Fatalf("NormalizeStage(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestNextStageRouting(t *testing.T) {
	if next, ok := NextStage(StagePress); !ok || next != StageSinter {
		t.Fatalf("expected press -> sinter, got %q ok=%v", next, ok)
	}
	if next, ok := NextStage(StageSinter); !ok || next != StageAssembly {
		t.Fatalf("expected sinter -> assembly, got %q ok=%v", next, ok)
	}
	if next, ok := NextStage(StageMolding); !ok || next != StageSecondary {
		t.Fatalf("expected molding -> secondary, got %q ok=%v", next, ok)
	}
	if _, ok := NextStage(StageAssembly); ok {
		t.Fatalf("assembly must be terminal")
	}
	if _, ok := NextStage(StageSecondary); ok {
		t.Fatalf("secondary must be terminal")
	}
}

func TestCountPtr(t *testing.T) {
	if ptr := UnknownCount().Ptr(); ptr != nil {
		t.Fatalf("unknown count must render as nil, got %v", *ptr)
	}
	ptr := KnownCount(0).Ptr()
	if ptr == nil || *ptr != 0 {
		t.Fatalf("a known zero is a real reading, got %v", ptr)
	}
	ptr = KnownCount(250).Ptr()
	if ptr == nil || *ptr != 250 {
		t.Fatalf("expected 250, got %v", ptr)
	}
}
