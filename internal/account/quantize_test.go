package account

import "testing"

func TestQuantizeRoundsToStep(t *testing.T) {
	if got := Quantize(0.0756, 0.001, 0.001); got != 0.076 {
		t.Fatalf("expected 0.076, got %v", got)
	}
}

func TestQuantizeExactMultiplePassesThrough(t *testing.T) {
	if got := Quantize(0.075, 0.001, 0.001); got != 0.075 {
		t.Fatalf("expected 0.075, got %v", got)
	}
}

func TestQuantizeBumpsToMinSize(t *testing.T) {
	if got := Quantize(0.0002, 0.001, 0.001); got != 0.001 {
		t.Fatalf("expected bump to min_size 0.001, got %v", got)
	}
}

func TestQuantizeZeroStaysZero(t *testing.T) {
	if got := Quantize(0, 0.001, 0.001); got != 0 {
		t.Fatalf("expected zero to stay zero, got %v", got)
	}
}

func TestQuantizePreservesSign(t *testing.T) {
	if got := Quantize(-0.0756, 0.001, 0.001); got != -0.076 {
		t.Fatalf("expected -0.076, got %v", got)
	}
	if got := Quantize(-0.0002, 0.001, 0.001); got != -0.001 {
		t.Fatalf("expected negative bump to -0.001, got %v", got)
	}
}
