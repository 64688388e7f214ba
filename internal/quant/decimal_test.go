package quant

import "testing"

func TestAddSubMul(t *testing.T) {
	a := FromFloat(0.1)
	b := FromFloat(0.2)
	if got := Float64(Add(a, b)); got < 0.29 || got > 0.31 {
		t.Fatalf("Add: expected ~0.3, got %v", got)
	}
	if got := Float64(Mul(FromFloat(2), FromFloat(3))); got != 6 {
		t.Fatalf("Mul: expected 6, got %v", got)
	}
}

func TestClamp(t *testing.T) {
	lo, hi := FromFloat(-1), FromFloat(1)
	if got := Float64(Clamp(FromFloat(1.5), lo, hi)); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	if got := Float64(Clamp(FromFloat(-1.5), lo, hi)); got != -1 {
		t.Fatalf("expected clamp to -1, got %v", got)
	}
	if got := Float64(Clamp(FromFloat(0.5), lo, hi)); got != 0.5 {
		t.Fatalf("expected unclamped 0.5, got %v", got)
	}
}

func TestSignAndIsZero(t *testing.T) {
	if Sign(FromFloat(-2)) != -1 {
		t.Fatalf("expected sign -1")
	}
	if Sign(FromFloat(2)) != 1 {
		t.Fatalf("expected sign 1")
	}
	if !IsZero(Sub(FromFloat(1), FromFloat(1))) {
		t.Fatalf("expected zero")
	}
}
