package reconcile

import (
	"testing"

	"github.com/sirouk/trade-engine/internal/speccache"
)

func dustSpec() speccache.Spec {
	return speccache.Spec{MinSize: 0.001, SizeStep: 0.001, PriceStep: 0.01, MaxSingleOrderSize: 1000, ContractMultiplier: 1, MaxLeverage: 20}
}

func TestResolveQTargetZeroesDustFromFlat(t *testing.T) {
	spec := dustSpec()
	// Raw target rounds to 0 steps: no order should be manufactured from flat.
	if got := resolveQTarget(0.00006, 0, spec); got != 0 {
		t.Fatalf("expected dust target from flat to resolve to zero, got %v", got)
	}
}

func TestResolveQTargetStillBumpsRealAdjustment(t *testing.T) {
	spec := dustSpec()
	// Same raw magnitude, but the position is not flat: min_size still
	// rescues a genuine adjustment that happens to round small.
	if got := resolveQTarget(0.00006, 0.05, spec); got != 0.001 {
		t.Fatalf("expected min_size bump for a non-flat adjustment, got %v", got)
	}
}

func TestResolveQTargetPassesThroughAboveMinSize(t *testing.T) {
	spec := dustSpec()
	if got := resolveQTarget(0.0756, 0, spec); got != 0.076 {
		t.Fatalf("expected 0.076, got %v", got)
	}
}
