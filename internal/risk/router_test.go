package risk

import (
	"testing"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		score    float64
		expected models.RiskTier
	}{
		{0.0, models.RiskTierLow},
		{0.3, models.RiskTierLow},
		{0.30000000001, models.RiskTierMedium},
		{0.5, models.RiskTierMedium},
		{0.7, models.RiskTierMedium},
		{0.71, models.RiskTierHigh},
		{1.0, models.RiskTierHigh},
	}

	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.expected {
			t.Errorf("Classify(%f): expected %s, got %s", tt.score, tt.expected, got)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := Classify(0.85); got != models.RiskTierHigh {
			t.Fatalf("expected high tier on run %d, got %s", i, got)
		}
	}
}
