package risk

import (
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

// Tier thresholds for the ordered branch predicates
const (
	highTierThreshold   = 0.7
	mediumTierThreshold = 0.3
)

// Classify assigns a risk tier with first-match-wins ordered predicates.
// The tier is an annotation on the transaction, not a partition: every scored
// transaction reaches the processed sink regardless of tier, and only the
// high tier additionally feeds the suspicious sink.
func Classify(score float64) models.RiskTier {
	switch {
	case score > highTierThreshold:
		return models.RiskTierHigh
	case score > mediumTierThreshold:
		return models.RiskTierMedium
	default:
		return models.RiskTierLow
	}
}
