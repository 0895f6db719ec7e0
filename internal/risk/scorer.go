package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

var (
	highAmountThreshold     = decimal.NewFromInt(10000)
	elevatedAmountThreshold = decimal.NewFromInt(1000)
)

// Scorer computes a deterministic risk score in [0, 1] from transaction
// attributes. It is a pure function of its input and keeps no state.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the additive risk score for a transaction, clamped to 1.0
func (s *Scorer) Score(tx *models.Transaction) float64 {
	score := 0.0

	// Amount-based risk, mutually exclusive thresholds
	if tx.Amount.GreaterThan(highAmountThreshold) {
		score += 0.3
	} else if tx.Amount.GreaterThan(elevatedAmountThreshold) {
		score += 0.1
	}

	// Location-based risk
	if strings.Contains(strings.ToLower(tx.Location), "international") {
		score += 0.2
	}

	// Time-based risk: night transactions
	hour := tx.Timestamp.Hour()
	if hour < 6 || hour > 22 {
		score += 0.1
	}

	// Merchant-based risk, mutually exclusive groups
	merchant := strings.ToLower(tx.Merchant)
	if strings.Contains(merchant, "gambling") || strings.Contains(merchant, "casino") {
		score += 0.4
	} else if strings.Contains(merchant, "crypto") || strings.Contains(merchant, "bitcoin") {
		score += 0.3
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
