package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of financial transaction
type TransactionType string

const (
	TransactionTypeDebit      TransactionType = "DEBIT"
	TransactionTypeCredit     TransactionType = "CREDIT"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeRefund     TransactionType = "REFUND"
)

// Valid reports whether the transaction type is one of the known values
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDebit, TransactionTypeCredit, TransactionTypeTransfer,
		TransactionTypeWithdrawal, TransactionTypeDeposit,
		TransactionTypePayment, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
// The stream processor never mutates status; downstream consumers own the
// transaction lifecycle.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusSuspicious TransactionStatus = "SUSPICIOUS"
)

// Spending categories assigned by the enricher
const (
	CategoryFoodAndGroceries = "FOOD_AND_GROCERIES"
	CategoryTransportation   = "TRANSPORTATION"
	CategoryShopping         = "SHOPPING"
	CategoryDining           = "DINING"
	CategoryTravel           = "TRAVEL"
	CategoryEntertainment    = "ENTERTAINMENT"
	CategoryOther            = "OTHER"
)

// RiskTier is the three-way classification produced by the stream router.
// Only the high tier feeds a dedicated sink today; the medium tier is carried
// as a data annotation to keep the contract forward-compatible.
type RiskTier string

const (
	RiskTierHigh   RiskTier = "high"
	RiskTierMedium RiskTier = "medium"
	RiskTierLow    RiskTier = "low"
)

// Transaction is the domain representation of a financial transaction flowing
// through the pipeline. Ownership transfers stage to stage; it is never shared
// across workers.
type Transaction struct {
	ID          uuid.UUID
	AccountID   string
	Type        TransactionType
	Amount      decimal.Decimal
	Currency    string
	Description string
	Merchant    string
	Location    string
	Timestamp   time.Time
	Status      TransactionStatus
	RiskScore   *float64
	Category    string
	Tags        []string
}

// Scored reports whether the risk scorer has run on this transaction.
// Unscored transactions must never reach the branching stage.
func (t *Transaction) Scored() bool {
	return t.RiskScore != nil
}

// Validate checks the invariants a transaction must satisfy before entering
// the pipeline.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}
	if !t.Type.Valid() {
		return fmt.Errorf("unknown transaction type: %s", t.Type)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("amount must be non-negative, got %s", t.Amount)
	}
	if t.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// Alert is the side-effect record emitted for high-value transactions.
// It is not retained in pipeline state.
type Alert struct {
	AlertType string          `json:"alert_type"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// AlertTypeHighValue is emitted once per transaction whose amount exceeds the
// high-value threshold, independent of risk score.
const AlertTypeHighValue = "high_value_transaction"
