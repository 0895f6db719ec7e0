package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Timestamps are accepted both with and without a zone offset; the original
// feed emits local ISO-8601 without offset.
const timestampLayoutNoZone = "2006-01-02T15:04:05"

// TransactionEvent is the JSON payload consumed from the input channel.
// Field names follow the platform-wide transaction schema.
type TransactionEvent struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	Merchant        string          `json:"merchant,omitempty"`
	Location        string          `json:"location,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
	Status          string          `json:"status,omitempty"`
}

// ToTransaction converts a wire event into the domain model, assigning an ID
// and event time at ingress when absent and validating required fields.
func (e *TransactionEvent) ToTransaction(now time.Time) (*Transaction, error) {
	tx := &Transaction{
		AccountID:   e.AccountID,
		Type:        TransactionType(e.TransactionType),
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		Merchant:    e.Merchant,
		Location:    e.Location,
		Status:      TransactionStatusPending,
	}

	if e.ID != "" {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction id %q: %w", e.ID, err)
		}
		tx.ID = id
	} else {
		tx.ID = uuid.New()
	}

	if e.Timestamp != "" {
		ts, err := ParseEventTime(e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
		}
		tx.Timestamp = ts
	} else {
		tx.Timestamp = now.UTC()
	}

	if e.Status != "" {
		tx.Status = TransactionStatus(e.Status)
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	return tx, nil
}

// ParseEventTime parses an ISO-8601 timestamp, with or without a zone offset
func ParseEventTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse(timestampLayoutNoZone, s)
}

// ProcessedTransactionEvent is the wire form published to the processed and
// suspicious sinks after enrichment and scoring.
type ProcessedTransactionEvent struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	Merchant        string          `json:"merchant,omitempty"`
	Location        string          `json:"location,omitempty"`
	Timestamp       string          `json:"timestamp"`
	Status          string          `json:"status"`
	RiskScore       float64         `json:"risk_score"`
	RiskTier        string          `json:"risk_tier"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags"`
}

// ToProcessedEvent converts a scored transaction and its tier assignment into
// the outbound wire form. The caller must ensure the transaction is scored.
func (t *Transaction) ToProcessedEvent(tier RiskTier) ProcessedTransactionEvent {
	var score float64
	if t.RiskScore != nil {
		score = *t.RiskScore
	}
	return ProcessedTransactionEvent{
		ID:              t.ID.String(),
		AccountID:       t.AccountID,
		TransactionType: string(t.Type),
		Amount:          t.Amount,
		Currency:        t.Currency,
		Description:     t.Description,
		Merchant:        t.Merchant,
		Location:        t.Location,
		Timestamp:       t.Timestamp.UTC().Format(time.RFC3339),
		Status:          string(t.Status),
		RiskScore:       score,
		RiskTier:        string(tier),
		Category:        t.Category,
		Tags:            t.Tags,
	}
}
