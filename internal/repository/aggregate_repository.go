package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/db"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

// AggregateRepository persists finalized windowed aggregates in ClickHouse.
// Inserts are idempotent downstream because the table is keyed on
// (account_id, window_start, metric) with a replacing merge tree.
type AggregateRepository struct {
	db *db.ClickHouseClient
}

// NewAggregateRepository creates a new aggregate repository
func NewAggregateRepository(db *db.ClickHouseClient) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// InsertAggregate inserts a finalized windowed aggregate
func (r *AggregateRepository) InsertAggregate(ctx context.Context, agg *models.WindowedAggregate) error {
	query := `
		INSERT INTO windowed_aggregates (
			account_id, window_start, metric, value
		) VALUES (?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		agg.AccountID,
		agg.WindowStart.UTC(),
		string(agg.Metric),
		agg.Value,
	)

	if err != nil {
		return fmt.Errorf("failed to insert aggregate for account %s: %w", agg.AccountID, err)
	}

	return nil
}

// ListAccountAggregates retrieves aggregates for a specific account, most
// recent windows first. metric filters to one aggregate type when non-empty.
func (r *AggregateRepository) ListAccountAggregates(
	ctx context.Context,
	accountID string,
	metric string,
	limit int32,
) ([]*models.WindowedAggregate, error) {
	query := `
		SELECT
			account_id, window_start, metric, toString(value) as value
		FROM windowed_aggregates
		WHERE account_id = ?
	`

	args := []interface{}{accountID}

	if metric != "" {
		query += " AND metric = ?"
		args = append(args, metric)
	}

	query += " ORDER BY window_start DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var aggregates []*models.WindowedAggregate

	for rows.Next() {
		var agg models.WindowedAggregate
		var windowStart time.Time
		var metricName string
		var value string

		err := rows.Scan(
			&agg.AccountID,
			&windowStart,
			&metricName,
			&value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}

		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse aggregate value %q: %w", value, err)
		}

		agg.WindowStart = windowStart
		agg.Metric = models.AggregateMetric(metricName)
		agg.Value = parsed

		aggregates = append(aggregates, &agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregate rows: %w", err)
	}

	return aggregates, nil
}
