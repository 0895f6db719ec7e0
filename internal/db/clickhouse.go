package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
)

const (
	dialTimeout = 5 * time.Second
	pingTimeout = 5 * time.Second
)

// ClickHouseClient owns the native-protocol connection shared by the
// aggregate writer and the read API.
type ClickHouseClient struct {
	conn driver.Conn
}

// NewClickHouseClient opens a ClickHouse connection and verifies it with a
// bounded ping. The workload is small single-row aggregate inserts plus
// occasional account-scoped reads, so the pool is kept modest and payloads
// are LZ4-compressed.
func NewClickHouseClient(cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseClient{conn: conn}, nil
}

// Conn returns the underlying driver connection
func (c *ClickHouseClient) Conn() driver.Conn {
	return c.conn
}

// Close closes the ClickHouse connection
func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
