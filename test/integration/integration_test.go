package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/api"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/db"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/messaging"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/metrics"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/repository"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/stream"
)

const (
	testExchange       = "test.fintech.transactions"
	testQueue          = "test.stream-processor.transactions.input"
	testRoutingKey     = "test.transactions.input"
	testSinkProcessed  = "test.transactions.processed"
	testSinkSuspicious = "test.transactions.suspicious"
	testSinkAggregated = "test.transactions.aggregated"
	testSinkAlerts     = "test.transactions.alerts"
)

func TestFullIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, clickhouseHost, clickhousePassword, err := startClickHouseContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer clickhouseContainer.Terminate(ctx)

	t.Logf("ClickHouse started at: %s", clickhouseHost)

	// Start RabbitMQ container
	rabbitmqContainer, rabbitmqURL, err := startRabbitMQContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start RabbitMQ container: %v", err)
	}
	defer rabbitmqContainer.Terminate(ctx)

	t.Logf("RabbitMQ started at: %s", rabbitmqURL)

	// Initialize ClickHouse client
	clickhouseCfg := config.ClickHouseConfig{
		Host:     clickhouseHost,
		Database: "default",
		User:     "default",
		Password: clickhousePassword,
	}

	clickhouseClient, err := db.NewClickHouseClient(clickhouseCfg)
	if err != nil {
		t.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer clickhouseClient.Close()

	// Create schema
	if err := createSchema(ctx, clickhouseClient); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	// Initialize repository
	repo := repository.NewAggregateRepository(clickhouseClient)

	log := zerolog.Nop()

	rabbitmqCfg := config.RabbitMQConfig{
		URL:        rabbitmqURL,
		Exchange:   testExchange,
		Queue:      testQueue,
		RoutingKey: testRoutingKey,
		Sinks: config.SinkConfig{
			Processed:  testSinkProcessed,
			Suspicious: testSinkSuspicious,
			Aggregated: testSinkAggregated,
			Alerts:     testSinkAlerts,
		},
	}

	streamCfg := config.StreamConfig{
		WorkerCount:    2,
		CommitInterval: 200 * time.Millisecond,
		CountWindow:    5 * time.Minute,
		SumWindow:      time.Hour,
		PublishRetry:   100 * time.Millisecond,
	}

	// Wire the pipeline: publisher, processor, consumer
	publisher, err := messaging.NewRabbitMQPublisher(rabbitmqCfg, streamCfg, metrics.Noop{}, log)
	if err != nil {
		t.Fatalf("Failed to create RabbitMQ publisher: %v", err)
	}
	defer publisher.Close()

	processor := stream.NewProcessor(streamCfg, publisher, repo, metrics.Noop{}, log)

	consumer, err := messaging.NewRabbitMQConsumer(rabbitmqCfg, processor, log)
	if err != nil {
		t.Fatalf("Failed to create RabbitMQ consumer: %v", err)
	}
	defer consumer.Close()

	// Capture sink output before anything is published
	processedMsgs := captureSink(t, rabbitmqURL, testSinkProcessed)
	suspiciousMsgs := captureSink(t, rabbitmqURL, testSinkSuspicious)
	aggregatedMsgs := captureSink(t, rabbitmqURL, testSinkAggregated)
	alertMsgs := captureSink(t, rabbitmqURL, testSinkAlerts)

	procCtx, cancelProcessor := context.WithCancel(ctx)
	defer cancelProcessor()

	processorDone := make(chan error, 1)
	go func() {
		processorDone <- processor.Run(procCtx)
	}()

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()

	go func() {
		if err := consumer.Start(consumerCtx); err != nil && err != context.Canceled {
			t.Logf("Consumer error: %v", err)
		}
	}()

	// Wait for consumer to initialize
	time.Sleep(2 * time.Second)

	// Publish a high-risk transaction: large amount, gambling merchant,
	// international location, small-hours timestamp. The event time is pinned
	// to 02:30 UTC of the current day so the night-hours risk contribution is
	// deterministic.
	testAccountID := "acc-123"
	testTransactionID := "7d444840-9dc0-11d1-b245-5ffdce74fad2"

	now := time.Now().UTC()
	eventTime := time.Date(now.Year(), now.Month(), now.Day(), 2, 30, 0, 0, time.UTC)

	event := models.TransactionEvent{
		ID:              testTransactionID,
		AccountID:       testAccountID,
		TransactionType: string(models.TransactionTypePayment),
		Amount:          decimal.RequireFromString("12000"),
		Currency:        "USD",
		Description:     "table games",
		Merchant:        "Lucky Casino",
		Location:        "International - Macau",
		Timestamp:       eventTime.Format(time.RFC3339),
	}

	if err := publishTransactionEvent(rabbitmqURL, event); err != nil {
		t.Fatalf("Failed to publish test event: %v", err)
	}

	t.Log("Published transaction event to RabbitMQ")

	// Wait for event to be processed
	time.Sleep(3 * time.Second)

	// Verify the processed sink received the scored record
	processed := receiveJSON[models.ProcessedTransactionEvent](t, processedMsgs, "processed sink")
	if processed.ID != testTransactionID {
		t.Errorf("Expected transaction ID %s, got %s", testTransactionID, processed.ID)
	}
	if processed.RiskScore != 1.0 {
		t.Errorf("Expected risk score 1.0, got %f", processed.RiskScore)
	}
	if processed.RiskTier != string(models.RiskTierHigh) {
		t.Errorf("Expected high risk tier, got %s", processed.RiskTier)
	}
	if processed.Status != string(models.TransactionStatusPending) {
		t.Errorf("Expected PENDING status, got %s", processed.Status)
	}

	// High-risk branch also lands on the suspicious sink
	suspicious := receiveJSON[models.ProcessedTransactionEvent](t, suspiciousMsgs, "suspicious sink")
	if suspicious.ID != testTransactionID {
		t.Errorf("Expected transaction ID %s on suspicious sink, got %s", testTransactionID, suspicious.ID)
	}

	// Amount above 5000 raises a high-value alert
	alert := receiveJSON[models.Alert](t, alertMsgs, "alerts sink")
	if alert.AlertType != models.AlertTypeHighValue {
		t.Errorf("Expected alert type %s, got %s", models.AlertTypeHighValue, alert.AlertType)
	}
	if alert.AccountID != testAccountID {
		t.Errorf("Expected alert account %s, got %s", testAccountID, alert.AccountID)
	}

	t.Log("Verified processed, suspicious and alert sinks")

	// Shut the processor down gracefully; any still-open windows flush on drain
	cancelProcessor()
	select {
	case err := <-processorDone:
		if err != nil {
			t.Fatalf("Processor exited with error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Processor did not shut down in time")
	}

	// Wait for the last aggregates to land
	time.Sleep(2 * time.Second)

	// One transaction produces one count window and one sum window
	seen := map[string]string{}
	for i := 0; i < 2; i++ {
		agg := receiveJSON[models.WindowedAggregateEvent](t, aggregatedMsgs, "aggregated sink")
		if agg.AccountID != testAccountID {
			t.Errorf("Expected aggregate account %s, got %s", testAccountID, agg.AccountID)
		}
		seen[agg.Metric] = agg.Value
	}
	if seen[string(models.MetricTransactionCount)] != "1" {
		t.Errorf("Expected transaction count 1, got %q", seen[string(models.MetricTransactionCount)])
	}
	if seen[string(models.MetricTotalAmount)] != "12000" {
		t.Errorf("Expected total amount 12000, got %q", seen[string(models.MetricTotalAmount)])
	}

	// Verify aggregates in ClickHouse
	aggregates, err := repo.ListAccountAggregates(ctx, testAccountID, "", 10)
	if err != nil {
		t.Fatalf("Failed to query aggregates from ClickHouse: %v", err)
	}

	if len(aggregates) != 2 {
		t.Fatalf("Expected 2 aggregates in ClickHouse, got %d", len(aggregates))
	}

	t.Logf("Found %d aggregates in ClickHouse", len(aggregates))

	// Verify aggregates via the HTTP API
	router := api.NewRouter(api.NewHandler(repo, log), prometheus.NewRegistry())
	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/accounts/%s/aggregates", testAccountID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from aggregate API, got %d", rec.Code)
	}

	var apiResp struct {
		AccountID  string                          `json:"account_id"`
		Aggregates []models.WindowedAggregateEvent `json:"aggregates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &apiResp); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	if len(apiResp.Aggregates) != 2 {
		t.Fatalf("Expected 2 aggregates from API, got %d", len(apiResp.Aggregates))
	}

	t.Log("✓ Integration test passed: RabbitMQ → processor → sinks, ClickHouse and HTTP API")
}

func startClickHouseContainer(ctx context.Context) (*clickhouse.ClickHouseContainer, string, string, error) {
	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:23.3.8.21-alpine",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("clickhouse"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to start ClickHouse container: %w", err)
	}

	host, err := clickhouseContainer.ConnectionHost(ctx)
	if err != nil {
		return nil, "", "", err
	}

	return clickhouseContainer, host, "clickhouse", nil
}

func startRabbitMQContainer(ctx context.Context) (testcontainers.Container, string, error) {
	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-management",
		rabbitmq.WithAdminUsername("guest"),
		rabbitmq.WithAdminPassword("guest"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	connectionString, err := rabbitmqContainer.AmqpURL(ctx)
	if err != nil {
		return nil, "", err
	}

	return rabbitmqContainer, connectionString, nil
}

func createSchema(ctx context.Context, client *db.ClickHouseClient) error {
	query := `
	CREATE TABLE IF NOT EXISTS windowed_aggregates (
		account_id String,
		window_start DateTime64(3),
		metric String,
		value Decimal(18, 2),
		created_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree()
	ORDER BY (account_id, window_start, metric)
	PRIMARY KEY (account_id, window_start, metric)
	`

	return client.Conn().Exec(ctx, query)
}

// captureSink binds a throwaway queue to a sink routing key and forwards every
// delivery body into the returned channel.
func captureSink(t *testing.T, rabbitmqURL, routingKey string) <-chan []byte {
	t.Helper()

	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		t.Fatalf("Failed to connect to RabbitMQ for sink capture: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("Failed to open channel for sink capture: %v", err)
	}

	err = ch.ExchangeDeclare(testExchange, "topic", true, false, false, false, nil)
	if err != nil {
		t.Fatalf("Failed to declare exchange for sink capture: %v", err)
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("Failed to declare capture queue: %v", err)
	}

	if err := ch.QueueBind(queue.Name, routingKey, testExchange, false, nil); err != nil {
		t.Fatalf("Failed to bind capture queue: %v", err)
	}

	msgs, err := ch.Consume(queue.Name, "", true, false, false, false, nil)
	if err != nil {
		t.Fatalf("Failed to consume capture queue: %v", err)
	}

	out := make(chan []byte, 16)
	go func() {
		for msg := range msgs {
			out <- msg.Body
		}
	}()

	return out
}

func receiveJSON[T any](t *testing.T, msgs <-chan []byte, sink string) T {
	t.Helper()

	var v T
	select {
	case body := <-msgs:
		if err := json.Unmarshal(body, &v); err != nil {
			t.Fatalf("Failed to decode message from %s: %v", sink, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Timed out waiting for message on %s", sink)
	}
	return v
}

func publishTransactionEvent(rabbitmqURL string, event models.TransactionEvent) error {
	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.Publish(
		testExchange,   // exchange
		testRoutingKey, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
