package outbox_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/outbox"
	"github.com/safar/go-pos-store/internal/sales"
	"github.com/safar/go-pos-store/internal/store"
	"github.com/safar/go-pos-store/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	mu       sync.Mutex
	events   []models.OutboxEvent
	attempts int
	err      error
	// failSale makes publishing events of that sale fail.
	failSale int64
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil {
		return p.err
	}
	if p.failSale != 0 && event.SaleID == p.failSale {
		return errors.New("message too large")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *recordingPublisher) published() []models.OutboxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OutboxEvent(nil), p.events...)
}

func TestRelayPublishesSaleEvents(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	user, err := store.CreateUser(ctx, db, "cashier@example.com", "Cashier")
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, db, store.CreateProductParams{
		SKU:         "RELAY-001",
		Name:        "Relay Product",
		Price:       decimal.RequireFromString("10.00"),
		Stock:       10,
		TaxEligible: true,
	})
	require.NoError(t, err)

	svc := sales.NewService(sales.NewPostgresTransactor(db, 3), sales.NewPostgresReader(db),
		sales.Options{TaxRate: decimal.RequireFromString("0.18")}, logger)

	result, err := svc.RegisterSale(ctx, sales.RegisterSaleRequest{
		UserID:        user.ID,
		PaymentMethod: "cash",
		Lines:         []sales.LineRequest{{ProductID: product.ID, Quantity: 1, UnitPrice: product.Price}},
	})
	require.NoError(t, err)

	t.Run("failed publish leaves the event pending", func(t *testing.T) {
		publisher := &recordingPublisher{err: errors.New("broker not available")}
		relay := outbox.NewRelay(db, publisher, outbox.Options{BatchSize: 10, RetryBackoff: time.Minute}, logger)

		published, err := relay.ProcessBatch(ctx)
		assert.ErrorIs(t, err, outbox.ErrPublishFailed)
		assert.Zero(t, published)

		var (
			status   string
			attempts int
			delayed  bool
		)
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT status, attempts, available_at > NOW() FROM outbox_events WHERE sale_id = $1`,
			result.Sale.ID).Scan(&status, &attempts, &delayed))
		assert.Equal(t, models.OutboxStatusPending, status)
		assert.Equal(t, 1, attempts)
		assert.True(t, delayed)

		published, err = relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, published, "event is not retried before its delay")
		assert.Equal(t, 1, publisher.attemptCount())

		_, err = db.ExecContext(ctx, `UPDATE outbox_events SET available_at = NOW()`)
		require.NoError(t, err)
	})

	t.Run("successful publish marks the event processed", func(t *testing.T) {
		publisher := &recordingPublisher{}
		relay := outbox.NewRelay(db, publisher, outbox.Options{BatchSize: 10}, logger)

		published, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, published)

		events := publisher.published()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventSaleRegistered, events[0].EventType)
		assert.Equal(t, result.Sale.ID, events[0].SaleID)
		assert.Contains(t, string(events[0].Payload), result.Sale.SaleNumber)

		var status string
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT status FROM outbox_events WHERE sale_id = $1`, result.Sale.ID).Scan(&status))
		assert.Equal(t, models.OutboxStatusProcessed, status)

		published, err = relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
	})

	t.Run("run drains cancellation events", func(t *testing.T) {
		publisher := &recordingPublisher{}
		relay := outbox.NewRelay(db, publisher, outbox.Options{
			PollInterval: time.Hour,
			BatchSize:    10,
		}, logger)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- relay.Run(runCtx) }()

		_, err := svc.CancelSale(ctx, result.Sale.ID)
		require.NoError(t, err)

		// the event may land after Run's first pass; poll instead of waiting an hour
		require.Eventually(t, func() bool {
			_, _ = relay.ProcessBatch(ctx)
			for _, e := range publisher.published() {
				if e.EventType == models.EventSaleCancelled {
					return true
				}
			}
			return false
		}, 10*time.Second, 50*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})
}

func insertEvents(t *testing.T, db *sql.DB, saleIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, id := range saleIDs {
			if _, err := store.InsertOutboxEvent(ctx, tx, models.EventSaleRegistered, id, []byte(`{}`)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRelayWaitsOutBrokerOutage(t *testing.T) {
	db := testutil.SetupPostgres(t)
	insertEvents(t, db, 1, 2, 3, 4, 5)

	publisher := &recordingPublisher{err: errors.New("broker not available")}
	relay := outbox.NewRelay(db, publisher, outbox.Options{
		PollInterval: 20 * time.Millisecond,
		BatchSize:    2,
		RetryBackoff: time.Hour,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, relay.Run(ctx))

	// every event is tried once, then held back for its retry delay
	assert.Equal(t, 5, publisher.attemptCount())
}

func TestRelayFailingEventDoesNotBlockOthers(t *testing.T) {
	db := testutil.SetupPostgres(t)
	ctx := context.Background()
	insertEvents(t, db, 1, 2, 3)

	publisher := &recordingPublisher{failSale: 1}
	relay := outbox.NewRelay(db, publisher, outbox.Options{
		BatchSize:    1,
		RetryBackoff: time.Hour,
	}, zaptest.NewLogger(t))

	published, err := relay.ProcessBatch(ctx)
	assert.ErrorIs(t, err, outbox.ErrPublishFailed)
	assert.Zero(t, published)

	for _, want := range []int64{2, 3} {
		published, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, published)

		events := publisher.published()
		assert.Equal(t, want, events[len(events)-1].SaleID)
	}

	published, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, published)
}
