package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-pos-store/internal/models"
)

// InsertOutboxEvent records an event in the same transaction as the change it
// describes; the relay publishes it after commit.
func InsertOutboxEvent(ctx context.Context, tx *sql.Tx, eventType string, saleID int64, payload json.RawMessage) (*models.OutboxEvent, error) {
	event := &models.OutboxEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		SaleID:    saleID,
		Payload:   payload,
		Status:    models.OutboxStatusPending,
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO outbox_events (event_id, event_type, sale_id, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		event.EventID, event.EventType, event.SaleID, []byte(event.Payload), event.Status,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create outbox event: %w", err)
	}

	return event, nil
}

// ClaimPendingEvents moves up to limit pending events whose retry delay has
// passed to processing, oldest first. SKIP LOCKED lets several relays drain the
// table without blocking each other.
func ClaimPendingEvents(ctx context.Context, tx *sql.Tx, limit int) ([]models.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, processing_started_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2 AND available_at <= NOW()
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, event_type, sale_id, payload, status, attempts, created_at`

	rows, err := tx.QueryContext(ctx, query, models.OutboxStatusProcessing, models.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var event models.OutboxEvent
		var payload []byte
		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.EventType,
			&event.SaleID,
			&payload,
			&event.Status,
			&event.Attempts,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		event.Payload = json.RawMessage(payload)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func MarkEventProcessed(ctx context.Context, db Querier, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = $1, processed_at = NOW()
		 WHERE id = $2 AND status = $3`,
		models.OutboxStatusProcessed, id, models.OutboxStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	return nil
}

// ReleaseEvent hands a claimed event back to the pending pool after a failed
// publish. It is not claimable again until retryAfter has passed.
func ReleaseEvent(ctx context.Context, db Querier, id int64, retryAfter time.Duration) error {
	_, err := db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = $1,
		     processing_started_at = NULL,
		     attempts = attempts + 1,
		     available_at = NOW() + make_interval(secs => $4)
		 WHERE id = $2 AND status = $3`,
		models.OutboxStatusPending, id, models.OutboxStatusProcessing, retryAfter.Seconds())
	if err != nil {
		return fmt.Errorf("release event %d: %w", id, err)
	}
	return nil
}

// RequeueStaleEvents returns events stuck in processing for longer than the
// given interval (a relay died mid-batch) to pending.
func RequeueStaleEvents(ctx context.Context, db Querier, olderThanSeconds int) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = $1, processing_started_at = NULL
		 WHERE status = $2
		   AND processing_started_at < NOW() - make_interval(secs => $3)`,
		models.OutboxStatusPending, models.OutboxStatusProcessing, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("requeue stale events: %w", err)
	}

	return result.RowsAffected()
}
