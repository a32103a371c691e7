package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/event"
	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

// Reserve converts the race between concurrent duplicate deliveries into a
// storage-level compare-and-set: the unique constraint on
// (merchant_id, order_id, event_type) lets exactly one insert land.
func (r *PGRepository) Reserve(ctx context.Context, key event.Key, payload json.RawMessage) (bool, error) {
	now := time.Now()
	ev := &model.WebhookEvent{
		ID:         uuid.New().String(),
		MerchantID: key.MerchantID,
		OrderID:    key.OrderID,
		EventType:  key.EventType,
		Status:     model.EventStatusInProgress,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
        INSERT INTO webhook_events (
            id, merchant_id, order_id, event_type, status, payload, created_at, updated_at
        )
        VALUES (
            :id, :merchant_id, :order_id, :event_type, :status, :payload, :created_at, :updated_at
        )
        ON CONFLICT (merchant_id, order_id, event_type) DO NOTHING
    `
	res, err := r.DB.NamedExecContext(ctx, query, ev)
	if err != nil {
		return false, fmt.Errorf("failed to reserve event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}

	// The key exists. A failed prior attempt may be reclaimed by exactly one
	// retry, but only when it applied no decrements: re-running an attempt
	// that already mutated counters would count those sales twice.
	// Successful, in-flight and partially applied rows stay untouched.
	reclaim := `
        UPDATE webhook_events
        SET status = $1, payload = $2, error_detail = NULL, updated_at = $3
        WHERE merchant_id = $4 AND order_id = $5 AND event_type = $6 AND status = $7
            AND decrements IS NULL
    `
	res, err = r.DB.ExecContext(ctx, reclaim,
		model.EventStatusInProgress, []byte(payload), time.Now(),
		key.MerchantID, key.OrderID, key.EventType, model.EventStatusFailure,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim failed event: %w", err)
	}
	rows, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *PGRepository) Complete(ctx context.Context, key event.Key, status model.EventStatus, decrements []model.AppliedDecrement, errDetail string) error {
	var decJSON []byte
	if len(decrements) > 0 {
		b, err := json.Marshal(decrements)
		if err != nil {
			return err
		}
		decJSON = b
	}

	var detail *string
	if errDetail != "" {
		detail = &errDetail
	}

	query := `
        UPDATE webhook_events
        SET status = $1, decrements = $2, error_detail = $3, updated_at = $4
        WHERE merchant_id = $5 AND order_id = $6 AND event_type = $7
    `
	_, err := r.DB.ExecContext(ctx, query,
		status, decJSON, detail, time.Now(),
		key.MerchantID, key.OrderID, key.EventType,
	)
	if err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}
	return nil
}

func (r *PGRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]model.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.WebhookEvent
	query := `
        SELECT * FROM webhook_events
        WHERE merchant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `
	err := r.DB.SelectContext(ctx, &events, query, merchantID, limit, offset)
	return events, err
}
