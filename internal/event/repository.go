package event

import (
	"context"
	"encoding/json"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
)

// Key is the idempotency key: one processing attempt per tuple.
type Key struct {
	MerchantID string
	OrderID    string
	EventType  string
}

type Repository interface {
	// Reserve claims the key by inserting the audit row. It returns false
	// when another delivery already holds the key — the caller must
	// short-circuit and answer success so the sender stops retrying.
	// A failed attempt that applied no decrements is reclaimable: its row
	// flips back to in_progress and Reserve returns true. A partial failure
	// is not — re-processing would double-count what already landed, so its
	// retries are absorbed like duplicates.
	Reserve(ctx context.Context, key Key, payload json.RawMessage) (bool, error)

	// Complete finalizes the reserved row. It never inserts.
	Complete(ctx context.Context, key Key, status model.EventStatus, decrements []model.AppliedDecrement, errDetail string) error

	// ListByMerchant is the read path for the reporting/audit views.
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]model.WebhookEvent, error)
}
