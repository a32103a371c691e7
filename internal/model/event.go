package model

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusSuccess    EventStatus = "success"
	EventStatusFailure    EventStatus = "failure"
)

// WebhookEvent is the audit record and idempotency anchor of the ingestion
// pipeline. The (merchant_id, order_id, event_type) tuple is enforced unique
// by the store; whichever concurrent delivery inserts first wins the right
// to process.
type WebhookEvent struct {
	ID          string          `db:"id"`
	MerchantID  string          `db:"merchant_id"`
	OrderID     string          `db:"order_id"`
	EventType   string          `db:"event_type"`
	Status      EventStatus     `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Decrements  json.RawMessage `db:"decrements"` // []AppliedDecrement
	ErrorDetail *string         `db:"error_detail"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// AppliedDecrement records one counter mutation performed for an event.
type AppliedDecrement struct {
	StoreID         string `json:"store_id"`
	InventoryItemID string `json:"inventory_item_id"`
	ExternalID      int64  `json:"external_id"`
	ExternalName    string `json:"external_name"`
	Quantity        int    `json:"quantity"`
	IdealForDay     int    `json:"ideal_for_day"`
	Remaining       int    `json:"remaining"`
}
