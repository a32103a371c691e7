package webhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fekuna/omnipos-ingestion-service/internal/webhook/dto"
)

// ErrMissingItems means the payload carried no line items and the
// order-detail API could not supply them either.
var ErrMissingItems = errors.New("order has no line items")

// ErrDecrementFailed means at least one resolved decrement could not be
// applied; the whole event is recorded as failed.
var ErrDecrementFailed = errors.New("one or more decrements failed")

type UseCase interface {
	// Process drives one webhook delivery end to end: authenticate, reserve,
	// classify, obtain items, decrement, finalize.
	Process(ctx context.Context, token string, rawBody json.RawMessage, payload *dto.RawPayload) (*dto.ProcessResult, error)
}

// Producer publishes applied-decrement events for downstream consumers
// (replenishment, romaneio). Best-effort; may be nil.
type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Indexer mirrors finished audit records into the search index backing the
// reporting views. Best-effort; may be nil.
type Indexer interface {
	CreateIndex(ctx context.Context, index, mapping string) error
	Index(ctx context.Context, index, id string, doc interface{}) error
}
