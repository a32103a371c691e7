package ledger

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
)

type Repository interface {
	// GetCounter returns the day's counter row, or nil when the day has not
	// been touched yet (caller seeds it from the daily ideal).
	GetCounter(ctx context.Context, storeID, inventoryItemID, operationalDay string) (*model.InventoryCounter, error)

	// GetDailyIdeal returns the configured ideal for the weekday, 0 when
	// none is configured.
	GetDailyIdeal(ctx context.Context, storeID, inventoryItemID string, weekday int) (int, error)

	UpsertCounter(ctx context.Context, counter *model.InventoryCounter) error
}

// Locker is the per-key mutual exclusion the counter read-modify-write
// requires. Satisfied by cache.RedisClient in production.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}
