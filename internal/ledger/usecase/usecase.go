package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/ledger"
	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lockTTL        = 5 * time.Second
	lockAttempts   = 3
	lockRetryDelay = 100 * time.Millisecond
)

type ledgerUseCase struct {
	repo     ledger.Repository
	locker   ledger.Locker
	location *time.Location
	logger   logger.ZapLogger
	now      func() time.Time
}

func NewLedgerUseCase(repo ledger.Repository, locker ledger.Locker, location *time.Location, log logger.ZapLogger) ledger.UseCase {
	return &ledgerUseCase{
		repo:     repo,
		locker:   locker,
		location: location,
		logger:   log,
		now:      time.Now,
	}
}

func (uc *ledgerUseCase) ApplyDecrement(ctx context.Context, storeID, inventoryItemID string, quantity int) (*ledger.DecrementResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	// The business day boundary is a wall-clock concept in the store's
	// timezone, not UTC.
	localNow := uc.now().In(uc.location)
	day := localNow.Format("2006-01-02")
	weekday := int(localNow.Weekday())

	// Serialize read-modify-write per (store, item, day). The lock key never
	// spans unrelated stores or items.
	lockKey := fmt.Sprintf("lock:counter:%s:%s:%s", storeID, inventoryItemID, day)
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < lockAttempts; i++ {
		ok, err := uc.locker.AcquireLock(ctx, lockKey, lockValue, lockTTL)
		if err != nil {
			uc.logger.Error("failed to acquire counter lock", zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(lockRetryDelay)
	}
	if !acquired {
		return nil, ledger.ErrCounterBusy
	}
	defer uc.locker.ReleaseLock(ctx, lockKey, lockValue)

	// Ideal is re-read on every write so a same-day configuration change is
	// picked up; cumulative_sold is only ever reset by a new day's row.
	ideal, err := uc.repo.GetDailyIdeal(ctx, storeID, inventoryItemID, weekday)
	if err != nil {
		return nil, err
	}

	counter, err := uc.repo.GetCounter(ctx, storeID, inventoryItemID, day)
	if err != nil {
		return nil, err
	}

	writeTime := uc.now()
	if counter == nil {
		counter = &model.InventoryCounter{
			ID:              uuid.New().String(),
			StoreID:         storeID,
			InventoryItemID: inventoryItemID,
			OperationalDay:  day,
			CumulativeSold:  quantity,
		}
	} else {
		counter.CumulativeSold += quantity
	}
	counter.IdealForDay = ideal
	counter.Remaining = remaining(ideal, counter.CumulativeSold)
	counter.LastAppliedAt = writeTime
	counter.LastAppliedQuantity = quantity
	counter.UpdatedAt = writeTime

	if err := uc.repo.UpsertCounter(ctx, counter); err != nil {
		return nil, err
	}

	return &ledger.DecrementResult{
		OperationalDay: day,
		IdealForDay:    counter.IdealForDay,
		CumulativeSold: counter.CumulativeSold,
		Remaining:      counter.Remaining,
	}, nil
}

func remaining(ideal, sold int) int {
	if sold >= ideal {
		return 0
	}
	return ideal - sold
}
