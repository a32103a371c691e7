package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetCounter(ctx context.Context, storeID, inventoryItemID, operationalDay string) (*model.InventoryCounter, error) {
	var counter model.InventoryCounter
	query := `
        SELECT * FROM inventory_counters
        WHERE store_id = $1 AND inventory_item_id = $2 AND operational_day = $3
    `
	err := r.DB.GetContext(ctx, &counter, query, storeID, inventoryItemID, operationalDay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // First touch of the day; caller seeds from the ideal
		}
		return nil, err
	}
	return &counter, nil
}

func (r *PGRepository) GetDailyIdeal(ctx context.Context, storeID, inventoryItemID string, weekday int) (int, error) {
	var ideal int
	query := `
        SELECT ideal_quantity FROM daily_ideals
        WHERE store_id = $1 AND inventory_item_id = $2 AND weekday = $3
    `
	err := r.DB.GetContext(ctx, &ideal, query, storeID, inventoryItemID, weekday)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return ideal, nil
}

func (r *PGRepository) UpsertCounter(ctx context.Context, counter *model.InventoryCounter) error {
	query := `
        INSERT INTO inventory_counters (
            id, store_id, inventory_item_id, operational_day,
            ideal_for_day, cumulative_sold, remaining,
            last_applied_at, last_applied_quantity, updated_at
        )
        VALUES (
            :id, :store_id, :inventory_item_id, :operational_day,
            :ideal_for_day, :cumulative_sold, :remaining,
            :last_applied_at, :last_applied_quantity, :updated_at
        )
        ON CONFLICT (store_id, inventory_item_id, operational_day)
        DO UPDATE SET
            ideal_for_day = EXCLUDED.ideal_for_day,
            cumulative_sold = EXCLUDED.cumulative_sold,
            remaining = EXCLUDED.remaining,
            last_applied_at = EXCLUDED.last_applied_at,
            last_applied_quantity = EXCLUDED.last_applied_quantity,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.DB.NamedExecContext(ctx, query, counter)
	return err
}
