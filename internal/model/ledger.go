package model

import "time"

// DailyIdeal is the configured "full tank" for one inventory item on one
// weekday (0 = Sunday). Written by the admin surface; read-only here.
type DailyIdeal struct {
	ID              string `db:"id"`
	StoreID         string `db:"store_id"`
	InventoryItemID string `db:"inventory_item_id"`
	Weekday         int    `db:"weekday"`
	IdealQuantity   int    `db:"ideal_quantity"`
}

// InventoryCounter is the per-day sales counter for one inventory item in
// one store. Remaining is always max(0, ideal_for_day - cumulative_sold);
// it is recomputed on every write and never stored negative. One row per
// operational day, created lazily on the first sale and never deleted.
type InventoryCounter struct {
	ID                  string    `db:"id"`
	StoreID             string    `db:"store_id"`
	InventoryItemID     string    `db:"inventory_item_id"`
	OperationalDay      string    `db:"operational_day"` // store-local date, YYYY-MM-DD
	IdealForDay         int       `db:"ideal_for_day"`
	CumulativeSold      int       `db:"cumulative_sold"`
	Remaining           int       `db:"remaining"`
	LastAppliedAt       time.Time `db:"last_applied_at"`
	LastAppliedQuantity int       `db:"last_applied_quantity"`
	UpdatedAt           time.Time `db:"updated_at"`
}
