package model

// ItemMapping relates one external item/modifier identifier from the
// delivery platform to zero or more internal inventory items. A mapping with
// no linked inventory item is an unlinked placeholder produced by bulk
// import; it is skipped during decrement, not treated as an error.
type ItemMapping struct {
	BaseModel
	MerchantID   string        `db:"merchant_id"`
	StoreID      *string       `db:"store_id"` // Nullable, merchant-wide when unset
	ExternalID   int64         `db:"external_id"`
	ExternalName string        `db:"external_name"`
	Links        []MappingLink `db:"-"` // Loaded separately
}

// MappingLink is one internal target of a mapping. A combo item carries
// several links, each with its own per-unit consumption multiplier.
type MappingLink struct {
	ID                    string  `db:"id"`
	MappingID             string  `db:"mapping_id"`
	InventoryItemID       *string `db:"inventory_item_id"` // Nullable while awaiting manual linking
	ConsumptionMultiplier int     `db:"consumption_multiplier"`
}
