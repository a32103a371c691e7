package repository

import (
	"context"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) LoadByMerchant(ctx context.Context, merchantID string, storeID *string) ([]model.ItemMapping, error) {
	var mappings []model.ItemMapping
	query := `SELECT * FROM item_mappings WHERE merchant_id = $1`
	args := []interface{}{merchantID}

	if storeID != nil && *storeID != "" {
		query += ` AND (store_id IS NULL OR store_id = $2)`
		args = append(args, *storeID)
	} else {
		query += ` AND store_id IS NULL`
	}

	if err := r.DB.SelectContext(ctx, &mappings, query, args...); err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return mappings, nil
	}

	ids := make([]string, len(mappings))
	byID := make(map[string]int, len(mappings))
	for i, m := range mappings {
		ids[i] = m.ID
		byID[m.ID] = i
	}

	linkQuery, linkArgs, err := sqlx.In(`SELECT * FROM item_mapping_links WHERE mapping_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	linkQuery = r.DB.Rebind(linkQuery)

	var links []model.MappingLink
	if err := r.DB.SelectContext(ctx, &links, linkQuery, linkArgs...); err != nil {
		return nil, err
	}

	for _, l := range links {
		if i, ok := byID[l.MappingID]; ok {
			mappings[i].Links = append(mappings[i].Links, l)
		}
	}
	return mappings, nil
}
