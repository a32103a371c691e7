package mapping

import (
	"context"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
)

type Repository interface {
	// LoadByMerchant fetches the merchant's full mapping set (with links) in
	// a bounded number of queries, regardless of order size. Store-scoped
	// mappings are included when storeID matches; merchant-wide ones always.
	LoadByMerchant(ctx context.Context, merchantID string, storeID *string) ([]model.ItemMapping, error)
}
