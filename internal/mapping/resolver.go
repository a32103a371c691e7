package mapping

import (
	"context"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
)

// Target is one internal inventory item a sold external item consumes.
type Target struct {
	InventoryItemID       string
	ConsumptionMultiplier int
}

// Resolver answers "which internal items does this external id consume" from
// a mapping set loaded once per webhook invocation. It replaces any
// process-wide lookup cache: the set lives only for the request that loaded
// it, so there is nothing to invalidate.
type Resolver struct {
	byExternalID map[int64][]Target
}

func NewResolver(mappings []model.ItemMapping) *Resolver {
	byID := make(map[int64][]Target, len(mappings))
	for _, m := range mappings {
		targets := byID[m.ExternalID]
		for _, l := range m.Links {
			// Unlinked placeholders await manual linking; skip silently.
			if l.InventoryItemID == nil || *l.InventoryItemID == "" {
				continue
			}
			mult := l.ConsumptionMultiplier
			if mult < 1 {
				mult = 1
			}
			targets = append(targets, Target{
				InventoryItemID:       *l.InventoryItemID,
				ConsumptionMultiplier: mult,
			})
		}
		byID[m.ExternalID] = targets
	}
	return &Resolver{byExternalID: byID}
}

// Load builds a request-scoped resolver from the merchant's mapping set.
func Load(ctx context.Context, repo Repository, merchantID string, storeID *string) (*Resolver, error) {
	mappings, err := repo.LoadByMerchant(ctx, merchantID, storeID)
	if err != nil {
		return nil, err
	}
	return NewResolver(mappings), nil
}

// Resolve returns the internal targets for an external id. An unknown id
// yields an empty slice; unmapped items are expected, not errors.
func (r *Resolver) Resolve(externalID int64) []Target {
	return r.byExternalID[externalID]
}

// Known reports whether the external id has a mapping row at all, linked or
// not. Callers use it to log unmapped ids without failing.
func (r *Resolver) Known(externalID int64) bool {
	_, ok := r.byExternalID[externalID]
	return ok
}
