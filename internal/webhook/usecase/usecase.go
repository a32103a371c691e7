package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/credential"
	"github.com/fekuna/omnipos-ingestion-service/internal/event"
	"github.com/fekuna/omnipos-ingestion-service/internal/ledger"
	"github.com/fekuna/omnipos-ingestion-service/internal/mapping"
	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/fekuna/omnipos-ingestion-service/internal/orderapi"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook/dto"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	auditIndexName = "webhook-events"

	// Budget for the best-effort side effects; a hung broker or search
	// cluster must not accumulate goroutines.
	sideEffectTimeout = 10 * time.Second
)

type webhookUseCase struct {
	creds    credential.Repository
	gate     event.Repository
	mappings mapping.Repository
	fetcher  orderapi.Fetcher
	ledger   ledger.UseCase
	producer webhook.Producer
	indexer  webhook.Indexer
	logger   logger.ZapLogger
}

func NewWebhookUseCase(
	creds credential.Repository,
	gate event.Repository,
	mappings mapping.Repository,
	fetcher orderapi.Fetcher,
	ledgerUC ledger.UseCase,
	producer webhook.Producer,
	indexer webhook.Indexer,
	log logger.ZapLogger,
) webhook.UseCase {
	return &webhookUseCase{
		creds:    creds,
		gate:     gate,
		mappings: mappings,
		fetcher:  fetcher,
		ledger:   ledgerUC,
		producer: producer,
		indexer:  indexer,
		logger:   log,
	}
}

func (uc *webhookUseCase) Process(ctx context.Context, token string, rawBody json.RawMessage, payload *dto.RawPayload) (*dto.ProcessResult, error) {
	// 1. Authenticate. Nothing is reserved before this: an unauthenticated
	// request leaves no trustworthy key to reserve on.
	cred, err := uc.creds.FindActiveByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ev, err := payload.Normalize()
	if err != nil {
		return nil, err
	}

	// 2. Reserve the idempotency key. Losing the reservation race is not an
	// error: the sender retries on anything but success, so duplicates must
	// be absorbed with a 200.
	key := event.Key{MerchantID: cred.MerchantID, OrderID: ev.OrderID, EventType: ev.Type}
	reserved, err := uc.gate.Reserve(ctx, key, rawBody)
	if err != nil {
		// Fail-open on the audit trail: dropping a legitimate sale because
		// the audit insert misbehaved would be worse than a missing record.
		uc.logger.Error("event reservation failed, processing anyway",
			zap.String("order_id", ev.OrderID), zap.Error(err))
		reserved = true
	}
	if !reserved {
		uc.logger.Info("duplicate event delivery absorbed",
			zap.String("merchant_id", cred.MerchantID),
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", ev.Type),
		)
		return &dto.ProcessResult{Success: true, OrderID: ev.OrderID, AlreadyProcessed: true, Items: []model.AppliedDecrement{}}, nil
	}

	// 3. Classify. Status echoes, cancellations and non-creation events are
	// recorded and answered with success, but never reach the ledger: a
	// later "confirmed" echo of an already-decremented order must not
	// decrement again.
	if skip := classify(ev); skip != "" {
		if err := uc.gate.Complete(ctx, key, model.EventStatusSuccess, nil, ""); err != nil {
			uc.logger.Error("failed to finalize skipped event", zap.Error(err))
		}
		uc.logger.Info("event classified as no-op",
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", ev.Type),
			zap.String("reason", skip),
		)
		return &dto.ProcessResult{Success: true, OrderID: ev.OrderID, Skipped: skip, Items: []model.AppliedDecrement{}}, nil
	}

	// 4. Obtain order contents: inline items win, otherwise ask the partner
	// API.
	items := ev.Items
	if len(items) == 0 {
		items, err = uc.fetchItems(ctx, cred, ev.OrderID)
		if err != nil {
			uc.fail(ctx, key, nil, err.Error())
			return nil, err
		}
	}
	if len(items) == 0 {
		uc.fail(ctx, key, nil, webhook.ErrMissingItems.Error())
		return nil, fmt.Errorf("%w: order %s", webhook.ErrMissingItems, ev.OrderID)
	}

	// 5. Resolve and decrement. The mapping set is loaded once per
	// invocation regardless of order size.
	resolver, err := mapping.Load(ctx, uc.mappings, cred.MerchantID, cred.StoreID)
	if err != nil {
		uc.fail(ctx, key, nil, err.Error())
		return nil, err
	}

	storeID := cred.MerchantID
	if cred.StoreID != nil && *cred.StoreID != "" {
		storeID = *cred.StoreID
	}

	var applied []model.AppliedDecrement
	var failures []string

	for _, item := range items {
		applied, failures = uc.decrement(ctx, resolver, storeID, item.ItemID, item.Name, item.Quantity, applied, failures)
		for _, opt := range item.Options {
			// Options decrement as siblings of their parent item, scaled by
			// the parent quantity.
			applied, failures = uc.decrement(ctx, resolver, storeID, opt.OptionID, opt.Name, item.Quantity*opt.Quantity, applied, failures)
		}
	}

	if applied == nil {
		applied = []model.AppliedDecrement{}
	}

	result := &dto.ProcessResult{
		OrderID:        ev.OrderID,
		ProcessedItems: len(applied),
		Items:          applied,
		Errors:         failures,
	}

	// 6. Finalize. All line items had their decrements attempted; a single
	// failure marks the whole event failed (no compensating rollback, the
	// audit row records what was applied).
	if len(failures) > 0 {
		uc.fail(ctx, key, applied, strings.Join(failures, "; "))
		return result, fmt.Errorf("%w: order %s", webhook.ErrDecrementFailed, ev.OrderID)
	}

	result.Success = true
	if err := uc.gate.Complete(ctx, key, model.EventStatusSuccess, applied, ""); err != nil {
		uc.logger.Error("failed to finalize event", zap.String("order_id", ev.OrderID), zap.Error(err))
	}

	go func() {
		sideCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		uc.publishDecrements(sideCtx, key, applied)
	}()
	go func() {
		sideCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		uc.indexAudit(sideCtx, key, applied)
	}()

	return result, nil
}

func classify(ev *dto.Event) string {
	if ev.Type != dto.EventTypeOrderCreated {
		return "event type does not create orders"
	}
	if ev.IsCancellation() {
		return "order status is cancelled"
	}
	return ""
}

func (uc *webhookUseCase) fetchItems(ctx context.Context, cred *model.IntegrationCredential, orderID string) ([]orderapi.OrderItem, error) {
	if cred.UpstreamAPIKey == nil || *cred.UpstreamAPIKey == "" {
		return nil, fmt.Errorf("%w: order %s: payload had no items and credential has no upstream API key", webhook.ErrMissingItems, orderID)
	}
	details, err := uc.fetcher.Fetch(ctx, orderID, *cred.UpstreamAPIKey, cred.Environment)
	if err != nil {
		return nil, err
	}
	return details.Items, nil
}

func (uc *webhookUseCase) decrement(
	ctx context.Context,
	resolver *mapping.Resolver,
	storeID string,
	externalID int64,
	name string,
	quantity int,
	applied []model.AppliedDecrement,
	failures []string,
) ([]model.AppliedDecrement, []string) {
	targets := resolver.Resolve(externalID)
	if len(targets) == 0 {
		// Unmapped items are expected: not everything sold tracks inventory.
		uc.logger.Debug("no inventory mapping for external id",
			zap.Int64("external_id", externalID),
			zap.String("name", name),
			zap.Bool("placeholder", resolver.Known(externalID)),
		)
		return applied, failures
	}

	for _, target := range targets {
		qty := quantity * target.ConsumptionMultiplier
		res, err := uc.ledger.ApplyDecrement(ctx, storeID, target.InventoryItemID, qty)
		if err != nil {
			failures = append(failures, fmt.Sprintf("item %d (%s) -> %s: %v", externalID, name, target.InventoryItemID, err))
			continue
		}
		applied = append(applied, model.AppliedDecrement{
			StoreID:         storeID,
			InventoryItemID: target.InventoryItemID,
			ExternalID:      externalID,
			ExternalName:    name,
			Quantity:        qty,
			IdealForDay:     res.IdealForDay,
			Remaining:       res.Remaining,
		})
	}
	return applied, failures
}

func (uc *webhookUseCase) fail(ctx context.Context, key event.Key, applied []model.AppliedDecrement, detail string) {
	if err := uc.gate.Complete(ctx, key, model.EventStatusFailure, applied, detail); err != nil {
		uc.logger.Error("failed to finalize failed event",
			zap.String("order_id", key.OrderID), zap.Error(err))
	}
}

type decrementMessage struct {
	MerchantID string                   `json:"merchant_id"`
	OrderID    string                   `json:"order_id"`
	EventType  string                   `json:"event_type"`
	Decrements []model.AppliedDecrement `json:"decrements"`
	AppliedAt  time.Time                `json:"applied_at"`
}

func (uc *webhookUseCase) publishDecrements(ctx context.Context, key event.Key, applied []model.AppliedDecrement) {
	if uc.producer == nil || len(applied) == 0 {
		return
	}
	msg := decrementMessage{
		MerchantID: key.MerchantID,
		OrderID:    key.OrderID,
		EventType:  key.EventType,
		Decrements: applied,
		AppliedAt:  time.Now(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		uc.logger.Error("failed to marshal decrement message", zap.Error(err))
		return
	}
	if err := uc.producer.Publish(ctx, []byte(key.MerchantID+":"+key.OrderID), value); err != nil {
		uc.logger.Error("failed to publish decrement message",
			zap.String("order_id", key.OrderID), zap.Error(err))
	}
}

func (uc *webhookUseCase) indexAudit(ctx context.Context, key event.Key, applied []model.AppliedDecrement) {
	if uc.indexer == nil {
		return
	}

	indexMapping := `{
		"mappings": {
			"properties": {
				"merchant_id": { "type": "keyword" },
				"order_id": { "type": "keyword" },
				"event_type": { "type": "keyword" },
				"processed_items": { "type": "integer" },
				"processed_at": { "type": "date" }
			}
		}
	}`
	_ = uc.indexer.CreateIndex(ctx, auditIndexName, indexMapping)

	doc := map[string]interface{}{
		"merchant_id":     key.MerchantID,
		"order_id":        key.OrderID,
		"event_type":      key.EventType,
		"processed_items": len(applied),
		"decrements":      applied,
		"processed_at":    time.Now(),
	}
	docID := key.MerchantID + ":" + key.OrderID + ":" + key.EventType
	if err := uc.indexer.Index(ctx, auditIndexName, docID, doc); err != nil {
		uc.logger.Error("failed to index audit record", zap.Error(err))
	}
}
