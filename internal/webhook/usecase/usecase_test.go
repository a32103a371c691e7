package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/credential"
	"github.com/fekuna/omnipos-ingestion-service/internal/event"
	"github.com/fekuna/omnipos-ingestion-service/internal/ledger"
	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/fekuna/omnipos-ingestion-service/internal/orderapi"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook/dto"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

type fakeCreds struct {
	byToken map[string]*model.IntegrationCredential
}

func (f *fakeCreds) FindActiveByToken(_ context.Context, token string) (*model.IntegrationCredential, error) {
	cred, ok := f.byToken[token]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return cred, nil
}

// fakeGate reproduces the storage-level compare-and-set semantics of the
// Postgres gate: first insert wins, failed rows are reclaimable.
type fakeGate struct {
	mu       sync.Mutex
	status   map[event.Key]model.EventStatus
	finished map[event.Key][]model.AppliedDecrement
	details  map[event.Key]string
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		status:   make(map[event.Key]model.EventStatus),
		finished: make(map[event.Key][]model.AppliedDecrement),
		details:  make(map[event.Key]string),
	}
}

func (g *fakeGate) Reserve(_ context.Context, key event.Key, _ json.RawMessage) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, seen := g.status[key]
	if seen && status != model.EventStatusFailure {
		return false, nil
	}
	// Mirrors the Postgres gate: only a failed attempt that applied no
	// decrements is reclaimable.
	if seen && len(g.finished[key]) > 0 {
		return false, nil
	}
	g.status[key] = model.EventStatusInProgress
	return true, nil
}

func (g *fakeGate) Complete(_ context.Context, key event.Key, status model.EventStatus, decrements []model.AppliedDecrement, errDetail string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[key] = status
	g.finished[key] = decrements
	g.details[key] = errDetail
	return nil
}

func (g *fakeGate) ListByMerchant(_ context.Context, _ string, _, _ int) ([]model.WebhookEvent, error) {
	return nil, nil
}

func (g *fakeGate) statusOf(key event.Key) model.EventStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status[key]
}

type fakeMappings struct {
	mappings []model.ItemMapping
}

func (f *fakeMappings) LoadByMerchant(_ context.Context, _ string, _ *string) ([]model.ItemMapping, error) {
	return f.mappings, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	details *orderapi.OrderDetails
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _, _ string) (*orderapi.OrderDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.details, nil
}

type ledgerCall struct {
	StoreID  string
	ItemID   string
	Quantity int
}

type fakeLedger struct {
	mu      sync.Mutex
	calls   []ledgerCall
	failFor map[string]error // inventory item id -> error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{failFor: make(map[string]error)}
}

func (f *fakeLedger) ApplyDecrement(_ context.Context, storeID, itemID string, quantity int) (*ledger.DecrementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[itemID]; ok {
		return nil, err
	}
	f.calls = append(f.calls, ledgerCall{StoreID: storeID, ItemID: itemID, Quantity: quantity})
	return &ledger.DecrementResult{OperationalDay: "2026-01-07", IdealForDay: 100, CumulativeSold: quantity, Remaining: 100 - quantity}, nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) callsFor(itemID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.ItemID == itemID {
			n++
		}
	}
	return n
}

type fixture struct {
	creds   *fakeCreds
	gate    *fakeGate
	maps    *fakeMappings
	fetcher *fakeFetcher
	ledger  *fakeLedger
	uc      webhook.UseCase
}

func newFixture() *fixture {
	f := &fixture{
		creds: &fakeCreds{byToken: map[string]*model.IntegrationCredential{
			"tok-1": {
				MerchantID:     "merchant-1",
				StoreID:        strPtr("store-1"),
				Environment:    model.EnvironmentSandbox,
				UpstreamAPIKey: strPtr("upstream-key"),
				IsActive:       true,
			},
		}},
		gate:    newFakeGate(),
		fetcher: &fakeFetcher{},
		ledger:  newFakeLedger(),
	}
	f.maps = &fakeMappings{mappings: []model.ItemMapping{
		{ExternalID: 10, ExternalName: "Açaí", Links: []model.MappingLink{
			{InventoryItemID: strPtr("inv-acai"), ConsumptionMultiplier: 1},
		}},
		{ExternalID: 21, ExternalName: "Granola", Links: []model.MappingLink{
			{InventoryItemID: strPtr("inv-granola"), ConsumptionMultiplier: 2},
		}},
		{ExternalID: 30, ExternalName: "Combo", Links: []model.MappingLink{
			{InventoryItemID: strPtr("inv-a"), ConsumptionMultiplier: 1},
			{InventoryItemID: strPtr("inv-b"), ConsumptionMultiplier: 3},
		}},
	}}
	f.uc = NewWebhookUseCase(f.creds, f.gate, f.maps, f.fetcher, f.ledger, nil, nil, logger.NewNop())
	return f
}

func process(t *testing.T, f *fixture, body string) (*dto.ProcessResult, error) {
	t.Helper()
	var payload dto.RawPayload
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	return f.uc.Process(context.Background(), "tok-1", json.RawMessage(body), &payload)
}

const createdWithItems = `{
	"event_type": "ORDER_CREATED",
	"order": {
		"id": "42",
		"status": "confirmed",
		"items": [
			{"item_id": 10, "name": "Açaí", "quantity": 2, "options": [
				{"option_id": 21, "name": "Granola", "quantity": 3}
			]}
		]
	}
}`

func TestProcess_DecrementsItemsAndOptionsAsSiblings(t *testing.T) {
	f := newFixture()

	res, err := process(t, f, createdWithItems)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ProcessedItems)

	require.Len(t, f.ledger.calls, 2)
	assert.Equal(t, ledgerCall{StoreID: "store-1", ItemID: "inv-acai", Quantity: 2}, f.ledger.calls[0])
	// Option quantity = lineQty(2) x optionQty(3), times multiplier 2.
	assert.Equal(t, ledgerCall{StoreID: "store-1", ItemID: "inv-granola", Quantity: 12}, f.ledger.calls[1])

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_CREATED"}
	assert.Equal(t, model.EventStatusSuccess, f.gate.statusOf(key))
	assert.False(t, f.fetcher.calls > 0, "inline items mean no outbound call")
}

func TestProcess_MappingFanOut(t *testing.T) {
	f := newFixture()
	body := `{"event_type":"ORDER_CREATED","order":{"id":"7","items":[{"item_id":30,"name":"Combo","quantity":1}]}}`

	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedItems, "one external id fans out to both linked items")

	require.Len(t, f.ledger.calls, 2)
	assert.Equal(t, "inv-a", f.ledger.calls[0].ItemID)
	assert.Equal(t, 1, f.ledger.calls[0].Quantity)
	assert.Equal(t, "inv-b", f.ledger.calls[1].ItemID)
	assert.Equal(t, 3, f.ledger.calls[1].Quantity)
}

func TestProcess_UnmappedItemIsNotAnError(t *testing.T) {
	f := newFixture()
	body := `{"event_type":"ORDER_CREATED","order":{"id":"8","items":[{"item_id":999,"name":"Refrigerante","quantity":1}]}}`

	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ProcessedItems)
	assert.Empty(t, res.Errors)
	assert.Zero(t, f.ledger.callCount())
}

func TestProcess_ConcurrentDuplicatesDecrementOnce(t *testing.T) {
	f := newFixture()

	const deliveries = 8
	results := make([]*dto.ProcessResult, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = process(t, f, createdWithItems)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i], "every delivery is answered with success")
		require.True(t, results[i].Success)
		if !results[i].AlreadyProcessed {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one delivery processes")
	assert.Equal(t, 2, f.ledger.callCount(), "one set of decrements total")
}

func TestProcess_StatusUpdateNeverTouchesLedger(t *testing.T) {
	f := newFixture()
	// Payload even carries items; classification must win.
	body := `{"event_type":"ORDER_STATUS_UPDATED","order":{"id":"42","status":"confirmed","items":[{"item_id":10,"quantity":5}]}}`

	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Skipped)
	assert.Zero(t, f.ledger.callCount())

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_STATUS_UPDATED"}
	assert.Equal(t, model.EventStatusSuccess, f.gate.statusOf(key), "no-ops still absorb repeats")
}

func TestProcess_CancellationSkipsDecrement(t *testing.T) {
	f := newFixture()
	body := `{"event_type":"ORDER_CREATED","order":{"id":"42","status":"cancelled","items":[{"item_id":10,"quantity":1}]}}`

	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Skipped)
	assert.Zero(t, f.ledger.callCount())
}

func TestProcess_FetchesWhenPayloadHasNoItems(t *testing.T) {
	f := newFixture()
	f.fetcher.details = &orderapi.OrderDetails{
		ID: "42",
		Items: []orderapi.OrderItem{
			{ItemID: 10, Name: "Açaí", Quantity: 1},
		},
	}

	res, err := process(t, f, `{"event_type":"ORDER_CREATED","order_id":"42"}`)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 1, f.ledger.callCount())
}

func TestProcess_UpstreamFailureMarksEventFailed(t *testing.T) {
	f := newFixture()
	f.fetcher.err = fmt.Errorf("%w: order 42", orderapi.ErrUpstreamUnavailable)

	_, err := process(t, f, `{"event_type":"ORDER_CREATED","order_id":"42"}`)
	require.ErrorIs(t, err, orderapi.ErrUpstreamUnavailable)

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_CREATED"}
	assert.Equal(t, model.EventStatusFailure, f.gate.statusOf(key))
}

func TestProcess_EmptyOrderAfterFetchFails(t *testing.T) {
	f := newFixture()
	f.fetcher.details = &orderapi.OrderDetails{ID: "42"}

	_, err := process(t, f, `{"event_type":"ORDER_CREATED","order_id":"42"}`)
	require.ErrorIs(t, err, webhook.ErrMissingItems)

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_CREATED"}
	assert.Equal(t, model.EventStatusFailure, f.gate.statusOf(key))
}

func TestProcess_InvalidTokenReservesNothing(t *testing.T) {
	f := newFixture()
	var payload dto.RawPayload
	body := `{"event_type":"ORDER_CREATED","order_id":"42"}`
	require.NoError(t, json.Unmarshal([]byte(body), &payload))

	_, err := f.uc.Process(context.Background(), "wrong-token", json.RawMessage(body), &payload)
	require.ErrorIs(t, err, credential.ErrNotFound)

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_CREATED"}
	assert.Equal(t, model.EventStatus(""), f.gate.statusOf(key), "nothing trustworthy to key on")
}

func TestProcess_FailedEventIsRetryEligible(t *testing.T) {
	f := newFixture()
	f.ledger.failFor["inv-acai"] = ledger.ErrCounterBusy

	body := `{"event_type":"ORDER_CREATED","order":{"id":"42","items":[{"item_id":10,"quantity":1}]}}`
	_, err := process(t, f, body)
	require.ErrorIs(t, err, webhook.ErrDecrementFailed)

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: "ORDER_CREATED"}
	require.Equal(t, model.EventStatusFailure, f.gate.statusOf(key))

	// The sender retries; the failed row is reclaimed, not swallowed.
	delete(f.ledger.failFor, "inv-acai")
	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, model.EventStatusSuccess, f.gate.statusOf(key))
}

func TestProcess_RetryAfterPartialFailureNeverDoubleCounts(t *testing.T) {
	f := newFixture()
	f.ledger.failFor["inv-b"] = ledger.ErrCounterBusy

	// Combo fans out to inv-a and inv-b; inv-a lands, inv-b fails, the
	// event is recorded failed with one applied decrement.
	body := `{"event_type":"ORDER_CREATED","order":{"id":"42","items":[{"item_id":30,"name":"Combo","quantity":1}]}}`
	_, err := process(t, f, body)
	require.ErrorIs(t, err, webhook.ErrDecrementFailed)
	require.Equal(t, 1, f.ledger.callsFor("inv-a"))

	// The sender retries once the fault clears. The gate must absorb it:
	// re-processing would decrement inv-a a second time for one sale.
	delete(f.ledger.failFor, "inv-b")
	res, err := process(t, f, body)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, 1, f.ledger.callsFor("inv-a"), "applied decrements are never re-applied")
	assert.Zero(t, f.ledger.callsFor("inv-b"))
}

func TestProcess_TypelessPayloadIsNoOp(t *testing.T) {
	f := newFixture()

	res, err := process(t, f, `{"order_id":"42"}`)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Skipped)
	assert.Zero(t, f.ledger.callCount(), "only an explicit order creation decrements")

	key := event.Key{MerchantID: "merchant-1", OrderID: "42", EventType: dto.EventTypeUnknown}
	assert.Equal(t, model.EventStatusSuccess, f.gate.statusOf(key), "still reserved so repeats are absorbed")
}

type capturingProducer struct {
	ctxs chan context.Context
}

func (p *capturingProducer) Publish(ctx context.Context, _, _ []byte) error {
	p.ctxs <- ctx
	return nil
}

func TestProcess_PublishContextIsBounded(t *testing.T) {
	f := newFixture()
	producer := &capturingProducer{ctxs: make(chan context.Context, 1)}
	f.uc = NewWebhookUseCase(f.creds, f.gate, f.maps, f.fetcher, f.ledger, producer, nil, logger.NewNop())

	_, err := process(t, f, createdWithItems)
	require.NoError(t, err)

	select {
	case ctx := <-producer.ctxs:
		_, ok := ctx.Deadline()
		assert.True(t, ok, "fan-out publish must carry a deadline")
	case <-time.After(2 * time.Second):
		t.Fatal("publish was never called")
	}
}

func TestProcess_PartialFailureRecordsAppliedDecrements(t *testing.T) {
	f := newFixture()
	f.ledger.failFor["inv-b"] = ledger.ErrCounterBusy

	body := `{"event_type":"ORDER_CREATED","order":{"id":"9","items":[{"item_id":30,"name":"Combo","quantity":1}]}}`
	res, err := process(t, f, body)
	require.ErrorIs(t, err, webhook.ErrDecrementFailed)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Len(t, res.Items, 1, "the decrement that landed is reported")
	assert.Len(t, res.Errors, 1)

	key := event.Key{MerchantID: "merchant-1", OrderID: "9", EventType: "ORDER_CREATED"}
	f.gate.mu.Lock()
	applied := f.gate.finished[key]
	f.gate.mu.Unlock()
	assert.Len(t, applied, 1, "audit row keeps what was applied before the failure")
}
