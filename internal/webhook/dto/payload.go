package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fekuna/omnipos-ingestion-service/internal/orderapi"
)

// ErrInvalidPayload means the body carries nothing we can key an event on.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Canonical event types after normalization.
const (
	EventTypeOrderCreated = "ORDER_CREATED"
	// EventTypeUnknown marks a payload that carried no event type at all.
	// It is reserved and audited like any other event but never decrements:
	// only an explicit order creation touches inventory.
	EventTypeUnknown = "UNKNOWN"

	OrderStatusCancelled   = "CANCELLED"
	OrderStatusCancelledBR = "CANCELADO"
)

// FlexString tolerates ids the platform sends either as JSON strings or
// numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// RawPayload is the inbound webhook body as the platform actually sends it:
// optional fields, alternate names (event vs event_type), order fields
// either flat or nested. Normalize maps every known variant into one
// canonical Event before any business logic runs.
type RawPayload struct {
	EventType   string     `json:"event_type"`
	Event       string     `json:"event"`
	OrderID     FlexString `json:"order_id"`
	OrderStatus string     `json:"order_status"`
	Token       string     `json:"token"`
	APIKey      string     `json:"api_key"`
	Order       *RawOrder  `json:"order"`
}

type RawOrder struct {
	ID     FlexString `json:"id"`
	Status string     `json:"status"`
	Items  []RawItem  `json:"items"`
}

type RawItem struct {
	ItemID   int64       `json:"item_id"`
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Options  []RawOption `json:"options"`
}

type RawOption struct {
	OptionID int64  `json:"option_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Event is the canonical internal representation of one webhook delivery.
type Event struct {
	Type        string
	OrderID     string
	OrderStatus string
	Items       []orderapi.OrderItem
}

// Normalize folds the payload variants into an Event. The order id is
// mandatory (it is half the idempotency key); everything else degrades
// gracefully.
func (p *RawPayload) Normalize() (*Event, error) {
	ev := &Event{
		Type:        strings.ToUpper(strings.TrimSpace(firstNonEmpty(p.EventType, p.Event))),
		OrderID:     string(p.OrderID),
		OrderStatus: strings.ToUpper(strings.TrimSpace(p.OrderStatus)),
	}

	if p.Order != nil {
		if ev.OrderID == "" {
			ev.OrderID = string(p.Order.ID)
		}
		if ev.OrderStatus == "" {
			ev.OrderStatus = strings.ToUpper(strings.TrimSpace(p.Order.Status))
		}
		for _, item := range p.Order.Items {
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}
			normalized := orderapi.OrderItem{
				ItemID:   item.ItemID,
				Name:     item.Name,
				Quantity: qty,
			}
			for _, opt := range item.Options {
				optQty := opt.Quantity
				if optQty <= 0 {
					optQty = 1
				}
				normalized.Options = append(normalized.Options, orderapi.OrderOption{
					OptionID: opt.OptionID,
					Name:     opt.Name,
					Quantity: optQty,
				})
			}
			ev.Items = append(ev.Items, normalized)
		}
	}

	if ev.OrderID == "" {
		return nil, ErrInvalidPayload
	}
	if ev.Type == "" {
		ev.Type = EventTypeUnknown
	}
	return ev, nil
}

// IsCancellation reports a cancelled order status in either language the
// platform has been seen to send.
func (e *Event) IsCancellation() bool {
	switch e.OrderStatus {
	case OrderStatusCancelled, "CANCELED", OrderStatusCancelledBR:
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
