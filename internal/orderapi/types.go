package orderapi

// OrderDetails is the canonical order shape of the delivery platform's
// partner API. Inline webhook payloads normalize into the same types.
type OrderDetails struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Items  []OrderItem `json:"items"`
}

type OrderItem struct {
	ItemID   int64         `json:"item_id"`
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
	Options  []OrderOption `json:"options,omitempty"`
}

// OrderOption is a modifier attached to a line item (flavor, size). It maps
// to inventory independently of its parent item.
type OrderOption struct {
	OptionID int64  `json:"option_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}
