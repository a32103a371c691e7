package dto

import "github.com/fekuna/omnipos-ingestion-service/internal/model"

// ProcessResult is the JSON summary returned to the webhook sender.
type ProcessResult struct {
	Success          bool                     `json:"success"`
	OrderID          string                   `json:"order_id"`
	ProcessedItems   int                      `json:"processed_items"`
	Items            []model.AppliedDecrement `json:"items"`
	Errors           []string                 `json:"errors,omitempty"`
	AlreadyProcessed bool                     `json:"already_processed,omitempty"`
	Skipped          string                   `json:"skipped,omitempty"`
}
