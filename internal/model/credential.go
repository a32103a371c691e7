package model

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// IntegrationCredential authenticates inbound webhooks from the delivery
// platform for one (merchant, store) pair. The upstream API key is only used
// for outbound order-detail calls and may be absent when the platform pushes
// full payloads. Rotation is handled by the credential admin surface; this
// service only reads.
type IntegrationCredential struct {
	BaseModel
	MerchantID     string  `db:"merchant_id"`
	StoreID        *string `db:"store_id"` // Nullable, merchant-wide when unset
	WebhookToken   string  `db:"webhook_token"`
	Environment    string  `db:"environment"` // sandbox | production
	UpstreamAPIKey *string `db:"upstream_api_key"`
	IsActive       bool    `db:"is_active"`
}
