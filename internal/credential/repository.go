package credential

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
)

// ErrNotFound means no active credential matches the presented token.
var ErrNotFound = errors.New("integration credential not found")

type Repository interface {
	// FindActiveByToken resolves a webhook token to its credential.
	// Inactive (rotated-out) credentials are never returned.
	FindActiveByToken(ctx context.Context, token string) (*model.IntegrationCredential, error)
}
