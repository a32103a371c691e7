package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fekuna/omnipos-ingestion-service/internal/credential"
	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) FindActiveByToken(ctx context.Context, token string) (*model.IntegrationCredential, error) {
	var cred model.IntegrationCredential
	query := `SELECT * FROM integration_credentials WHERE webhook_token = $1 AND is_active = TRUE`

	err := r.DB.GetContext(ctx, &cred, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}
