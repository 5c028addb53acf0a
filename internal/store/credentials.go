package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/datallboy/optolib/internal/domain"
)

// SaveCredential stores an already-sealed credential blob for a provider.
func (s *PersistentStore) SaveCredential(ctx context.Context, provider string, sealed []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (provider, sealed, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		provider, sealed, time.Now().Unix(),
	)
	return err
}

func (s *PersistentStore) GetCredential(ctx context.Context, provider string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, "SELECT sealed FROM credentials WHERE provider = ?", provider).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return sealed, err
}

func (s *PersistentStore) DeleteCredential(ctx context.Context, provider string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE provider = ?", provider)
	return err
}
