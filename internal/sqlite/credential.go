package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CredentialStore implements credential.Store on top of SQLite. Tokens are
// scoped by profile so that separate operators on one machine do not share
// a session.
type CredentialStore struct {
	db      *DB
	profile string
}

// NewCredentialStore creates a store bound to a profile.
func NewCredentialStore(db *DB, profile string) *CredentialStore {
	return &CredentialStore{db: db, profile: profile}
}

// Get returns the stored token for the profile.
func (s *CredentialStore) Get(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM credentials WHERE profile = ?`, s.profile,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get credential: %w", err)
	}
	return token, true, nil
}

// Set stores or replaces the token for the profile.
func (s *CredentialStore) Set(ctx context.Context, token string) error {
	query := `
		INSERT INTO credentials (profile, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, s.profile, token, time.Now()); err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}
	return nil
}

// Clear removes the token for the profile. Clearing an empty profile is not an error.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE profile = ?`, s.profile); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
