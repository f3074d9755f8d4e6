package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/id"
)

const credentialColumns = `
	id, name, token_hash, tier, rate_limit, disabled, created_at, updated_at`

// CreateCredential persists a new credential.
func (s *Store) CreateCredential(ctx context.Context, c *auth.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO maestro_credentials (
			id, name, token_hash, tier, rate_limit, disabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID.String(), c.Name, c.TokenHash, c.Tier, c.RateLimit, c.Disabled,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID.
func (s *Store) GetCredential(ctx context.Context, credID id.CredentialID) (*auth.Credential, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM maestro_credentials WHERE id = $1`,
		credID.String(),
	)

	c, err := scanCredential(row)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("maestro/postgres: get credential: %w", err)
	}
	return c, nil
}

// FindCredentialByTokenHash looks up a credential by its token digest.
func (s *Store) FindCredentialByTokenHash(ctx context.Context, hash string) (*auth.Credential, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM maestro_credentials WHERE token_hash = $1`,
		hash,
	)

	c, err := scanCredential(row)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("maestro/postgres: find credential by token hash: %w", err)
	}
	return c, nil
}

// UpdateCredential persists changes to an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, c *auth.Credential) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE maestro_credentials SET
			name = $2, token_hash = $3, tier = $4,
			rate_limit = $5, disabled = $6, updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), c.Name, c.TokenHash, c.Tier, c.RateLimit, c.Disabled,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return maestro.ErrCredentialNotFound
	}
	return nil
}

// ListCredentials returns all credentials, oldest first.
func (s *Store) ListCredentials(ctx context.Context) ([]*auth.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM maestro_credentials ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*auth.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("maestro/postgres: scan credential row: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("maestro/postgres: iterate credential rows: %w", err)
	}
	return creds, nil
}

func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var (
		c     auth.Credential
		idStr string
	)
	err := row.Scan(
		&idStr, &c.Name, &c.TokenHash, &c.Tier, &c.RateLimit, &c.Disabled,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	credID, err := id.ParseCredentialID(idStr)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: parse credential id %q: %w", idStr, err)
	}
	c.ID = credID

	return &c, nil
}
