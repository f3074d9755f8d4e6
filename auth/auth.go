// Package auth resolves caller credentials for admission control.
//
// A credential carries the caller's rate-limit tier. The orchestrator
// consults the resolved credential before enqueue: its per-window request
// budget feeds the rate limiter, and its ID attributes jobs to the
// caller. Token verification strategies (static tokens, JWT) are
// pluggable through the Resolver interface.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
)

// Tier names the built-in rate-limit tiers.
const (
	TierFree    = "free"
	TierStudio  = "studio"
	TierLabel   = "label"
	TierService = "service"
)

// TierLimit returns the per-window request budget for a tier. Unknown
// tiers get the free budget.
func TierLimit(tier string) int {
	switch tier {
	case TierStudio:
		return 60
	case TierLabel:
		return 300
	case TierService:
		return 3000
	default:
		return 10
	}
}

// Credential identifies a caller and its admission budget.
type Credential struct {
	maestro.Entity

	ID id.CredentialID `json:"id"`

	// Name is a human-readable label for the credential.
	Name string `json:"name"`

	// TokenHash is the SHA-256 hex digest of the API token. The raw token
	// is never stored.
	TokenHash string `json:"-"`

	// Tier selects the default rate budget.
	Tier string `json:"tier"`

	// RateLimit overrides the tier budget when positive.
	RateLimit int `json:"rateLimit,omitempty"`

	// Disabled credentials resolve but are always denied.
	Disabled bool `json:"disabled,omitempty"`
}

// Limit returns the credential's per-window request budget.
func (c *Credential) Limit() int {
	if c.RateLimit > 0 {
		return c.RateLimit
	}
	return TierLimit(c.Tier)
}

// HashToken returns the SHA-256 hex digest used to store and look up
// API tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store is the persistence contract for credentials.
type Store interface {
	// CreateCredential persists a new credential.
	CreateCredential(ctx context.Context, c *Credential) error

	// GetCredential retrieves a credential by ID.
	GetCredential(ctx context.Context, credID id.CredentialID) (*Credential, error)

	// FindCredentialByTokenHash looks up a credential by its token digest,
	// or returns maestro.ErrCredentialNotFound.
	FindCredentialByTokenHash(ctx context.Context, hash string) (*Credential, error)

	// UpdateCredential persists changes to an existing credential.
	UpdateCredential(ctx context.Context, c *Credential) error

	// ListCredentials returns all credentials.
	ListCredentials(ctx context.Context) ([]*Credential, error)
}

// Resolver turns a presented token into a credential.
type Resolver interface {
	// Resolve verifies the token and returns the caller's credential, or
	// maestro.ErrCredentialNotFound if the token is unknown or invalid.
	Resolve(ctx context.Context, token string) (*Credential, error)
}
