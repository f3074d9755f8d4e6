package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
)

// StoreResolver resolves opaque API tokens against the credential store
// by token digest.
type StoreResolver struct {
	store Store
}

// NewStoreResolver creates a resolver backed by the credential store.
func NewStoreResolver(store Store) *StoreResolver {
	return &StoreResolver{store: store}
}

// Resolve implements Resolver.
func (r *StoreResolver) Resolve(ctx context.Context, token string) (*Credential, error) {
	if token == "" {
		return nil, maestro.ErrCredentialNotFound
	}
	cred, err := r.store.FindCredentialByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if cred.Disabled {
		return nil, maestro.ErrCredentialNotFound
	}
	return cred, nil
}

// ──────────────────────────────────────────────────
// JWT
// ──────────────────────────────────────────────────

// jwtClaims is the claim set MuseWave issues for API access.
type jwtClaims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// JWTResolver resolves HMAC-signed JWTs. The subject claim carries the
// credential ID; the credential record is loaded from the store so
// disabled credentials and budget overrides stay authoritative.
type JWTResolver struct {
	secret []byte
	store  Store
}

// NewJWTResolver creates a resolver verifying tokens with the given
// HMAC secret.
func NewJWTResolver(secret []byte, store Store) *JWTResolver {
	return &JWTResolver{secret: secret, store: store}
}

// Resolve implements Resolver.
func (r *JWTResolver) Resolve(ctx context.Context, token string) (*Credential, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, maestro.ErrCredentialNotFound
	}

	credID, err := id.ParseCredentialID(claims.Subject)
	if err != nil {
		return nil, maestro.ErrCredentialNotFound
	}
	cred, err := r.store.GetCredential(ctx, credID)
	if err != nil {
		return nil, maestro.ErrCredentialNotFound
	}
	if cred.Disabled {
		return nil, maestro.ErrCredentialNotFound
	}
	if cred.Tier == "" {
		cred.Tier = claims.Tier
	}
	return cred, nil
}

// ──────────────────────────────────────────────────
// Static
// ──────────────────────────────────────────────────

// StaticResolver maps fixed tokens to credentials. Useful for tests and
// single-tenant deployments configured from the environment.
type StaticResolver struct {
	creds map[string]*Credential
}

// NewStaticResolver creates a resolver over a fixed token → credential map.
func NewStaticResolver(creds map[string]*Credential) *StaticResolver {
	return &StaticResolver{creds: creds}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, token string) (*Credential, error) {
	cred, ok := r.creds[token]
	if !ok || cred.Disabled {
		return nil, maestro.ErrCredentialNotFound
	}
	return cred, nil
}
