package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/store/memory"
)

func TestStoreResolver(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	cred := &auth.Credential{
		Entity:    maestro.NewEntity(),
		ID:        id.NewCredentialID(),
		Name:      "studio-app",
		TokenHash: auth.HashToken("mw_live_abc123"),
		Tier:      auth.TierStudio,
	}
	if err := st.CreateCredential(ctx, cred); err != nil {
		t.Fatal(err)
	}

	r := auth.NewStoreResolver(st)

	got, err := r.Resolve(ctx, "mw_live_abc123")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != cred.ID {
		t.Errorf("resolved %v, want %v", got.ID, cred.ID)
	}
	if got.Limit() != 60 {
		t.Errorf("Limit() = %d, want 60 for studio tier", got.Limit())
	}

	if _, err := r.Resolve(ctx, "wrong-token"); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Errorf("unknown token: err = %v, want ErrCredentialNotFound", err)
	}
	if _, err := r.Resolve(ctx, ""); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Errorf("empty token: err = %v, want ErrCredentialNotFound", err)
	}
}

func TestStoreResolver_DisabledCredential(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	cred := &auth.Credential{
		Entity:    maestro.NewEntity(),
		ID:        id.NewCredentialID(),
		TokenHash: auth.HashToken("mw_live_off"),
		Tier:      auth.TierFree,
		Disabled:  true,
	}
	if err := st.CreateCredential(ctx, cred); err != nil {
		t.Fatal(err)
	}

	r := auth.NewStoreResolver(st)
	if _, err := r.Resolve(ctx, "mw_live_off"); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Fatalf("disabled credential resolved: err = %v", err)
	}
}

func TestJWTResolver(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	secret := []byte("test-secret")

	cred := &auth.Credential{
		Entity: maestro.NewEntity(),
		ID:     id.NewCredentialID(),
		Tier:   auth.TierLabel,
	}
	if err := st.CreateCredential(ctx, cred); err != nil {
		t.Fatal(err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   cred.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	r := auth.NewJWTResolver(secret, st)

	got, err := r.Resolve(ctx, signed)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != cred.ID {
		t.Errorf("resolved %v, want %v", got.ID, cred.ID)
	}
	if got.Limit() != 300 {
		t.Errorf("Limit() = %d, want 300 for label tier", got.Limit())
	}
}

func TestJWTResolver_RejectsBadSignature(t *testing.T) {
	st := memory.New()
	r := auth.NewJWTResolver([]byte("right-secret"), st)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.NewCredentialID().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(context.Background(), signed); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Fatalf("forged token resolved: err = %v", err)
	}
}

func TestJWTResolver_RejectsExpired(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	secret := []byte("test-secret")

	cred := &auth.Credential{Entity: maestro.NewEntity(), ID: id.NewCredentialID(), Tier: auth.TierFree}
	if err := st.CreateCredential(ctx, cred); err != nil {
		t.Fatal(err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   cred.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, _ := token.SignedString(secret)

	r := auth.NewJWTResolver(secret, st)
	if _, err := r.Resolve(ctx, signed); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Fatalf("expired token resolved: err = %v", err)
	}
}

func TestStaticResolver(t *testing.T) {
	cred := &auth.Credential{ID: id.NewCredentialID(), Tier: auth.TierFree}
	r := auth.NewStaticResolver(map[string]*auth.Credential{"dev-token": cred})

	got, err := r.Resolve(context.Background(), "dev-token")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != cred.ID {
		t.Errorf("resolved %v, want %v", got.ID, cred.ID)
	}
	if _, err := r.Resolve(context.Background(), "other"); !errors.Is(err, maestro.ErrCredentialNotFound) {
		t.Errorf("unknown token: err = %v, want ErrCredentialNotFound", err)
	}
}

func TestCredential_RateLimitOverride(t *testing.T) {
	c := &auth.Credential{Tier: auth.TierFree, RateLimit: 42}
	if c.Limit() != 42 {
		t.Errorf("Limit() = %d, want override 42", c.Limit())
	}
}
