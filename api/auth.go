package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/musewave/maestro/auth"
)

const credentialLocal = "maestro.credential"

// authenticate resolves the bearer token (or X-API-Key header) and
// stores the credential for handlers downstream. Unresolvable tokens
// are rejected before any handler runs.
func (a *API) authenticate(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		token = c.Get("X-API-Key")
	}
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing credentials")
	}

	cred, err := a.resolver.Resolve(c.Context(), token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	c.Locals(credentialLocal, cred)
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// credentialFrom returns the authenticated credential, nil when the API
// runs without a resolver.
func credentialFrom(c *fiber.Ctx) *auth.Credential {
	cred, _ := c.Locals(credentialLocal).(*auth.Credential)
	return cred
}
