package middleware

import (
	"context"

	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

type credentialKey struct{}

// Credential returns middleware that restores the enqueuing caller's
// credential ID into the context, so handlers attribute engine calls and
// produced assets to the same caller as the original request.
func Credential() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if !j.CredentialID.IsNil() {
			ctx = context.WithValue(ctx, credentialKey{}, j.CredentialID)
		}
		return next(ctx)
	}
}

// CredentialFromContext returns the credential ID the Credential
// middleware stored, or false when the job was enqueued anonymously.
func CredentialFromContext(ctx context.Context) (id.CredentialID, bool) {
	credID, ok := ctx.Value(credentialKey{}).(id.CredentialID)
	return credID, ok
}
