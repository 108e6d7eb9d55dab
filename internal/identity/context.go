// Package identity carries the authenticated actor through a request.
//
// The identity provider resolves an Identity at the edge and stores it with
// WithIdentity; services read it with FromContext. A context without an identity
// behaves as an unauthenticated caller.
package identity

import (
	"context"

	"projectdesk/internal/identity/models"
)

type identityKey struct{}

// ContextKeyIdentity is exported for tests that build contexts directly.
var ContextKeyIdentity = identityKey{}

// WithIdentity injects the authenticated actor into the context.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

// FromContext returns the actor for the request, or nil when none was set.
func FromContext(ctx context.Context) *models.Identity {
	if identity, ok := ctx.Value(ContextKeyIdentity).(*models.Identity); ok {
		return identity
	}
	return nil
}
