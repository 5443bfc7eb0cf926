package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/vigil/internal/interfaces"
)

type identityKey struct{}

// WithIdentity attaches the resolved caller to the request context.
func WithIdentity(r *http.Request, identity *interfaces.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey{}, identity))
}

// IdentityFrom returns the caller identity, nil for unauthenticated requests.
func IdentityFrom(r *http.Request) *interfaces.Identity {
	identity, _ := r.Context().Value(identityKey{}).(*interfaces.Identity)
	return identity
}

// ActorFrom returns a display name for audit fields.
func ActorFrom(r *http.Request) string {
	identity := IdentityFrom(r)
	if identity == nil {
		return ""
	}
	return identity.Username
}
