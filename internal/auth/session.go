package auth

import (
	"context"
	"time"
)

// Identity is the verified claim set attached to a request or WebSocket
// message after the Gate accepts its token. Handlers treat it as read-only.
type Identity struct {
	UserID         int64     `json:"id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	RefreshTokenID string    `json:"-"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the identity's token has expired at now.
func (i *Identity) Expired(now time.Time) bool {
	return i != nil && !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by the Gate, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// ActiveUser returns the identity attached to ctx, or nil when the caller
// is unauthenticated or came in over the trusted RPC transport.
func ActiveUser(ctx context.Context) *Identity {
	id, _ := IdentityFromContext(ctx)
	return id
}
