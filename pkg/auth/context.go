package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ClaimsKey is the context key for storing JWT claims.
const ClaimsKey contextKey = "claims"

// WithClaims returns a context carrying the validated claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims retrieves JWT claims from the request context. Returns nil and
// false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// OwnerIDFromContext extracts the authenticated owner's UUID from the
// context claims. Returns an error wrapping apperrors.ErrUnauthorized when
// the request carries no usable subject.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return uuid.Nil, fmt.Errorf("%w: no authenticated owner", apperrors.ErrUnauthorized)
	}
	ownerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a valid owner id", apperrors.ErrUnauthorized)
	}
	return ownerID, nil
}
