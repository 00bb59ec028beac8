// Package auth provides JWT-based authentication for lorekeep-engine.
// Tokens are validated against the issuers' JWKS endpoints; the subject
// claim carries the owning user's id.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claims structure the engine accepts. RegisteredClaims
// covers the standard fields (sub, iss, exp); Subject must be the owner's
// UUID.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Plan  string   `json:"plan,omitempty"` // membership tier, informational only
	Roles []string `json:"roles,omitempty"`
}
