package models

import "github.com/golang-jwt/jwt/v5"

// UserRole distinguishes the two sides of the marketplace. Identity is issued
// by an external provider; the engine only consumes the claims.
type UserRole string

const (
	RoleCustomer UserRole = "CUSTOMER"
	RoleMechanic UserRole = "MECHANIC"
)

// JWTClaims represents the access-token payload issued by the identity provider.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
