package models

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin may manage geo rules, clear lockouts and read audit logs
const RoleAdmin = "admin"

// TokenTypeAccess is the only token type accepted by the API
const TokenTypeAccess = "access"

// TokenClaims are carried by operator bearer tokens
type TokenClaims struct {
	Type  string `json:"type"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
