package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"opshub/opshub-backend/pkg/authz"
)

// Account is the credential view of a user the auth service needs. It is
// supplied by the users package through the AccountSource interface.
type Account struct {
	UserID       uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	Active       bool
	ActiveTenant uuid.UUID
	Grants       []authz.TenantRole
}

// RoleGrantClaim is one (tenant, role) pair inside a token.
type RoleGrantClaim struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Claims is the JWT payload. Role grants ride in the token so the actor
// snapshot can be rebuilt without a database round trip per request.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string           `json:"uid"`
	ActiveTenant string           `json:"tenant"`
	Roles        []RoleGrantClaim `json:"roles"`
}

// LoginRequest carries user credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse returns the issued token and basic identity info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Tenant      uuid.UUID `json:"tenant_id"`
}
