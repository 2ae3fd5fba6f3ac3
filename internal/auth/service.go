package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"opshub/opshub-backend/pkg/authz"
)

// ErrInvalidCredentials is returned for unknown emails, wrong passwords
// and deactivated accounts alike, so login responses do not leak which
// part failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AccountSource resolves login credentials. Implemented by the users
// package.
type AccountSource interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// Service issues and verifies access tokens.
type Service struct {
	accounts AccountSource
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates the auth service. ttl bounds access token lifetime.
func NewService(accounts AccountSource, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{accounts: accounts, secret: []byte(secret), tokenTTL: ttl}
}

// Login verifies credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	account, err := s.accounts.AccountByEmail(ctx, req.Email)
	if err != nil || account == nil || !account.Active {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(account)
}

// Refresh re-issues a token for a still-active account, picking up any
// role grant changes since the old token was issued.
func (s *Service) Refresh(ctx context.Context, actor authz.Actor) (*LoginResponse, error) {
	account, err := s.accounts.AccountByID(ctx, actor.UserID)
	if err != nil || account == nil || !account.Active {
		return nil, ErrInvalidCredentials
	}
	return s.issue(account)
}

func (s *Service) issue(account *Account) (*LoginResponse, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	roles := make([]RoleGrantClaim, 0, len(account.Grants))
	for _, grant := range account.Grants {
		roles = append(roles, RoleGrantClaim{
			TenantID: grant.TenantID.String(),
			Role:     string(grant.Role),
		})
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:       account.UserID.String(),
		ActiveTenant: account.ActiveTenant.String(),
		Roles:        roles,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		UserID:      account.UserID,
		DisplayName: account.DisplayName,
		Tenant:      account.ActiveTenant,
	}, nil
}

// ParseToken verifies a token and rebuilds the actor snapshot from it.
func (s *Service) ParseToken(tokenString string) (authz.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return authz.Actor{}, ErrInvalidCredentials
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return authz.Actor{}, ErrInvalidCredentials
	}
	tenantID, err := uuid.Parse(claims.ActiveTenant)
	if err != nil {
		return authz.Actor{}, ErrInvalidCredentials
	}

	grants := make([]authz.TenantRole, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		grantTenant, err := uuid.Parse(role.TenantID)
		if err != nil {
			continue
		}
		grants = append(grants, authz.TenantRole{
			TenantID: grantTenant,
			Role:     authz.Role(role.Role),
		})
	}

	return authz.Actor{
		UserID:       userID,
		Roles:        grants,
		ActiveTenant: tenantID,
	}, nil
}
