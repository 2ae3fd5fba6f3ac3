package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"opshub/opshub-backend/pkg/authz"
)

type staticAccounts struct {
	byEmail map[string]*Account
	byID    map[uuid.UUID]*Account
}

func (s *staticAccounts) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	account, ok := s.byEmail[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *staticAccounts) AccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func newAuthFixture(t *testing.T) (*Service, *Account) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	tenantID := uuid.New()
	account := &Account{
		UserID:       uuid.New(),
		Email:        "ops@example.com",
		DisplayName:  "Ops Admin",
		PasswordHash: string(hash),
		Active:       true,
		ActiveTenant: tenantID,
		Grants: []authz.TenantRole{
			{TenantID: tenantID, Role: authz.RoleTenantAdmin},
			{TenantID: tenantID, Role: authz.RoleApprover},
		},
	}

	accounts := &staticAccounts{
		byEmail: map[string]*Account{account.Email: account},
		byID:    map[uuid.UUID]*Account{account.UserID: account},
	}
	return NewService(accounts, "test-secret", time.Hour), account
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	service, account := newAuthFixture(t)
	ctx := context.Background()

	resp, err := service.Login(ctx, LoginRequest{Email: account.Email, Password: "correct horse"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, account.UserID, resp.UserID)

	actor, err := service.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.UserID, actor.UserID)
	assert.Equal(t, account.ActiveTenant, actor.ActiveTenant)
	assert.True(t, actor.HasRole(account.ActiveTenant, authz.RoleTenantAdmin))
	assert.True(t, actor.HasRole(account.ActiveTenant, authz.RoleApprover))
}

func TestLoginFailuresAreUniform(t *testing.T) {
	service, account := newAuthFixture(t)
	ctx := context.Background()

	_, err := service.Login(ctx, LoginRequest{Email: account.Email, Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	service, account := newAuthFixture(t)
	account.Active = false

	_, err := service.Login(context.Background(), LoginRequest{Email: account.Email, Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	service, account := newAuthFixture(t)

	resp, err := service.Login(context.Background(), LoginRequest{Email: account.Email, Password: "correct horse"})
	require.NoError(t, err)

	other := NewService(&staticAccounts{}, "different-secret", time.Hour)
	_, err = other.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshPicksUpGrantChanges(t *testing.T) {
	service, account := newAuthFixture(t)
	ctx := context.Background()

	account.Grants = account.Grants[:1] // drop the approver grant

	actor := authz.Actor{UserID: account.UserID, ActiveTenant: account.ActiveTenant}
	resp, err := service.Refresh(ctx, actor)
	require.NoError(t, err)

	refreshed, err := service.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, refreshed.HasRole(account.ActiveTenant, authz.RoleTenantAdmin))
	assert.False(t, refreshed.HasRole(account.ActiveTenant, authz.RoleApprover))
}
