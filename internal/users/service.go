package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"opshub/opshub-backend/internal/auth"
	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

type CreateUserRequest struct {
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Password    string     `json:"password"`
	Role        authz.Role `json:"role"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validRole(role authz.Role) bool {
	switch role {
	case authz.RoleMember, authz.RoleApprover, authz.RoleTenantAdmin:
		return true
	}
	return false
}

func (s *Service) requireAdmin(actor authz.Actor) error {
	if !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		return apperr.Forbidden("tenant admin role required")
	}
	return nil
}

// Create registers a user in the actor's tenant. Admin only.
func (s *Service) Create(ctx context.Context, actor authz.Actor, req CreateUserRequest) (*User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}

	var badFields []string
	if !strings.Contains(req.Email, "@") {
		badFields = append(badFields, "email")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		badFields = append(badFields, "display_name")
	}
	if len(req.Password) < 8 {
		badFields = append(badFields, "password")
	}
	role := req.Role
	if role == "" {
		role = authz.RoleMember
	}
	if !validRole(role) {
		badFields = append(badFields, "role")
	}
	if len(badFields) > 0 {
		return nil, apperr.Validation(badFields...)
	}

	if existing, err := s.repo.GetByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, apperr.Validation("email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		Email:        strings.ToLower(req.Email),
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Active:       true,
		ActiveTenant: actor.ActiveTenant,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.repo.AddGrant(ctx, &RoleGrant{
		UserID:    user.ID,
		TenantID:  actor.ActiveTenant,
		Role:      string(role),
		GrantedAt: now,
	}); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, user.ID)
}

// Get returns a user visible in the actor's tenant.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, grant := range user.Grants {
		if grant.TenantID == actor.ActiveTenant {
			return user, nil
		}
	}
	return nil, apperr.NotFound("user")
}

// List returns every user with a grant in the actor's tenant.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]*User, error) {
	return s.repo.ListByTenant(ctx, actor.ActiveTenant)
}

// Grant gives a user a role in the actor's tenant. Admin only.
func (s *Service) Grant(ctx context.Context, actor authz.Actor, userID uuid.UUID, role authz.Role) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if !validRole(role) {
		return apperr.Validation("role")
	}
	user, err := s.Get(ctx, actor, userID)
	if err != nil {
		return err
	}
	for _, grant := range user.Grants {
		if grant.TenantID == actor.ActiveTenant && grant.Role == string(role) {
			return apperr.Validation("role")
		}
	}
	return s.repo.AddGrant(ctx, &RoleGrant{
		UserID:    userID,
		TenantID:  actor.ActiveTenant,
		Role:      string(role),
		GrantedAt: time.Now(),
	})
}

// Revoke removes a role grant in the actor's tenant. Admin only.
func (s *Service) Revoke(ctx context.Context, actor authz.Actor, userID uuid.UUID, role authz.Role) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	return s.repo.RemoveGrant(ctx, userID, actor.ActiveTenant, string(role))
}

// SetActive activates or deactivates an account. Admin only; admins
// cannot deactivate themselves.
func (s *Service) SetActive(ctx context.Context, actor authz.Actor, userID uuid.UUID, active bool) (*User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	if userID == actor.UserID && !active {
		return nil, apperr.Validation("user_id")
	}
	user, err := s.Get(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// accountFromUser converts a stored user into the credential snapshot
// the auth service consumes.
func accountFromUser(user *User) *auth.Account {
	grants := make([]authz.TenantRole, 0, len(user.Grants))
	for _, grant := range user.Grants {
		grants = append(grants, authz.TenantRole{
			TenantID: grant.TenantID,
			Role:     authz.Role(grant.Role),
		})
	}
	return &auth.Account{
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		PasswordHash: user.PasswordHash,
		Active:       user.Active,
		ActiveTenant: user.ActiveTenant,
		Grants:       grants,
	}
}

// AccountByEmail implements auth.AccountSource.
func (s *Service) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	return accountFromUser(user), nil
}

// AccountByID implements auth.AccountSource.
func (s *Service) AccountByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	return accountFromUser(user), nil
}
