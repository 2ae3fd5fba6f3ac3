package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

type CreateProjectRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ClientName  string    `json:"client_name"`
	PMID        uuid.UUID `json:"pm_id"`
	HourlyRate  int64     `json:"hourly_rate_cents"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ClientName  *string `json:"client_name"`
	HourlyRate  *int64  `json:"hourly_rate_cents"`
	Archived    *bool   `json:"archived"`
}

type Service interface {
	Create(ctx context.Context, actor authz.Actor, req CreateProjectRequest) (*Project, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Project, error)
	List(ctx context.Context, actor authz.Actor) ([]*Project, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req UpdateProjectRequest) (*Project, error)
	AddMember(ctx context.Context, actor authz.Actor, projectID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, actor authz.Actor, projectID, userID uuid.UUID) error
	ListMembers(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*ProjectMember, error)
	Activity(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*ProjectActivity, error)
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) Create(ctx context.Context, actor authz.Actor, req CreateProjectRequest) (*Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name")
	}

	pmID := req.PMID
	if pmID == uuid.Nil {
		pmID = actor.UserID
	}

	now := time.Now()
	project := &Project{
		TenantID:    actor.ActiveTenant,
		Name:        req.Name,
		Description: req.Description,
		ClientName:  req.ClientName,
		PMID:        pmID,
		HourlyRate:  req.HourlyRate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	// The PM is always on the team.
	if err := s.repo.AddMember(ctx, &ProjectMember{
		ProjectID: project.ID,
		UserID:    pmID,
		JoinedAt:  now,
	}); err != nil {
		return nil, err
	}

	s.logActivity(ctx, project.ID, actor.UserID, "CREATED",
		fmt.Sprintf("Project %s created", project.Name))
	return project, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.TenantID != actor.ActiveTenant {
		return nil, apperr.NotFound("project")
	}
	return project, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor) ([]*Project, error) {
	return s.repo.ListByTenant(ctx, actor.ActiveTenant)
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req UpdateProjectRequest) (*Project, error) {
	project, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != project.PMID && !actor.HasRole(project.TenantID, authz.RoleTenantAdmin) {
		return nil, apperr.Forbidden("only the project manager or a tenant admin may update a project")
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name")
		}
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.ClientName != nil {
		project.ClientName = *req.ClientName
	}
	if req.HourlyRate != nil {
		project.HourlyRate = *req.HourlyRate
	}
	if req.Archived != nil {
		project.Archived = *req.Archived
	}

	project.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}

	s.logActivity(ctx, project.ID, actor.UserID, "UPDATED",
		fmt.Sprintf("Project %s updated", project.Name))
	return project, nil
}

func (s *service) AddMember(ctx context.Context, actor authz.Actor, projectID, userID uuid.UUID) error {
	project, err := s.Get(ctx, actor, projectID)
	if err != nil {
		return err
	}
	if actor.UserID != project.PMID && !actor.HasRole(project.TenantID, authz.RoleTenantAdmin) {
		return apperr.Forbidden("only the project manager or a tenant admin may add members")
	}

	existing, err := s.repo.IsMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if existing {
		return apperr.Validation("user_id")
	}

	if err := s.repo.AddMember(ctx, &ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		JoinedAt:  time.Now(),
	}); err != nil {
		return err
	}

	s.logActivity(ctx, projectID, actor.UserID, "MEMBER_ADDED",
		fmt.Sprintf("User %s added to team", userID))
	return nil
}

func (s *service) RemoveMember(ctx context.Context, actor authz.Actor, projectID, userID uuid.UUID) error {
	project, err := s.Get(ctx, actor, projectID)
	if err != nil {
		return err
	}
	if !authz.CanRemoveMember(actor, project.Snapshot(), userID) {
		return apperr.Forbidden("not allowed to remove this member")
	}

	if err := s.repo.RemoveMember(ctx, projectID, userID); err != nil {
		return err
	}

	s.logActivity(ctx, projectID, actor.UserID, "MEMBER_REMOVED",
		fmt.Sprintf("User %s removed from team", userID))
	return nil
}

func (s *service) ListMembers(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*ProjectMember, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, projectID)
}

func (s *service) Activity(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*ProjectActivity, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListActivity(ctx, projectID)
}

func (s *service) logActivity(ctx context.Context, projectID, userID uuid.UUID, activityType, description string) {
	err := s.repo.AddActivity(ctx, &ProjectActivity{
		ProjectID:    projectID,
		ActivityType: activityType,
		Description:  description,
		CreatedAt:    time.Now(),
		UserID:       userID,
	})
	if err != nil {
		s.logger.Warn("failed to record project activity",
			zap.String("project_id", projectID.String()),
			zap.String("activity_type", activityType),
			zap.Error(err))
	}
}
