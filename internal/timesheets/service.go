package timesheets

import (
	"context"
	"time"

	"github.com/google/uuid"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

// MembershipChecker reports whether a user belongs to a project's team.
// Implemented by the projects repository.
type MembershipChecker interface {
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
}

// LogRequest is the payload for recording worked hours.
type LogRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	WorkDate  string    `json:"work_date"` // YYYY-MM-DD
	Hours     float64   `json:"hours"`
	Note      string    `json:"note"`
	Billable  *bool     `json:"billable"`
}

// Service records and reports worked hours. Users log against projects
// they belong to; admins see the whole tenant.
type Service interface {
	Log(ctx context.Context, actor authz.Actor, req LogRequest) (*Entry, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req LogRequest) (*Entry, error)
	Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error
	List(ctx context.Context, actor authz.Actor, filter Filter) ([]*Entry, error)
	ProjectTotals(ctx context.Context, actor authz.Actor, from, to time.Time) ([]ProjectTotal, error)
}

type service struct {
	repo    Repository
	members MembershipChecker
}

func NewService(repo Repository, members MembershipChecker) Service {
	return &service{repo: repo, members: members}
}

const workDateLayout = "2006-01-02"

func (s *service) validate(req LogRequest) (time.Time, error) {
	var badFields []string
	workDate, err := time.Parse(workDateLayout, req.WorkDate)
	if err != nil {
		badFields = append(badFields, "work_date")
	}
	if req.Hours <= 0 || req.Hours > 24 {
		badFields = append(badFields, "hours")
	}
	if req.ProjectID == uuid.Nil {
		badFields = append(badFields, "project_id")
	}
	if len(badFields) > 0 {
		return time.Time{}, apperr.Validation(badFields...)
	}
	return workDate, nil
}

func (s *service) Log(ctx context.Context, actor authz.Actor, req LogRequest) (*Entry, error) {
	workDate, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	isMember, err := s.members.IsMember(ctx, req.ProjectID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("not a member of this project")
	}

	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}

	now := time.Now()
	entry := &Entry{
		TenantID:  actor.ActiveTenant,
		UserID:    actor.UserID,
		ProjectID: req.ProjectID,
		WorkDate:  workDate,
		Hours:     req.Hours,
		Note:      req.Note,
		Billable:  billable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update edits an existing entry. Only the author may edit; the project
// cannot be changed after the fact.
func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req LogRequest) (*Entry, error) {
	entry, err := s.repo.GetByID(ctx, actor.ActiveTenant, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != actor.UserID {
		return nil, apperr.Forbidden("only the author can edit a timesheet entry")
	}

	req.ProjectID = entry.ProjectID
	workDate, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	entry.WorkDate = workDate
	entry.Hours = req.Hours
	entry.Note = req.Note
	if req.Billable != nil {
		entry.Billable = *req.Billable
	}
	entry.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	entry, err := s.repo.GetByID(ctx, actor.ActiveTenant, id)
	if err != nil {
		return err
	}
	if entry.UserID != actor.UserID && !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		return apperr.Forbidden("only the author or a tenant admin can delete a timesheet entry")
	}
	return s.repo.Delete(ctx, actor.ActiveTenant, id)
}

// List returns entries in the actor's tenant. Non-admins only see
// their own entries regardless of the requested filter.
func (s *service) List(ctx context.Context, actor authz.Actor, filter Filter) ([]*Entry, error) {
	if !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		filter.UserID = &actor.UserID
	}
	return s.repo.List(ctx, actor.ActiveTenant, filter)
}

func (s *service) ProjectTotals(ctx context.Context, actor authz.Actor, from, to time.Time) ([]ProjectTotal, error) {
	if !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		return nil, apperr.Forbidden("tenant admin role required")
	}
	return s.repo.ProjectTotals(ctx, actor.ActiveTenant, from, to)
}
