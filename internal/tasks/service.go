package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
	"opshub/opshub-backend/pkg/statemachine"
)

// MembershipChecker reports whether a user belongs to a project's team.
// Implemented by the projects repository.
type MembershipChecker interface {
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
}

// CreateTaskRequest is the payload for new tasks.
type CreateTaskRequest struct {
	ProjectID   uuid.UUID  `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
}

// Service is the task board lifecycle. Moving a task is gated by
// transition validity alone: any project member may move any task.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, req CreateTaskRequest) (*Task, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Task, error)
	ListByProject(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*Task, error)
	Move(ctx context.Context, actor authz.Actor, id uuid.UUID, from, to string) (*Task, error)
	Assign(ctx context.Context, actor authz.Actor, id uuid.UUID, assigneeID *uuid.UUID) (*Task, error)
}

type service struct {
	repo    Repository
	members MembershipChecker
	machine *statemachine.StateMachine
}

// NewService creates the task lifecycle service.
func NewService(repo Repository, members MembershipChecker) Service {
	return &service{
		repo:    repo,
		members: members,
		machine: statemachine.New(Transitions()),
	}
}

func (s *service) requireMember(ctx context.Context, projectID uuid.UUID, actor authz.Actor) error {
	isMember, err := s.members.IsMember(ctx, projectID, actor.UserID)
	if err != nil {
		return err
	}
	if !isMember && !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		return apperr.Forbidden("not a member of this project")
	}
	return nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, req CreateTaskRequest) (*Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.Validation("title")
	}
	if err := s.requireMember(ctx, req.ProjectID, actor); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		TenantID:    actor.ActiveTenant,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusTodo,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.TenantID != actor.ActiveTenant {
		return nil, apperr.NotFound("task")
	}
	return task, nil
}

func (s *service) ListByProject(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*Task, error) {
	if err := s.requireMember(ctx, projectID, actor); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

// Move commits a board drag. The from label comes from the client so a
// stale board loses with Conflict at the conditional write instead of
// jumping the task from a state it is no longer in.
func (s *service) Move(ctx context.Context, actor authz.Actor, id uuid.UUID, from, to string) (*Task, error) {
	task, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, task.ProjectID, actor); err != nil {
		return nil, err
	}

	if !s.machine.CanTransition(from, to) {
		return nil, apperr.InvalidTransition(from, to)
	}

	task.Status = to
	task.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, task, from); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *service) Assign(ctx context.Context, actor authz.Actor, id uuid.UUID, assigneeID *uuid.UUID) (*Task, error) {
	task, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, task.ProjectID, actor); err != nil {
		return nil, err
	}

	task.AssigneeID = assigneeID
	task.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, task, task.Status); err != nil {
		return nil, err
	}
	return task, nil
}
