package workflows

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
	"opshub/opshub-backend/pkg/statemachine"
)

// Event asks the notification layer to tell a user about a lifecycle
// change. Delivery is best effort and never affects the state commit.
type Event struct {
	Kind         string
	TenantID     uuid.UUID
	TargetUserID uuid.UUID
	ActorID      uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
}

// Event kinds emitted by the lifecycle.
const (
	EventSubmitted = "workflow_submitted"
	EventApproved  = "workflow_approved"
	EventRejected  = "workflow_rejected"
	EventWithdrawn = "workflow_withdrawn"
)

// Dispatcher delivers lifecycle events to users. Implementations must be
// safe to call after the state change is committed; errors are logged by
// the lifecycle and never propagated.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// CreateAction selects whether a new workflow stays in draft or is
// submitted in the same call.
type CreateAction string

const (
	CreateDraft  CreateAction = "draft"
	CreateSubmit CreateAction = "submit"
)

// CreateWorkflowRequest is the payload for new approval requests.
type CreateWorkflowRequest struct {
	Type        WorkflowType `json:"type"`
	ApproverID  uuid.UUID    `json:"approver_id"`
	AmountCents int64        `json:"amount_cents"`
	DateFrom    *time.Time   `json:"date_from"`
	DateTo      *time.Time   `json:"date_to"`
	Description string       `json:"description"`
	Action      CreateAction `json:"action"`
}

// UpdateWorkflowRequest edits a draft. Nil fields are left unchanged.
// The approver can only be reassigned while the workflow is a draft.
type UpdateWorkflowRequest struct {
	ApproverID  *uuid.UUID    `json:"approver_id"`
	AmountCents *int64        `json:"amount_cents"`
	DateFrom    *time.Time    `json:"date_from"`
	DateTo      *time.Time    `json:"date_to"`
	Description *string       `json:"description"`
	Type        *WorkflowType `json:"type"`
}

// Service is the workflow lifecycle: every status change runs the same
// three-phase protocol — validate the transition, authorize the actor,
// then commit conditionally on the prior status.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, req CreateWorkflowRequest) (*Workflow, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error)
	List(ctx context.Context, actor authz.Actor, filter WorkflowFilter) ([]*Workflow, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req UpdateWorkflowRequest) (*Workflow, error)
	Submit(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error)
	Approve(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error)
	Reject(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) (*Workflow, error)
	Withdraw(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error)
	History(ctx context.Context, actor authz.Actor, id uuid.UUID) ([]*WorkflowStatusHistory, error)
}

type service struct {
	repo       Repository
	dispatcher Dispatcher
	machine    *statemachine.StateMachine
	logger     *zap.Logger
}

// NewService creates the workflow lifecycle service.
func NewService(repo Repository, dispatcher Dispatcher, logger *zap.Logger) Service {
	return &service{
		repo:       repo,
		dispatcher: dispatcher,
		machine:    statemachine.New(Transitions()),
		logger:     logger,
	}
}

func validWorkflowType(t WorkflowType) bool {
	switch t {
	case TypeExpense, TypeLeave, TypePurchase, TypeOther:
		return true
	}
	return false
}

func (s *service) Create(ctx context.Context, actor authz.Actor, req CreateWorkflowRequest) (*Workflow, error) {
	var badFields []string
	if !validWorkflowType(req.Type) {
		badFields = append(badFields, "type")
	}
	if req.AmountCents < 0 {
		badFields = append(badFields, "amount_cents")
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		badFields = append(badFields, "date_to")
	}
	if req.Action != "" && req.Action != CreateDraft && req.Action != CreateSubmit {
		badFields = append(badFields, "action")
	}
	if len(badFields) > 0 {
		return nil, apperr.Validation(badFields...)
	}

	now := time.Now()
	wf := &Workflow{
		TenantID:    actor.ActiveTenant,
		Type:        req.Type,
		Status:      StatusDraft,
		CreatedBy:   actor.UserID,
		ApproverID:  req.ApproverID,
		AmountCents: req.AmountCents,
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, err
	}

	// An immediate submission goes through the exact same protocol as a
	// standalone submit call, so the transition is validated, authorized
	// and recorded exactly once.
	if req.Action == CreateSubmit {
		return s.Submit(ctx, actor, wf.ID)
	}
	return wf, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error) {
	wf, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.TenantID != actor.ActiveTenant {
		return nil, apperr.NotFound("workflow")
	}
	return wf, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, filter WorkflowFilter) ([]*Workflow, error) {
	filter.TenantID = actor.ActiveTenant
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, req UpdateWorkflowRequest) (*Workflow, error) {
	wf, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanPerformWorkflow(authz.ActionUpdate, actor, wf.Snapshot()) {
		return nil, apperr.Forbidden("only the owner may update a workflow")
	}
	if !authz.CanPerformWorkflow(authz.ActionEdit, actor, wf.Snapshot()) {
		return nil, apperr.Forbidden("only draft workflows can be edited")
	}

	if req.Type != nil {
		if !validWorkflowType(*req.Type) {
			return nil, apperr.Validation("type")
		}
		wf.Type = *req.Type
	}
	if req.ApproverID != nil {
		wf.ApproverID = *req.ApproverID
	}
	if req.AmountCents != nil {
		if *req.AmountCents < 0 {
			return nil, apperr.Validation("amount_cents")
		}
		wf.AmountCents = *req.AmountCents
	}
	if req.DateFrom != nil {
		wf.DateFrom = req.DateFrom
	}
	if req.DateTo != nil {
		wf.DateTo = req.DateTo
	}
	if wf.DateFrom != nil && wf.DateTo != nil && wf.DateTo.Before(*wf.DateFrom) {
		return nil, apperr.Validation("date_to")
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}

	wf.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, wf, StatusDraft); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *service) Submit(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error) {
	return s.transition(ctx, actor, id, authz.ActionSubmit, StatusSubmitted, transitionOpts{
		forbiddenReason: "only the owner may submit this workflow",
		eventKind:       EventSubmitted,
		eventTarget:     func(wf *Workflow) uuid.UUID { return wf.ApproverID },
	})
}

func (s *service) Approve(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error) {
	return s.transition(ctx, actor, id, authz.ActionApprove, StatusApproved, transitionOpts{
		forbiddenReason: "approving requires an approver or tenant admin role",
		eventKind:       EventApproved,
		eventTarget:     func(wf *Workflow) uuid.UUID { return wf.CreatedBy },
		mutate: func(wf *Workflow, now time.Time) {
			wf.ApprovedAt = &now
		},
	})
}

func (s *service) Reject(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) (*Workflow, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("reason")
	}
	return s.transition(ctx, actor, id, authz.ActionReject, StatusRejected, transitionOpts{
		forbiddenReason: "rejecting requires an approver or tenant admin role",
		eventKind:       EventRejected,
		eventTarget:     func(wf *Workflow) uuid.UUID { return wf.CreatedBy },
		note:            reason,
		mutate: func(wf *Workflow, now time.Time) {
			wf.RejectionReason = reason
		},
	})
}

func (s *service) Withdraw(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error) {
	return s.transition(ctx, actor, id, authz.ActionWithdraw, StatusWithdrawn, transitionOpts{
		forbiddenReason: "only the owner may withdraw this workflow",
		eventKind:       EventWithdrawn,
		eventTarget:     func(wf *Workflow) uuid.UUID { return wf.ApproverID },
	})
}

func (s *service) History(ctx context.Context, actor authz.Actor, id uuid.UUID) ([]*WorkflowStatusHistory, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id)
}

type transitionOpts struct {
	forbiddenReason string
	eventKind       string
	eventTarget     func(*Workflow) uuid.UUID
	note            string
	mutate          func(*Workflow, time.Time)
}

// transition runs the shared three-phase protocol. The transition check
// deliberately runs before authorization: a request that is both an
// illegal transition and unauthorized reports InvalidTransition, so
// callers are not told they lack permission for an action that was never
// legal from the current state.
func (s *service) transition(ctx context.Context, actor authz.Actor, id uuid.UUID, action authz.Action, target string, opts transitionOpts) (*Workflow, error) {
	wf, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !s.machine.CanTransition(wf.Status, target) {
		return nil, apperr.InvalidTransition(wf.Status, target)
	}
	if !authz.CanPerformWorkflow(action, actor, wf.Snapshot()) {
		return nil, apperr.Forbidden(opts.forbiddenReason)
	}

	prior := wf.Status
	now := time.Now()
	wf.Status = target
	wf.UpdatedAt = now
	if opts.mutate != nil {
		opts.mutate(wf, now)
	}

	if err := s.repo.Save(ctx, wf, prior); err != nil {
		return nil, err
	}

	if err := s.repo.AppendHistory(ctx, &WorkflowStatusHistory{
		WorkflowID: wf.ID,
		FromStatus: prior,
		ToStatus:   target,
		ChangedAt:  now,
		ChangedBy:  actor.UserID,
		Note:       opts.note,
	}); err != nil {
		s.logger.Warn("failed to record workflow status history",
			zap.String("workflow_id", wf.ID.String()),
			zap.Error(err))
	}

	s.notify(ctx, actor, wf, opts)
	return wf, nil
}

// notify is best effort and runs strictly after the commit. A delivery
// failure never rolls back the state change.
func (s *service) notify(ctx context.Context, actor authz.Actor, wf *Workflow, opts transitionOpts) {
	if s.dispatcher == nil || opts.eventKind == "" {
		return
	}
	target := opts.eventTarget(wf)
	if target == uuid.Nil {
		return
	}
	event := Event{
		Kind:         opts.eventKind,
		TenantID:     wf.TenantID,
		TargetUserID: target,
		ActorID:      actor.UserID,
		ResourceType: "workflow",
		ResourceID:   wf.ID,
	}
	if err := s.dispatcher.Notify(ctx, event); err != nil {
		s.logger.Warn("failed to dispatch workflow notification",
			zap.String("workflow_id", wf.ID.String()),
			zap.String("event_kind", opts.eventKind),
			zap.Error(err))
	}
}
