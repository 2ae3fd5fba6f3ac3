package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

// memoryRepo is an in-memory Repository with the same conditional-write
// semantics as the gorm implementation.
type memoryRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Workflow
	history []*WorkflowStatusHistory

	historyErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[uuid.UUID]*Workflow)}
}

func copyWorkflow(wf *Workflow) *Workflow {
	clone := *wf
	return &clone
}

func (r *memoryRepo) Create(ctx context.Context, wf *Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	r.items[wf.ID] = copyWorkflow(wf)
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("workflow")
	}
	return copyWorkflow(wf), nil
}

func (r *memoryRepo) Save(ctx context.Context, wf *Workflow, expectedStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[wf.ID]
	if !ok {
		return apperr.NotFound("workflow")
	}
	if stored.Status != expectedStatus {
		return apperr.ErrConflict
	}
	r.items[wf.ID] = copyWorkflow(wf)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Workflow
	for _, wf := range r.items {
		if wf.TenantID == filter.TenantID {
			out = append(out, copyWorkflow(wf))
		}
	}
	return out, nil
}

func (r *memoryRepo) AppendHistory(ctx context.Context, entry *WorkflowStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.historyErr != nil {
		return r.historyErr
	}
	r.history = append(r.history, entry)
	return nil
}

func (r *memoryRepo) ListHistory(ctx context.Context, workflowID uuid.UUID) ([]*WorkflowStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*WorkflowStatusHistory
	for _, entry := range r.history {
		if entry.WorkflowID == workflowID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// staleReadRepo serves a fixed snapshot from GetByID while writes still go
// against the live store, reproducing two racing operations that both
// loaded the same prior state.
type staleReadRepo struct {
	*memoryRepo
	snapshot *Workflow
}

func (r *staleReadRepo) GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	return copyWorkflow(r.snapshot), nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (d *recordingDispatcher) Notify(ctx context.Context, event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, event := range d.events {
		out = append(out, event.Kind)
	}
	return out
}

type fixture struct {
	repo       *memoryRepo
	dispatcher *recordingDispatcher
	service    Service

	tenantID   uuid.UUID
	owner      authz.Actor
	approver   authz.Actor
	member     authz.Actor
	approverID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	dispatcher := &recordingDispatcher{}

	tenantID := uuid.New()
	ownerID := uuid.New()
	approverID := uuid.New()

	return &fixture{
		repo:       repo,
		dispatcher: dispatcher,
		service:    NewService(repo, dispatcher, zap.NewNop()),
		tenantID:   tenantID,
		approverID: approverID,
		owner: authz.Actor{
			UserID:       ownerID,
			ActiveTenant: tenantID,
			Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleMember}},
		},
		approver: authz.Actor{
			UserID:       approverID,
			ActiveTenant: tenantID,
			Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleApprover}},
		},
		member: authz.Actor{
			UserID:       uuid.New(),
			ActiveTenant: tenantID,
			Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleMember}},
		},
	}
}

func (f *fixture) createDraft(t *testing.T) *Workflow {
	t.Helper()
	wf, err := f.service.Create(context.Background(), f.owner, CreateWorkflowRequest{
		Type:        TypeExpense,
		ApproverID:  f.approverID,
		AmountCents: 12500,
		Description: "Team offsite travel",
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, wf.Status)
	return wf
}

func TestCreateStartsAtDraft(t *testing.T) {
	f := newFixture(t)

	wf := f.createDraft(t)

	assert.Equal(t, f.owner.UserID, wf.CreatedBy)
	assert.Equal(t, f.tenantID, wf.TenantID)
	assert.Empty(t, f.dispatcher.kinds())

	history, err := f.service.History(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCreateRejectsBadPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.owner, CreateWorkflowRequest{
		Type:        WorkflowType("vacation"),
		AmountCents: -5,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	var tagged *apperr.Error
	require.ErrorAs(t, err, &tagged)
	assert.ElementsMatch(t, []string{"type", "amount_cents"}, tagged.Fields)
}

func TestCreateWithImmediateSubmit(t *testing.T) {
	f := newFixture(t)

	wf, err := f.service.Create(context.Background(), f.owner, CreateWorkflowRequest{
		Type:        TypeLeave,
		ApproverID:  f.approverID,
		Description: "Two weeks in March",
		Action:      CreateSubmit,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, wf.Status)

	// Exactly one recorded transition, identical to create-then-submit.
	history, err := f.service.History(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusDraft, history[0].FromStatus)
	assert.Equal(t, StatusSubmitted, history[0].ToStatus)

	assert.Equal(t, []string{EventSubmitted}, f.dispatcher.kinds())
}

func TestSubmitNotifiesApprover(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	updated, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, updated.Status)

	require.Len(t, f.dispatcher.events, 1)
	event := f.dispatcher.events[0]
	assert.Equal(t, EventSubmitted, event.Kind)
	assert.Equal(t, f.approverID, event.TargetUserID)
	assert.Equal(t, wf.ID, event.ResourceID)
}

func TestSubmitByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	// Legal source state, wrong actor: must be Forbidden, not a
	// transition error.
	_, err := f.service.Submit(context.Background(), f.member, wf.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = f.service.Submit(context.Background(), f.approver, wf.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestSubmitTwiceNotIdempotent(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	_, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), f.owner, wf.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	var tagged *apperr.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, StatusSubmitted, tagged.From)
	assert.Equal(t, StatusSubmitted, tagged.To)
}

func TestApproveLifecycle(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	_, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)

	approved, err := f.service.Approve(context.Background(), f.approver, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.WithinDuration(t, time.Now(), *approved.ApprovedAt, time.Minute)

	// Owner is notified of the decision.
	assert.Equal(t, []string{EventSubmitted, EventApproved}, f.dispatcher.kinds())
	assert.Equal(t, f.owner.UserID, f.dispatcher.events[1].TargetUserID)

	// Approved is terminal: the owner can no longer withdraw.
	_, err = f.service.Withdraw(context.Background(), f.owner, wf.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
}

func TestApproveFromDraftIsInvalidTransitionNotForbidden(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	// Role-correct but wrong-state: the transition check runs first.
	_, err := f.service.Approve(context.Background(), f.approver, wf.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	// Wrong state AND wrong role still reports the transition error.
	_, err = f.service.Approve(context.Background(), f.member, wf.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
}

func TestApproveByPlainMemberForbidden(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	_, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)

	_, err = f.service.Approve(context.Background(), f.member, wf.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestApproveByTenantAdmin(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	_, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)

	admin := authz.Actor{
		UserID:       uuid.New(),
		ActiveTenant: f.tenantID,
		Roles:        []authz.TenantRole{{TenantID: f.tenantID, Role: authz.RoleTenantAdmin}},
	}
	approved, err := f.service.Approve(context.Background(), admin, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	_, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)

	_, err = f.service.Reject(context.Background(), f.approver, wf.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	var tagged *apperr.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, []string{"reason"}, tagged.Fields)
}

func TestRejectThenResubmit(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)

	rejected, err := f.service.Reject(ctx, f.approver, wf.ID, "insufficient detail")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "insufficient detail", rejected.RejectionReason)

	// rejected -> submitted is a valid edge for the owner.
	resubmitted, err := f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, resubmitted.Status)

	// A plain member still cannot approve.
	_, err = f.service.Approve(ctx, f.member, wf.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	history, err := f.service.History(ctx, f.owner, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "insufficient detail", history[1].Note)
}

func TestWithdrawFromSubmitted(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)

	withdrawn, err := f.service.Withdraw(ctx, f.owner, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, withdrawn.Status)

	// Withdrawn is terminal.
	_, err = f.service.Submit(ctx, f.owner, wf.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	// The approver is told the request went away.
	kinds := f.dispatcher.kinds()
	assert.Equal(t, EventWithdrawn, kinds[len(kinds)-1])
}

func TestWithdrawByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)

	_, err = f.service.Withdraw(ctx, f.approver, wf.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestConcurrentApprovesOneWins(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)
	ctx := context.Background()

	submitted, err := f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)

	// Both operations observe the same submitted snapshot; the second
	// conditional write must lose with Conflict, never double-approve.
	stale := &staleReadRepo{memoryRepo: f.repo, snapshot: submitted}
	racing := NewService(stale, f.dispatcher, zap.NewNop())

	_, err = racing.Approve(ctx, f.approver, wf.ID)
	require.NoError(t, err)

	_, err = racing.Approve(ctx, f.approver, wf.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("notification broker unavailable")
	wf := f.createDraft(t)

	updated, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, updated.Status)

	stored, err := f.repo.GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, stored.Status)
}

func TestHistoryFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.repo.historyErr = errors.New("history table unavailable")
	wf := f.createDraft(t)

	updated, err := f.service.Submit(context.Background(), f.owner, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, updated.Status)
}

func TestUpdateDraftOnly(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)
	ctx := context.Background()

	newApprover := uuid.New()
	description := "Updated itinerary"
	updated, err := f.service.Update(ctx, f.owner, wf.ID, UpdateWorkflowRequest{
		ApproverID:  &newApprover,
		Description: &description,
	})
	require.NoError(t, err)
	assert.Equal(t, newApprover, updated.ApproverID)
	assert.Equal(t, "Updated itinerary", updated.Description)

	_, err = f.service.Submit(ctx, f.owner, wf.ID)
	require.NoError(t, err)

	// Submitted workflows are frozen: approver reassignment included.
	_, err = f.service.Update(ctx, f.owner, wf.ID, UpdateWorkflowRequest{ApproverID: &newApprover})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestUpdateByNonOwnerForbiddenRegardlessOfStatus(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	description := "hijacked"
	_, err := f.service.Update(context.Background(), f.member, wf.ID, UpdateWorkflowRequest{Description: &description})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestUnknownWorkflowNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Submit(context.Background(), f.owner, uuid.New())
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCrossTenantAccessLooksLikeNotFound(t *testing.T) {
	f := newFixture(t)
	wf := f.createDraft(t)

	outsider := authz.Actor{
		UserID:       f.owner.UserID,
		ActiveTenant: uuid.New(),
	}
	_, err := f.service.Get(context.Background(), outsider, wf.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
