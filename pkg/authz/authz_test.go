package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var (
	tenantID = uuid.New()
	ownerID  = uuid.New()
	otherID  = uuid.New()
)

func owner() Actor {
	return Actor{
		UserID:       ownerID,
		Roles:        []TenantRole{{TenantID: tenantID, Role: RoleMember}},
		ActiveTenant: tenantID,
	}
}

func approver() Actor {
	return Actor{
		UserID:       otherID,
		Roles:        []TenantRole{{TenantID: tenantID, Role: RoleApprover}},
		ActiveTenant: tenantID,
	}
}

func tenantAdmin() Actor {
	return Actor{
		UserID:       otherID,
		Roles:        []TenantRole{{TenantID: tenantID, Role: RoleTenantAdmin}},
		ActiveTenant: tenantID,
	}
}

func wf(status string) WorkflowSnapshot {
	return WorkflowSnapshot{TenantID: tenantID, CreatedBy: ownerID, Status: status}
}

func TestSubmitRequiresOwnership(t *testing.T) {
	assert.True(t, CanPerformWorkflow(ActionSubmit, owner(), wf("draft")))
	assert.True(t, CanPerformWorkflow(ActionSubmit, owner(), wf("rejected")))
	assert.False(t, CanPerformWorkflow(ActionSubmit, approver(), wf("draft")))
	assert.False(t, CanPerformWorkflow(ActionSubmit, tenantAdmin(), wf("draft")))
}

func TestSubmitDeniedFromWrongStatus(t *testing.T) {
	assert.False(t, CanPerformWorkflow(ActionSubmit, owner(), wf("submitted")))
	assert.False(t, CanPerformWorkflow(ActionSubmit, owner(), wf("approved")))
	assert.False(t, CanPerformWorkflow(ActionSubmit, owner(), wf("withdrawn")))
}

func TestApproveRejectRoleBased(t *testing.T) {
	for _, action := range []Action{ActionApprove, ActionReject} {
		assert.True(t, CanPerformWorkflow(action, approver(), wf("submitted")), string(action))
		assert.True(t, CanPerformWorkflow(action, tenantAdmin(), wf("submitted")), string(action))
		assert.False(t, CanPerformWorkflow(action, owner(), wf("submitted")), string(action))
	}
}

func TestApproveRejectRequireSubmittedStatus(t *testing.T) {
	for _, status := range []string{"draft", "approved", "rejected", "withdrawn"} {
		assert.False(t, CanPerformWorkflow(ActionApprove, approver(), wf(status)), status)
		assert.False(t, CanPerformWorkflow(ActionReject, approver(), wf(status)), status)
	}
}

func TestApproverRoleScopedToTenant(t *testing.T) {
	foreignApprover := Actor{
		UserID: otherID,
		Roles:  []TenantRole{{TenantID: uuid.New(), Role: RoleApprover}},
	}

	assert.False(t, CanPerformWorkflow(ActionApprove, foreignApprover, wf("submitted")))
}

func TestWithdrawOwnerOnly(t *testing.T) {
	assert.True(t, CanPerformWorkflow(ActionWithdraw, owner(), wf("submitted")))
	assert.True(t, CanPerformWorkflow(ActionWithdraw, owner(), wf("rejected")))
	assert.False(t, CanPerformWorkflow(ActionWithdraw, owner(), wf("draft")))
	assert.False(t, CanPerformWorkflow(ActionWithdraw, owner(), wf("approved")))
	assert.False(t, CanPerformWorkflow(ActionWithdraw, approver(), wf("submitted")))
	assert.False(t, CanPerformWorkflow(ActionWithdraw, tenantAdmin(), wf("submitted")))
}

func TestEditOnlyOwnedDrafts(t *testing.T) {
	assert.True(t, CanPerformWorkflow(ActionEdit, owner(), wf("draft")))
	assert.False(t, CanPerformWorkflow(ActionEdit, owner(), wf("submitted")))
	assert.False(t, CanPerformWorkflow(ActionEdit, approver(), wf("draft")))
}

func TestUpdateOwnershipNecessary(t *testing.T) {
	assert.True(t, CanPerformWorkflow(ActionUpdate, owner(), wf("draft")))
	assert.True(t, CanPerformWorkflow(ActionUpdate, owner(), wf("submitted")))
	assert.False(t, CanPerformWorkflow(ActionUpdate, approver(), wf("draft")))
}

func TestUnknownActionDenied(t *testing.T) {
	assert.False(t, CanPerformWorkflow(Action("delete"), tenantAdmin(), wf("draft")))
}

func TestRemoveMember(t *testing.T) {
	pmID := uuid.New()
	memberID := uuid.New()
	project := ProjectSnapshot{TenantID: tenantID, PMID: pmID}

	pm := Actor{UserID: pmID}
	admin := tenantAdmin()
	member := Actor{UserID: memberID, Roles: []TenantRole{{TenantID: tenantID, Role: RoleMember}}}

	assert.True(t, CanRemoveMember(pm, project, memberID))
	assert.True(t, CanRemoveMember(admin, project, memberID))
	assert.False(t, CanRemoveMember(member, project, memberID))

	// The PM can never be removed, not even by a tenant admin.
	assert.False(t, CanRemoveMember(admin, project, pmID))
	assert.False(t, CanRemoveMember(pm, project, pmID))
}
