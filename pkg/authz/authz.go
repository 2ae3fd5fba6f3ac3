package authz

import "github.com/google/uuid"

// Role is a tenant-scoped role grant.
type Role string

const (
	RoleMember      Role = "member"
	RoleApprover    Role = "approver"
	RoleTenantAdmin Role = "tenant_admin"
)

// Action is the closed set of authorization-gated operations. Keeping the
// enum closed means every rule lives in this package instead of string
// comparisons scattered across call sites.
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionWithdraw     Action = "withdraw"
	ActionEdit         Action = "edit"
	ActionUpdate       Action = "update"
	ActionRemoveMember Action = "remove_member"
)

// TenantRole is one (tenant, role) membership of an actor.
type TenantRole struct {
	TenantID uuid.UUID
	Role     Role
}

// Actor is the authenticated identity evaluated for one authorization
// decision. It is a snapshot derived from the request context, never
// persisted or cached across calls.
type Actor struct {
	UserID       uuid.UUID
	Roles        []TenantRole
	ActiveTenant uuid.UUID
}

// HasRole reports whether the actor holds any of the given roles in the
// given tenant.
func (a Actor) HasRole(tenantID uuid.UUID, roles ...Role) bool {
	for _, grant := range a.Roles {
		if grant.TenantID != tenantID {
			continue
		}
		for _, role := range roles {
			if grant.Role == role {
				return true
			}
		}
	}
	return false
}

// WorkflowSnapshot is the slice of a workflow entity the policy needs.
type WorkflowSnapshot struct {
	TenantID  uuid.UUID
	CreatedBy uuid.UUID
	Status    string
}

// ProjectSnapshot is the slice of a project entity the policy needs.
type ProjectSnapshot struct {
	TenantID uuid.UUID
	PMID     uuid.UUID
}

// Workflow statuses the policy rules reference. Values match the
// persisted status column.
const (
	statusDraft     = "draft"
	statusSubmitted = "submitted"
	statusRejected  = "rejected"
)

// CanPerformWorkflow decides whether the actor may perform the given
// action on a workflow. Pure function of the two snapshots; callers must
// re-evaluate it on every request against the latest persisted state.
//
// Approve/reject is role-based: any approver or tenant_admin in the
// workflow's tenant may decide, not only the designated approver. The
// designated approver is a notification target, not an authorization
// restriction.
//
// Task board moves carry no per-user rule: any project member may move
// any task, gated only by transition validity in the task lifecycle.
func CanPerformWorkflow(action Action, actor Actor, wf WorkflowSnapshot) bool {
	isOwner := actor.UserID == wf.CreatedBy

	switch action {
	case ActionSubmit:
		return isOwner && (wf.Status == statusDraft || wf.Status == statusRejected)
	case ActionApprove, ActionReject:
		return actor.HasRole(wf.TenantID, RoleApprover, RoleTenantAdmin) &&
			wf.Status == statusSubmitted
	case ActionWithdraw:
		return isOwner && (wf.Status == statusSubmitted || wf.Status == statusRejected)
	case ActionEdit:
		return isOwner && wf.Status == statusDraft
	case ActionUpdate:
		// Ownership is necessary; the concrete status rule is re-checked
		// by the edit/transition path at the call site.
		return isOwner
	default:
		return false
	}
}

// CanRemoveMember decides whether the actor may remove target from a
// project. The project manager themselves can never be removed.
func CanRemoveMember(actor Actor, project ProjectSnapshot, targetUserID uuid.UUID) bool {
	if targetUserID == project.PMID {
		return false
	}
	if actor.UserID == project.PMID {
		return true
	}
	return actor.HasRole(project.TenantID, RoleTenantAdmin)
}
