package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ReminderWorker nudges approvers about submitted workflows that have
// been sitting untouched for too long.
type ReminderWorker struct {
	db         *sqlx.DB
	logger     *zap.Logger
	staleAfter time.Duration
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(db *sqlx.DB, logger *zap.Logger, staleAfter time.Duration) *ReminderWorker {
	return &ReminderWorker{db: db, logger: logger, staleAfter: staleAfter}
}

type staleWorkflow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Type        string    `db:"type"`
	Description string    `db:"description"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Run scans for stale submitted workflows and writes a reminder
// notification for every approver in the workflow's tenant. A reminder
// is only written once per workflow and approver per day.
func (w *ReminderWorker) Run(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)

	query := `
		SELECT id, tenant_id, type, description, updated_at
		FROM workflows
		WHERE status = 'submitted'
		  AND updated_at <= $1
		  AND deleted_at IS NULL
		ORDER BY updated_at ASC
	`

	var stale []staleWorkflow
	if err := w.db.SelectContext(ctx, &stale, query, cutoff); err != nil {
		w.logger.Error("Failed to query stale workflows", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	w.logger.Info("Sending approval reminders", zap.Int("stale_workflows", len(stale)))

	insert := `
		INSERT INTO notifications (id, tenant_id, user_id, kind, resource_type, resource_id, payload, created_at)
		SELECT gen_random_uuid(), rg.tenant_id, rg.user_id, 'workflow_reminder', 'workflow', $1,
		       json_build_object('type', $2::text, 'description', $3::text, 'waiting_since', $4::timestamptz)::jsonb,
		       NOW()
		FROM role_grants rg
		WHERE rg.tenant_id = $5
		  AND rg.role IN ('approver', 'tenant_admin')
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.user_id = rg.user_id
			  AND n.resource_id = $1
			  AND n.kind = 'workflow_reminder'
			  AND n.created_at > NOW() - INTERVAL '1 day'
		  )
	`

	reminded := 0
	for _, wf := range stale {
		result, err := w.db.ExecContext(ctx, insert,
			wf.ID, wf.Type, wf.Description, wf.UpdatedAt, wf.TenantID)
		if err != nil {
			w.logger.Error("Failed to insert reminder",
				zap.String("workflow_id", wf.ID), zap.Error(err))
			continue
		}
		rows, _ := result.RowsAffected()
		reminded += int(rows)
	}

	w.logger.Info("Approval reminders sent", zap.Int("notifications", reminded))
}
