package timesheets

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Entry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[uuid.UUID]*Entry)}
}

func copyEntry(entry *Entry) *Entry {
	clone := *entry
	return &clone
}

func (r *memoryRepo) Create(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.items[entry.ID] = copyEntry(entry)
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.items[id]
	if !ok || entry.TenantID != tenantID {
		return nil, apperr.NotFound("timesheet entry")
	}
	return copyEntry(entry), nil
}

func (r *memoryRepo) Update(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[entry.ID]; !ok {
		return apperr.NotFound("timesheet entry")
	}
	r.items[entry.ID] = copyEntry(entry)
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.items[id]
	if !ok || entry.TenantID != tenantID {
		return apperr.NotFound("timesheet entry")
	}
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, entry := range r.items {
		if entry.TenantID != tenantID {
			continue
		}
		if filter.UserID != nil && entry.UserID != *filter.UserID {
			continue
		}
		if filter.ProjectID != nil && entry.ProjectID != *filter.ProjectID {
			continue
		}
		if filter.From != nil && entry.WorkDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.WorkDate.After(*filter.To) {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

func (r *memoryRepo) ProjectTotals(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ProjectTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byProject := make(map[uuid.UUID]*ProjectTotal)
	for _, entry := range r.items {
		if entry.TenantID != tenantID || entry.WorkDate.Before(from) || entry.WorkDate.After(to) {
			continue
		}
		total, ok := byProject[entry.ProjectID]
		if !ok {
			total = &ProjectTotal{ProjectID: entry.ProjectID}
			byProject[entry.ProjectID] = total
		}
		total.TotalHours += entry.Hours
		if entry.Billable {
			total.BillableHours += entry.Hours
		}
	}
	var out []ProjectTotal
	for _, total := range byProject {
		out = append(out, *total)
	}
	return out, nil
}

type staticMembers struct {
	members map[uuid.UUID]bool
}

func (m *staticMembers) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	return m.members[userID], nil
}

type sheetFixture struct {
	service   Service
	projectID uuid.UUID
	member    authz.Actor
	admin     authz.Actor
	outsider  authz.Actor
}

func newSheetFixture(t *testing.T) *sheetFixture {
	t.Helper()
	tenantID := uuid.New()
	member := authz.Actor{
		UserID:       uuid.New(),
		ActiveTenant: tenantID,
		Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleMember}},
	}
	admin := authz.Actor{
		UserID:       uuid.New(),
		ActiveTenant: tenantID,
		Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleTenantAdmin}},
	}
	outsider := authz.Actor{
		UserID:       uuid.New(),
		ActiveTenant: tenantID,
	}
	members := &staticMembers{members: map[uuid.UUID]bool{
		member.UserID: true,
		admin.UserID:  true,
	}}

	return &sheetFixture{
		service:   NewService(newMemoryRepo(), members),
		projectID: uuid.New(),
		member:    member,
		admin:     admin,
		outsider:  outsider,
	}
}

func (f *sheetFixture) log(t *testing.T, actor authz.Actor, date string, hours float64) *Entry {
	t.Helper()
	entry, err := f.service.Log(context.Background(), actor, LogRequest{
		ProjectID: f.projectID,
		WorkDate:  date,
		Hours:     hours,
	})
	require.NoError(t, err)
	return entry
}

func TestLogValidation(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	_, err := f.service.Log(ctx, f.member, LogRequest{
		ProjectID: f.projectID,
		WorkDate:  "not-a-date",
		Hours:     -1,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	var tagged *apperr.Error
	require.ErrorAs(t, err, &tagged)
	assert.ElementsMatch(t, []string{"work_date", "hours"}, tagged.Fields)

	_, err = f.service.Log(ctx, f.member, LogRequest{
		ProjectID: f.projectID,
		WorkDate:  "2026-08-03",
		Hours:     25,
	})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestLogRequiresMembership(t *testing.T) {
	f := newSheetFixture(t)

	_, err := f.service.Log(context.Background(), f.outsider, LogRequest{
		ProjectID: f.projectID,
		WorkDate:  "2026-08-03",
		Hours:     4,
	})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestUpdateOnlyByAuthor(t *testing.T) {
	f := newSheetFixture(t)
	entry := f.log(t, f.member, "2026-08-03", 4)

	_, err := f.service.Update(context.Background(), f.admin, entry.ID, LogRequest{
		WorkDate: "2026-08-03",
		Hours:    8,
	})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	updated, err := f.service.Update(context.Background(), f.member, entry.ID, LogRequest{
		WorkDate: "2026-08-04",
		Hours:    6,
		Note:     "late fix",
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, updated.Hours)
	assert.Equal(t, "late fix", updated.Note)
}

func TestDeleteByAuthorOrAdmin(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	first := f.log(t, f.member, "2026-08-03", 4)
	second := f.log(t, f.member, "2026-08-04", 4)

	require.NoError(t, f.service.Delete(ctx, f.member, first.ID))
	require.NoError(t, f.service.Delete(ctx, f.admin, second.ID))

	err := f.service.Delete(ctx, f.member, first.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListScopesNonAdminsToOwnEntries(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	f.log(t, f.member, "2026-08-03", 4)
	f.log(t, f.admin, "2026-08-03", 2)

	// A member asking for someone else's entries still only sees their own.
	mine, err := f.service.List(ctx, f.member, Filter{UserID: &f.admin.UserID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.member.UserID, mine[0].UserID)

	all, err := f.service.List(ctx, f.admin, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProjectTotalsAdminOnly(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	f.log(t, f.member, "2026-08-03", 4)
	f.log(t, f.admin, "2026-08-04", 3)

	nonBillable := false
	_, err := f.service.Log(ctx, f.member, LogRequest{
		ProjectID: f.projectID,
		WorkDate:  "2026-08-05",
		Hours:     2,
		Billable:  &nonBillable,
	})
	require.NoError(t, err)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err = f.service.ProjectTotals(ctx, f.member, from, to)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	totals, err := f.service.ProjectTotals(ctx, f.admin, from, to)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 9.0, totals[0].TotalHours)
	assert.Equal(t, 7.0, totals[0].BillableHours)
}

func TestExportWorkbook(t *testing.T) {
	f := newSheetFixture(t)

	entries := []*Entry{
		f.log(t, f.member, "2026-08-03", 4),
		f.log(t, f.member, "2026-08-04", 3.5),
	}

	exporter := NewExporter("Timesheet")
	defer exporter.Close()

	total, err := exporter.Write(entries, map[string]string{
		f.projectID.String(): "Platform Migration",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.5, total)

	var buf bytes.Buffer
	require.NoError(t, exporter.WriteTo(&buf))

	workbook, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows("Timesheet")
	require.NoError(t, err)
	// Header + two entries + totals row.
	require.Len(t, rows, 4)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "Platform Migration", rows[1][1])
	assert.Equal(t, "Total", rows[3][2])
}
