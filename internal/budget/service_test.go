package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	nextID     int64
	nextLineID int64
	seq        map[int64]int64
	rows       map[int64]Budget
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{seq: make(map[int64]int64), rows: make(map[int64]Budget)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r, tenantID: tenantID})
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Budget, int, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Budget, 0)
	for _, b := range r.rows {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Budget, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return Budget{}, err
	}
	b, ok := r.rows[id]
	if !ok || b.TenantID != tenantID {
		return Budget{}, shared.NotFound("budget", id)
	}
	return b, nil
}

type memoryTx struct {
	repo     *memoryRepo
	tenantID int64
}

func (t *memoryTx) NextNumber(ctx context.Context) (string, error) {
	t.repo.seq[t.tenantID]++
	return shared.FormatDocumentNumber(shared.PrefixBudget, t.repo.seq[t.tenantID]), nil
}

func (t *memoryTx) assignIDs(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		t.repo.nextLineID++
		l.ID = t.repo.nextLineID
		out[i] = l
	}
	return out
}

func (t *memoryTx) Insert(ctx context.Context, b Budget) (Budget, error) {
	t.repo.nextID++
	b.ID = t.repo.nextID
	b.TenantID = t.tenantID
	b.Lines = t.assignIDs(b.Lines)
	t.repo.rows[b.ID] = b
	return b, nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id int64) (Budget, error) {
	b, ok := t.repo.rows[id]
	if !ok || b.TenantID != t.tenantID {
		return Budget{}, shared.NotFound("budget", id)
	}
	return b, nil
}

func (t *memoryTx) UpdateHeader(ctx context.Context, b Budget) (Budget, error) {
	lines := t.repo.rows[b.ID].Lines
	b.Lines = lines
	t.repo.rows[b.ID] = b
	return b, nil
}

func (t *memoryTx) ReplaceLines(ctx context.Context, budgetID int64, lines []Line) ([]Line, error) {
	b := t.repo.rows[budgetID]
	b.Lines = t.assignIDs(lines)
	t.repo.rows[budgetID] = b
	return b.Lines, nil
}

func (t *memoryTx) UpdateLine(ctx context.Context, line Line) error {
	for id, b := range t.repo.rows {
		for i, l := range b.Lines {
			if l.ID == line.ID && b.TenantID == t.tenantID {
				lines := make([]Line, len(b.Lines))
				copy(lines, b.Lines)
				lines[i] = line
				b.Lines = lines
				t.repo.rows[id] = b
				return nil
			}
		}
	}
	return shared.NotFound("budget line", line.ID)
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(t.repo.rows, id)
	return nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, entry audit.Entry) {
	c.entries = append(c.entries, entry)
}

func tenantCtx(tenantID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: 3, Role: shared.RoleManager})
}

func sampleBudget() CreateInput {
	return CreateInput{
		Name:       "Production 2024",
		FiscalYear: 2024,
		Department: "Production",
		Lines: []LineInput{
			{AccountCode: "6100", Description: "Raw material", BudgetAmount: dec("10000"), ActualAmount: dec("2500")},
			{AccountCode: "6200", Description: "Maintenance", BudgetAmount: dec("0")},
		},
	}
}

func newService() (*Service, *memoryRepo, *captureAudit) {
	repo := newMemoryRepo()
	sink := &captureAudit{}
	fixed := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	return NewService(repo, sink).WithNow(func() time.Time { return fixed }), repo, sink
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, sink := newService()
	b, err := svc.Create(tenantCtx(1), sampleBudget())
	require.NoError(t, err)

	require.Equal(t, "BUD-00001", b.Number)
	require.Equal(t, StatusDraft, b.Status)
	require.True(t, b.TotalBudget.Equal(dec("10000")))
	require.True(t, b.TotalActual.Equal(dec("2500")))
	require.True(t, b.TotalVariance.Equal(dec("7500")))
	require.True(t, b.VariancePercent.Equal(dec("75")))
	require.True(t, b.Lines[0].VariancePercent.Equal(dec("75")))
	require.True(t, b.Lines[1].VariancePercent.IsZero())
	require.Len(t, sink.entries, 1)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService()
	in := sampleBudget()
	in.Lines[0].BudgetAmount = dec("-1")
	_, err := svc.Create(tenantCtx(1), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = sampleBudget()
	in.FiscalYear = 12
	_, err = svc.Create(tenantCtx(1), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), sampleBudget())
	require.ErrorIs(t, err, shared.ErrNoTenant)
}

func TestUpdateActualRefreshesTotals(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, sampleBudget())
	require.NoError(t, err)

	updated, err := svc.UpdateActual(ctx, b.ID, b.Lines[0].ID, ActualInput{ActualAmount: dec("11000")})
	require.NoError(t, err)
	require.True(t, updated.Lines[0].Variance.Equal(dec("-1000")))
	require.True(t, updated.Lines[0].VariancePercent.Equal(dec("-10")))
	require.True(t, updated.TotalActual.Equal(dec("11000")))

	_, err = svc.UpdateActual(ctx, b.ID, 999, ActualInput{ActualAmount: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.UpdateActual(ctx, b.ID, b.Lines[0].ID, ActualInput{ActualAmount: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApprovedBudgetIsReadOnlyExceptActuals(t *testing.T) {
	svc, _, sink := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, sampleBudget())
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, int64(3), *approved.ApprovedBy)
	require.Equal(t, audit.ActionApprove, sink.entries[len(sink.entries)-1].Action)

	name := "renamed"
	_, err = svc.Update(ctx, b.ID, UpdateInput{Name: &name})
	require.ErrorIs(t, err, shared.ErrState)
	require.ErrorIs(t, svc.Delete(ctx, b.ID), shared.ErrState)
	_, err = svc.Reject(ctx, b.ID)
	require.ErrorIs(t, err, shared.ErrState)

	_, err = svc.UpdateActual(ctx, b.ID, b.Lines[1].ID, ActualInput{ActualAmount: dec("40")})
	require.NoError(t, err)

	_, err = svc.Close(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.UpdateActual(ctx, b.ID, b.Lines[1].ID, ActualInput{ActualAmount: dec("50")})
	require.ErrorIs(t, err, shared.ErrState)
}

func TestRejectedBudgetCanBeDeleted(t *testing.T) {
	svc, repo, sink := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, sampleBudget())
	require.NoError(t, err)

	_, err = svc.Reject(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, audit.ActionReject, sink.entries[len(sink.entries)-1].Action)
	require.NoError(t, svc.Delete(ctx, b.ID))
	require.Empty(t, repo.rows)
}

func TestUpdateDraftReplacesLines(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, sampleBudget())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, b.ID, UpdateInput{Lines: []LineInput{
		{AccountCode: "7000", BudgetAmount: dec("400"), ActualAmount: dec("100")},
	}})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, updated.TotalVariance.Equal(dec("300")))

	_, err = svc.Get(tenantCtx(2), b.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
