package qc

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	nextID      int64
	seq         map[string]int64
	inspections map[int64]Inspection
	ncrs        map[int64]NCR
	grns        map[int64]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		seq:         make(map[string]int64),
		inspections: make(map[int64]Inspection),
		ncrs:        make(map[int64]NCR),
		grns:        map[int64]int64{50: 1},
	}
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

func (r *memoryRepo) ListInspections(ctx context.Context, filters InspectionFilters) ([]Inspection, int, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Inspection, 0)
	for _, i := range r.inspections {
		if i.TenantID == tenantID && (filters.Result == "" || i.Result == filters.Result) {
			out = append(out, i)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetInspection(ctx context.Context, id int64) (Inspection, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return Inspection{}, err
	}
	i, ok := r.inspections[id]
	if !ok || i.TenantID != tenantID {
		return Inspection{}, shared.NotFound("inspection", id)
	}
	return i, nil
}

func (r *memoryRepo) ListNCRs(ctx context.Context, filters NCRFilters) ([]NCR, int, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]NCR, 0)
	for _, n := range r.ncrs {
		if n.TenantID == tenantID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetNCR(ctx context.Context, id int64) (NCR, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return NCR{}, err
	}
	n, ok := r.ncrs[id]
	if !ok || n.TenantID != tenantID {
		return NCR{}, shared.NotFound("ncr", id)
	}
	return n, nil
}

type memoryTx struct {
	repo     *memoryRepo
	tenantID int64
}

func (t *memoryTx) NextNumber(ctx context.Context, prefix string) (string, error) {
	key := prefix + "/" + strconv.FormatInt(t.tenantID, 10)
	t.repo.seq[key]++
	return shared.FormatDocumentNumber(prefix, t.repo.seq[key]), nil
}

func (t *memoryTx) EnsureGRN(ctx context.Context, grnID int64) error {
	if owner, ok := t.repo.grns[grnID]; !ok || owner != t.tenantID {
		return shared.NotFound("grn", grnID)
	}
	return nil
}

func (t *memoryTx) InsertInspection(ctx context.Context, insp Inspection) (Inspection, error) {
	t.repo.nextID++
	insp.ID = t.repo.nextID
	insp.TenantID = t.tenantID
	t.repo.inspections[insp.ID] = insp
	return insp, nil
}

func (t *memoryTx) LoadInspection(ctx context.Context, id int64) (Inspection, error) {
	i, ok := t.repo.inspections[id]
	if !ok || i.TenantID != t.tenantID {
		return Inspection{}, shared.NotFound("inspection", id)
	}
	return i, nil
}

func (t *memoryTx) UpdateInspection(ctx context.Context, insp Inspection) (Inspection, error) {
	t.repo.inspections[insp.ID] = insp
	return insp, nil
}

func (t *memoryTx) DeleteInspection(ctx context.Context, id int64) error {
	for _, n := range t.repo.ncrs {
		if n.InspectionID != nil && *n.InspectionID == id {
			return shared.Conflict("inspection %d has NCRs", id)
		}
	}
	delete(t.repo.inspections, id)
	return nil
}

func (t *memoryTx) InsertNCR(ctx context.Context, n NCR) (NCR, error) {
	t.repo.nextID++
	n.ID = t.repo.nextID
	n.TenantID = t.tenantID
	t.repo.ncrs[n.ID] = n
	return n, nil
}

func (t *memoryTx) LoadNCR(ctx context.Context, id int64) (NCR, error) {
	n, ok := t.repo.ncrs[id]
	if !ok || n.TenantID != t.tenantID {
		return NCR{}, shared.NotFound("ncr", id)
	}
	return n, nil
}

func (t *memoryTx) UpdateNCR(ctx context.Context, n NCR) (NCR, error) {
	t.repo.ncrs[n.ID] = n
	return n, nil
}

func (t *memoryTx) DeleteNCR(ctx context.Context, id int64) error {
	delete(t.repo.ncrs, id)
	return nil
}

type productTable map[int64]int64

func (p productTable) Get(ctx context.Context, id int64) (products.Product, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return products.Product{}, err
	}
	if owner, ok := p[id]; !ok || owner != tenantID {
		return products.Product{}, shared.NotFound("product", id)
	}
	return products.Product{ID: id, TenantID: tenantID}, nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, entry audit.Entry) {
	c.entries = append(c.entries, entry)
}

func tenantCtx(tenantID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: 8, Role: shared.RoleOperator})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var fixedNow = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func newService() (*Service, *memoryRepo, *captureAudit) {
	repo := newMemoryRepo()
	rec := &captureAudit{}
	svc := NewService(repo, productTable{1: 1, 2: 1, 5: 2}, rec).WithNow(func() time.Time { return fixedNow })
	return svc, repo, rec
}

func inspectionInput(passed, failed string) InspectionInput {
	p, f := dec(passed), dec(failed)
	return InspectionInput{
		ProductID:      1,
		InspectionDate: shared.NewDate(2024, time.June, 3),
		InspectedQty:   p.Add(f),
		PassedQty:      p,
		FailedQty:      f,
	}
}

func TestDeriveResult(t *testing.T) {
	require.Equal(t, ResultPass, DeriveResult(dec("10"), decimal.Zero))
	require.Equal(t, ResultFail, DeriveResult(decimal.Zero, dec("10")))
	require.Equal(t, ResultConditional, DeriveResult(dec("7"), dec("3")))
}

func TestCreateInspection(t *testing.T) {
	svc, _, rec := newService()
	ctx := tenantCtx(1)

	insp, err := svc.CreateInspection(ctx, inspectionInput("9.5", "0.5"))
	require.NoError(t, err)
	require.Equal(t, "QC-00001", insp.Number)
	require.Equal(t, ResultConditional, insp.Result)
	require.NotNil(t, insp.InspectorID)
	require.Equal(t, int64(8), *insp.InspectorID)
	require.Len(t, rec.entries, 1)
	require.Equal(t, "qc_inspection", rec.entries[0].EntityType)

	in := inspectionInput("10", "0")
	grnID := int64(50)
	in.GRNID = &grnID
	second, err := svc.CreateInspection(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "QC-00002", second.Number)
	require.Equal(t, ResultPass, second.Result)

	explicit := inspectionInput("8", "2")
	explicit.Result = ResultFail
	failed, err := svc.CreateInspection(ctx, explicit)
	require.NoError(t, err)
	require.Equal(t, ResultFail, failed.Result)
}

func TestCreateInspectionValidation(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)

	mismatch := inspectionInput("5", "5")
	mismatch.InspectedQty = dec("11")
	_, err := svc.CreateInspection(ctx, mismatch)
	require.ErrorIs(t, err, shared.ErrValidation)

	negative := inspectionInput("5", "0")
	negative.FailedQty = dec("-1")
	negative.InspectedQty = dec("4")
	_, err = svc.CreateInspection(ctx, negative)
	require.ErrorIs(t, err, shared.ErrValidation)

	empty := inspectionInput("0", "0")
	_, err = svc.CreateInspection(ctx, empty)
	require.ErrorIs(t, err, shared.ErrValidation)

	noDate := inspectionInput("1", "0")
	noDate.InspectionDate = shared.Date{}
	_, err = svc.CreateInspection(ctx, noDate)
	require.ErrorIs(t, err, shared.ErrValidation)

	contradicting := inspectionInput("5", "1")
	contradicting.Result = ResultPass
	_, err = svc.CreateInspection(ctx, contradicting)
	require.ErrorIs(t, err, shared.ErrValidation)

	foreign := inspectionInput("1", "0")
	foreign.ProductID = 5
	_, err = svc.CreateInspection(ctx, foreign)
	require.ErrorIs(t, err, shared.ErrNotFound)

	unknownGRN := inspectionInput("1", "0")
	grnID := int64(404)
	unknownGRN.GRNID = &grnID
	_, err = svc.CreateInspection(ctx, unknownGRN)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateInspection(context.Background(), inspectionInput("1", "0"))
	require.ErrorIs(t, err, shared.ErrNoTenant)
}

func TestUpdateInspectionRederivesResult(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	insp, err := svc.CreateInspection(ctx, inspectionInput("10", "0"))
	require.NoError(t, err)

	passed, failed := dec("6"), dec("4")
	insp, err = svc.UpdateInspection(ctx, insp.ID, InspectionUpdate{PassedQty: &passed, FailedQty: &failed})
	require.NoError(t, err)
	require.Equal(t, ResultConditional, insp.Result)

	notes := "  resealed  "
	insp, err = svc.UpdateInspection(ctx, insp.ID, InspectionUpdate{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "resealed", insp.Notes)
	require.Equal(t, ResultConditional, insp.Result)

	tooMany := dec("5")
	_, err = svc.UpdateInspection(ctx, insp.ID, InspectionUpdate{FailedQty: &tooMany})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNCRLifecycle(t *testing.T) {
	svc, _, rec := newService()
	ctx := tenantCtx(1)
	insp, err := svc.CreateInspection(ctx, inspectionInput("7", "3"))
	require.NoError(t, err)

	n, err := svc.RaiseNCR(ctx, insp.ID, RaiseInput{Severity: SeverityMajor, Description: "scratched panels"})
	require.NoError(t, err)
	require.Equal(t, "NCR-00001", n.Number)
	require.Equal(t, NCROpen, n.Status)
	require.Equal(t, insp.ID, *n.InspectionID)
	require.NotNil(t, n.RaisedBy)

	_, err = svc.UpdateNCRStatus(ctx, n.ID, NCRStatusInput{Status: NCRClosed})
	require.ErrorIs(t, err, shared.ErrState)

	n, err = svc.UpdateNCRStatus(ctx, n.ID, NCRStatusInput{Status: NCRInvestigating})
	require.NoError(t, err)
	require.Equal(t, NCRInvestigating, n.Status)

	_, err = svc.UpdateNCRStatus(ctx, n.ID, NCRStatusInput{Status: NCRClosed})
	require.ErrorIs(t, err, shared.ErrValidation)

	action := "supplier replaced packaging"
	rec.entries = nil
	n, err = svc.UpdateNCRStatus(ctx, n.ID, NCRStatusInput{Status: NCRClosed, CorrectiveAction: &action})
	require.NoError(t, err)
	require.Equal(t, NCRClosed, n.Status)
	require.Equal(t, action, n.CorrectiveAction)
	require.NotNil(t, n.ClosedAt)
	require.True(t, fixedNow.Equal(*n.ClosedAt))
	require.Len(t, rec.entries, 1)

	desc := "late edit"
	_, err = svc.UpdateNCR(ctx, n.ID, NCRUpdate{Description: &desc})
	require.ErrorIs(t, err, shared.ErrState)
	require.ErrorIs(t, svc.DeleteNCR(ctx, n.ID), shared.ErrState)
	require.ErrorIs(t, svc.DeleteInspection(ctx, insp.ID), shared.ErrConflict)
}

func TestRaiseNCRRejectsPassedInspection(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	insp, err := svc.CreateInspection(ctx, inspectionInput("4", "0"))
	require.NoError(t, err)

	_, err = svc.RaiseNCR(ctx, insp.ID, RaiseInput{Severity: SeverityMinor, Description: "none"})
	require.ErrorIs(t, err, shared.ErrState)

	_, err = svc.RaiseNCR(ctx, 999, RaiseInput{Severity: SeverityMinor, Description: "none"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateNCR(ctx, NCRInput{Severity: "cosmetic", Description: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	standalone, err := svc.CreateNCR(ctx, NCRInput{Severity: SeverityCritical, Description: "line stop"})
	require.NoError(t, err)
	require.Nil(t, standalone.InspectionID)
	require.NoError(t, svc.DeleteNCR(ctx, standalone.ID))
	require.NoError(t, svc.DeleteInspection(ctx, insp.ID))
}

func TestNCRTransitions(t *testing.T) {
	statuses := []NCRStatus{NCROpen, NCRInvestigating, NCRClosed}
	allowed := map[[2]NCRStatus]bool{
		{NCROpen, NCRInvestigating}:   true,
		{NCRInvestigating, NCRClosed}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			require.Equal(t, allowed[[2]NCRStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestQCTenantIsolation(t *testing.T) {
	svc, _, _ := newService()
	insp, err := svc.CreateInspection(tenantCtx(1), inspectionInput("1", "1"))
	require.NoError(t, err)

	_, err = svc.GetInspection(tenantCtx(2), insp.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.RaiseNCR(tenantCtx(2), insp.ID, RaiseInput{Severity: SeverityMinor, Description: "x"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	items, total, err := svc.ListInspections(tenantCtx(2), InspectionFilters{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, total)
}
