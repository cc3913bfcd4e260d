package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	seq      map[int64]int64
	rows     map[int64]Order
	products map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{seq: make(map[int64]int64), rows: make(map[int64]Order), products: map[int64]bool{7: true}}
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

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Order, 0)
	for _, p := range r.rows {
		if p.TenantID == tenantID && (filters.Status == "" || p.Status == filters.Status) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return Order{}, err
	}
	p, ok := r.rows[id]
	if !ok || p.TenantID != tenantID {
		return Order{}, shared.NotFound("order", id)
	}
	return p, nil
}

type memoryTx struct {
	repo     *memoryRepo
	tenantID int64
}

func (t *memoryTx) NextNumber(ctx context.Context) (string, error) {
	t.repo.seq[t.tenantID]++
	return shared.FormatDocumentNumber(shared.PrefixOrder, t.repo.seq[t.tenantID]), nil
}

func (t *memoryTx) EnsureProducts(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if !t.repo.products[id] {
			return shared.Invalid("unknown product referenced by item")
		}
	}
	return nil
}

func (t *memoryTx) Insert(ctx context.Context, p Order) (Order, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	p.TenantID = t.tenantID
	for i := range p.Items {
		p.Items[i].ID = int64(i + 1)
	}
	t.repo.rows[p.ID] = p
	return p, nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id int64) (Order, error) {
	p, ok := t.repo.rows[id]
	if !ok || p.TenantID != t.tenantID {
		return Order{}, shared.NotFound("order", id)
	}
	return p, nil
}

func (t *memoryTx) UpdateHeader(ctx context.Context, p Order) (Order, error) {
	stored := t.repo.rows[p.ID]
	p.Items = stored.Items
	t.repo.rows[p.ID] = p
	return p, nil
}

func (t *memoryTx) ReplaceItems(ctx context.Context, orderID int64, items []Item) ([]Item, error) {
	p := t.repo.rows[orderID]
	p.Items = items
	t.repo.rows[orderID] = p
	return items, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	p := t.repo.rows[id]
	p.Status = status
	t.repo.rows[id] = p
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(t.repo.rows, id)
	return nil
}

type closedBefore struct {
	cutoff time.Time
}

func (g closedBefore) EnsureOpen(ctx context.Context, date time.Time) error {
	if !date.After(g.cutoff) {
		return fmt.Errorf("%w: %s", shared.ErrState, date.Format(shared.DateLayout))
	}
	return nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, entry audit.Entry) {
	c.entries = append(c.entries, entry)
}

func tenantCtx(tenantID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: 11, Role: shared.RoleOperator})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleInput() CreateInput {
	return CreateInput{
		CustomerName: " CV Maju Jaya ",
		OrderDate: shared.NewDate(2024, time.April, 2),
		TaxRate:      dec("11"),
		Items: []ItemInput{
			{Description: "Steel plate", Quantity: dec("3"), UnitPrice: dec("0.10")},
			{Description: "Bolt", Quantity: dec("0.333"), UnitPrice: dec("10")},
		},
	}
}

func newService(repo *memoryRepo) (*Service, *captureAudit) {
	sink := &captureAudit{}
	guard := closedBefore{cutoff: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)}
	return NewService(repo, guard, sink), sink
}

func TestCreateComputesExactTotals(t *testing.T) {
	svc, sink := newService(newMemoryRepo())
	p, err := svc.Create(tenantCtx(1), sampleInput())
	require.NoError(t, err)

	require.Equal(t, "ORD-00001", p.Number)
	require.Equal(t, "CV Maju Jaya", p.CustomerName)
	require.Equal(t, StatusDraft, p.Status)
	require.True(t, p.Items[0].Amount.Equal(dec("0.30")))
	require.True(t, p.Items[1].Amount.Equal(dec("3.33")))
	require.True(t, p.Subtotal.Equal(dec("3.63")), p.Subtotal.String())
	require.True(t, p.TaxAmount.Equal(dec("0.40")), p.TaxAmount.String())
	require.True(t, p.TotalAmount.Equal(dec("4.03")), p.TotalAmount.String())
	require.NotNil(t, p.CreatedBy)
	require.Equal(t, int64(11), *p.CreatedBy)
	require.Len(t, sink.entries, 1)
	require.Equal(t, audit.ActionCreate, sink.entries[0].Action)
}

func TestCreateNumbersSequentiallyPerTenant(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	first, err := svc.Create(tenantCtx(1), sampleInput())
	require.NoError(t, err)
	second, err := svc.Create(tenantCtx(1), sampleInput())
	require.NoError(t, err)
	other, err := svc.Create(tenantCtx(2), sampleInput())
	require.NoError(t, err)

	require.Equal(t, "ORD-00001", first.Number)
	require.Equal(t, "ORD-00002", second.Number)
	require.Equal(t, "ORD-00001", other.Number)
}

func TestCreateRejectsClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	svc, sink := newService(repo)
	in := sampleInput()
	in.OrderDate = shared.NewDate(2024, time.February, 10)

	_, err := svc.Create(tenantCtx(1), in)
	require.ErrorIs(t, err, shared.ErrState)
	require.Empty(t, repo.rows)
	require.Empty(t, sink.entries)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	cases := map[string]func(*CreateInput){
		"no customer":    func(in *CreateInput) { in.CustomerName = "  " },
		"no date":        func(in *CreateInput) { in.OrderDate = shared.Date{} },
		"negative tax":   func(in *CreateInput) { in.TaxRate = dec("-1") },
		"no items":       func(in *CreateInput) { in.Items = nil },
		"zero quantity":  func(in *CreateInput) { in.Items[0].Quantity = decimal.Zero },
		"negative price": func(in *CreateInput) { in.Items[0].UnitPrice = dec("-0.01") },
		"unknown product": func(in *CreateInput) {
			id := int64(99)
			in.Items[0].ProductID = &id
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := sampleInput()
			mutate(&in)
			_, err := svc.Create(tenantCtx(1), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateWithoutTenant(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	_, err := svc.Create(context.Background(), sampleInput())
	require.ErrorIs(t, err, shared.ErrNoTenant)
}

func TestUpdateRecomputesAndGuardsDateChange(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	ctx := tenantCtx(1)
	p, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	closed := shared.NewDate(2024, time.March, 1)
	_, err = svc.Update(ctx, p.ID, UpdateInput{OrderDate: &closed})
	require.ErrorIs(t, err, shared.ErrState)

	rate := dec("0")
	updated, err := svc.Update(ctx, p.ID, UpdateInput{
		TaxRate: &rate,
		Items:   []ItemInput{{Description: "Steel plate", Quantity: dec("2"), UnitPrice: dec("12.345")}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	require.True(t, updated.Subtotal.Equal(dec("24.69")), updated.Subtotal.String())
	require.True(t, updated.TotalAmount.Equal(dec("24.69")))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.TotalAmount.Equal(dec("24.69")))
}

func TestStatusTransitionsAndDraftOnlyEdits(t *testing.T) {
	svc, _ := newService(newMemoryRepo())
	ctx := tenantCtx(1)
	o, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID, StatusShipped)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.ErrorIs(t, err, shared.ErrState)

	for _, next := range []Status{StatusConfirmed, StatusShipped} {
		moved, err := svc.UpdateStatus(ctx, o.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, moved.Status)
	}

	name := "Other"
	_, err = svc.Update(ctx, o.ID, UpdateInput{CustomerName: &name})
	require.ErrorIs(t, err, shared.ErrState)
	require.ErrorIs(t, svc.Delete(ctx, o.ID), shared.ErrState)

	_, err = svc.UpdateStatus(ctx, o.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrInvalidStatus)

	delivered, err := svc.UpdateStatus(ctx, o.ID, StatusDelivered)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
}

func TestStatusChangeRejectsClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newService(repo)
	ctx := tenantCtx(1)
	o, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	stored := repo.rows[o.ID]
	stored.OrderDate = shared.NewDate(2024, time.January, 15)
	repo.rows[o.ID] = stored

	_, err = svc.UpdateStatus(ctx, o.ID, StatusConfirmed)
	require.ErrorIs(t, err, shared.ErrState)
	require.Equal(t, StatusDraft, repo.rows[o.ID].Status)
}

func TestDeleteDraftAndTenantIsolation(t *testing.T) {
	svc, sink := newService(newMemoryRepo())
	p, err := svc.Create(tenantCtx(1), sampleInput())
	require.NoError(t, err)

	_, err = svc.Get(tenantCtx(2), p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, svc.Delete(tenantCtx(2), p.ID), shared.ErrNotFound)

	require.NoError(t, svc.Delete(tenantCtx(1), p.ID))
	_, err = svc.Get(tenantCtx(1), p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, audit.ActionDelete, sink.entries[len(sink.entries)-1].Action)
}

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDraft:     {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusShipped, StatusCancelled},
		StatusShipped:   {StatusDelivered},
	}
	all := []Status{StatusDraft, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			require.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
