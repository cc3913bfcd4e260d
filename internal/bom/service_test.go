package bom

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	seq    map[int64]int64
	rows   map[int64]BOM
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{seq: make(map[int64]int64), rows: make(map[int64]BOM)}
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

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]BOM, int, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BOM, 0)
	for _, b := range r.rows {
		if b.TenantID == tenantID && (filters.ProductID == 0 || b.ProductID == filters.ProductID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (BOM, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return BOM{}, err
	}
	b, ok := r.rows[id]
	if !ok || b.TenantID != tenantID {
		return BOM{}, shared.NotFound("bom", id)
	}
	return b, nil
}

type memoryTx struct {
	repo     *memoryRepo
	tenantID int64
}

func (t *memoryTx) NextNumber(ctx context.Context) (string, error) {
	t.repo.seq[t.tenantID]++
	return shared.FormatDocumentNumber(shared.PrefixBOM, t.repo.seq[t.tenantID]), nil
}

func (t *memoryTx) NextVersion(ctx context.Context, productID int64) (int, error) {
	version := 0
	for _, b := range t.repo.rows {
		if b.TenantID == t.tenantID && b.ProductID == productID && b.Version > version {
			version = b.Version
		}
	}
	return version + 1, nil
}

func (t *memoryTx) Insert(ctx context.Context, b BOM) (BOM, error) {
	for _, existing := range t.repo.rows {
		if existing.TenantID == t.tenantID && existing.ProductID == b.ProductID && existing.Version == b.Version {
			return BOM{}, shared.Conflict("product %d already has BOM version %d", b.ProductID, b.Version)
		}
	}
	t.repo.nextID++
	b.ID = t.repo.nextID
	b.TenantID = t.tenantID
	t.repo.rows[b.ID] = b
	return b, nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id int64) (BOM, error) {
	b, ok := t.repo.rows[id]
	if !ok || b.TenantID != t.tenantID {
		return BOM{}, shared.NotFound("bom", id)
	}
	return b, nil
}

func (t *memoryTx) UpdateHeader(ctx context.Context, b BOM) (BOM, error) {
	stored := t.repo.rows[b.ID]
	stored.Status = b.Status
	stored.Description = b.Description
	stored.TotalCost = b.TotalCost
	t.repo.rows[b.ID] = stored
	return stored, nil
}

func (t *memoryTx) ReplaceComponents(ctx context.Context, bomID int64, components []Component) ([]Component, error) {
	stored := t.repo.rows[bomID]
	stored.Components = append([]Component{}, components...)
	t.repo.rows[bomID] = stored
	return stored.Components, nil
}

func (t *memoryTx) InsertComponent(ctx context.Context, bomID int64, c Component) (Component, error) {
	stored := t.repo.rows[bomID]
	stored.Components = append(append([]Component{}, stored.Components...), c)
	t.repo.rows[bomID] = stored
	return c, nil
}

func (t *memoryTx) DeleteComponent(ctx context.Context, bomID int64, lineNo int) error {
	stored := t.repo.rows[bomID]
	kept := make([]Component, 0, len(stored.Components))
	for _, c := range stored.Components {
		if c.LineNo != lineNo {
			kept = append(kept, c)
		}
	}
	stored.Components = kept
	t.repo.rows[bomID] = stored
	return nil
}

func (t *memoryTx) ObsoleteActive(ctx context.Context, productID int64) (*BOM, error) {
	for id, b := range t.repo.rows {
		if b.TenantID == t.tenantID && b.ProductID == productID && b.Status == StatusActive {
			b.Status = StatusObsolete
			t.repo.rows[id] = b
			return &b, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(t.repo.rows, id)
	return nil
}

type productTable map[int64]products.Product

func (p productTable) Get(ctx context.Context, id int64) (products.Product, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return products.Product{}, err
	}
	prod, ok := p[id]
	if !ok || prod.TenantID != tenantID {
		return products.Product{}, shared.NotFound("product", id)
	}
	return prod, nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, entry audit.Entry) {
	c.entries = append(c.entries, entry)
}

func tenantCtx(tenantID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: 3, Role: shared.RoleOperator})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService() (*Service, *memoryRepo, *captureAudit) {
	repo := newMemoryRepo()
	catalog := productTable{
		1: {ID: 1, TenantID: 1, Code: "TBL", Unit: "pcs", StandardCost: dec("120")},
		2: {ID: 2, TenantID: 1, Code: "LEG", Unit: "pcs", StandardCost: dec("7.50")},
		3: {ID: 3, TenantID: 1, Code: "TOP", Unit: "sheet", StandardCost: dec("40")},
		4: {ID: 4, TenantID: 1, Code: "SCR", Unit: "box", StandardCost: dec("0.25")},
		9: {ID: 9, TenantID: 2, Code: "OTHER", Unit: "pcs", StandardCost: dec("1")},
	}
	rec := &captureAudit{}
	return NewService(repo, catalog, rec), repo, rec
}

func tableInput() CreateInput {
	return CreateInput{
		ProductID:   1,
		Description: "dining table",
		Components: []ComponentInput{
			{ProductID: 2, Quantity: dec("4"), ScrapPercent: dec("0")},
			{ProductID: 3, Quantity: dec("1"), ScrapPercent: dec("10")},
		},
	}
}

func TestExtendedCost(t *testing.T) {
	require.True(t, dec("44").Equal(ExtendedCost(dec("1"), dec("10"), dec("40"))))
	require.True(t, dec("30").Equal(ExtendedCost(dec("4"), dec("0"), dec("7.50"))))
	require.True(t, dec("0.3334").Equal(ExtendedCost(dec("1"), dec("0"), dec("0.33335"))))
	require.True(t, ExtendedCost(dec("5"), dec("5"), decimal.Zero).IsZero())
}

func TestCreateDefaultsFromProducts(t *testing.T) {
	svc, _, rec := newService()
	ctx := tenantCtx(1)

	b, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)
	require.Equal(t, "BOM-00001", b.Number)
	require.Equal(t, 1, b.Version)
	require.Equal(t, StatusDraft, b.Status)
	require.Len(t, b.Components, 2)
	require.Equal(t, 1, b.Components[0].LineNo)
	require.Equal(t, "pcs", b.Components[0].Unit)
	require.True(t, dec("7.50").Equal(b.Components[0].UnitCost))
	require.Equal(t, "sheet", b.Components[1].Unit)
	require.True(t, dec("44").Equal(b.Components[1].ExtendedCost))
	require.True(t, dec("74").Equal(b.TotalCost))
	require.NotNil(t, b.CreatedBy)
	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionCreate, rec.entries[0].Action)

	override := dec("2")
	in := tableInput()
	in.Components = []ComponentInput{{ProductID: 4, Quantity: dec("16"), Unit: "pcs", ScrapPercent: dec("0"), UnitCost: &override}}
	second, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)
	require.Equal(t, "pcs", second.Components[0].Unit)
	require.True(t, dec("32").Equal(second.TotalCost))
}

func TestCreateRejectsBadComponents(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)

	cases := map[string]ComponentInput{
		"self":          {ProductID: 1, Quantity: dec("1")},
		"zero qty":      {ProductID: 2, Quantity: decimal.Zero},
		"scrap":         {ProductID: 2, Quantity: dec("1"), ScrapPercent: dec("101")},
		"other tenant":  {ProductID: 9, Quantity: dec("1")},
		"missing":       {ProductID: 77, Quantity: dec("1")},
		"negative cost": {ProductID: 2, Quantity: dec("1"), UnitCost: func() *decimal.Decimal { d := dec("-1"); return &d }()},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			in := tableInput()
			in.Components = []ComponentInput{c}
			_, err := svc.Create(ctx, in)
			require.Error(t, err)
		})
	}

	in := tableInput()
	in.ProductID = 9
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrNotFound)

	in = tableInput()
	in.Version = 1
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAddAndRemoveComponents(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)

	b, err = svc.RemoveComponent(ctx, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, b.Components, 1)
	require.Equal(t, 2, b.Components[0].LineNo)
	require.True(t, dec("44").Equal(b.TotalCost))

	b, err = svc.AddComponent(ctx, b.ID, ComponentInput{ProductID: 4, Quantity: dec("8"), ScrapPercent: dec("0")})
	require.NoError(t, err)
	require.Len(t, b.Components, 2)
	require.Equal(t, 3, b.Components[1].LineNo)
	require.True(t, dec("46").Equal(b.TotalCost))

	_, err = svc.RemoveComponent(ctx, b.ID, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	stored, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, dec("46").Equal(stored.TotalCost))
}

func TestActivateObsoletesPreviousVersion(t *testing.T) {
	svc, _, rec := newService()
	ctx := tenantCtx(1)

	first, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)
	first, err = svc.Activate(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, first.Status)

	second, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)
	rec.entries = nil
	second, err = svc.Activate(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, second.Status)

	old, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusObsolete, old.Status)
	require.Len(t, rec.entries, 2)
	require.Equal(t, audit.ActionApprove, rec.entries[1].Action)

	active, _, err := svc.List(ctx, ListFilters{ProductID: 1})
	require.NoError(t, err)
	count := 0
	for _, b := range active {
		if b.Status == StatusActive {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestOnlyDraftsChange(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, b.ID)
	require.NoError(t, err)

	desc := "changed"
	_, err = svc.Update(ctx, b.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, shared.ErrState)
	_, err = svc.AddComponent(ctx, b.ID, ComponentInput{ProductID: 4, Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrState)
	_, err = svc.Activate(ctx, b.ID)
	require.ErrorIs(t, err, shared.ErrState)
	require.ErrorIs(t, svc.Delete(ctx, b.ID), shared.ErrState)

	empty := tableInput()
	empty.Components = nil
	draft, err := svc.Create(ctx, empty)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.NoError(t, svc.Delete(ctx, draft.ID))
}

func TestUpdateReplacesComponents(t *testing.T) {
	svc, _, _ := newService()
	ctx := tenantCtx(1)
	b, err := svc.Create(ctx, tableInput())
	require.NoError(t, err)

	desc := "  revised  "
	b, err = svc.Update(ctx, b.ID, UpdateInput{
		Description: &desc,
		Components:  []ComponentInput{{ProductID: 3, Quantity: dec("2"), ScrapPercent: dec("5")}},
	})
	require.NoError(t, err)
	require.Equal(t, "revised", b.Description)
	require.Len(t, b.Components, 1)
	require.True(t, dec("84").Equal(b.TotalCost))
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _ := newService()
	b, err := svc.Create(tenantCtx(1), tableInput())
	require.NoError(t, err)

	_, err = svc.Get(tenantCtx(2), b.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Activate(tenantCtx(2), b.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Create(context.Background(), tableInput())
	require.ErrorIs(t, err, shared.ErrNoTenant)
}
