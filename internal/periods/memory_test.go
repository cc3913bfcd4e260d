package periods

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryPeriodRepo struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	nextID      int64
	rows        map[int64]Period
	posted      map[int64][]time.Time
	closedCalls int
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{rows: make(map[int64]Period), posted: make(map[int64][]time.Time)}
}

func (r *memoryPeriodRepo) post(tenantID int64, date time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted[tenantID] = append(r.posted[tenantID], date)
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx, &memoryTx{repo: r, tenantID: tenantID})
}

func (r *memoryPeriodRepo) List(ctx context.Context) ([]Period, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Period, 0)
	for _, p := range r.rows {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate.Time) })
	return out, nil
}

func (r *memoryPeriodRepo) Get(ctx context.Context, id int64) (Period, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return Period{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.TenantID != tenantID {
		return Period{}, shared.NotFound("accounting period", id)
	}
	return p, nil
}

func (r *memoryPeriodRepo) FindOpenContaining(ctx context.Context, date time.Time) (*Period, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.TenantID == tenantID && p.Status == StatusOpen && p.Contains(date) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryPeriodRepo) HasClosedContaining(ctx context.Context, date time.Time) (bool, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closedCalls++
	for _, p := range r.rows {
		if p.TenantID == tenantID && p.IsClosed() && p.Contains(date) {
			return true, nil
		}
	}
	return false, nil
}

type memoryTx struct {
	repo     *memoryPeriodRepo
	tenantID int64
}

func (t *memoryTx) LockTenant(ctx context.Context) error { return nil }

func (t *memoryTx) FindOverlapping(ctx context.Context, start, end time.Time) (*Period, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, p := range t.repo.rows {
		if p.TenantID == t.tenantID && Overlaps(p.StartDate.Time, p.EndDate.Time, start, end) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) Insert(ctx context.Context, in CreatePeriodInput) (Period, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	p := Period{
		ID: t.repo.nextID, TenantID: t.tenantID, Name: in.Name,
		StartDate: in.StartDate, EndDate: in.EndDate, Status: StatusOpen, Notes: in.Notes,
	}
	t.repo.rows[p.ID] = p
	return p, nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id int64) (Period, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	p, ok := t.repo.rows[id]
	if !ok || p.TenantID != t.tenantID {
		return Period{}, shared.NotFound("accounting period", id)
	}
	return p, nil
}

func (t *memoryTx) mutate(id int64, fn func(*Period)) (Period, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	p := t.repo.rows[id]
	fn(&p)
	t.repo.rows[id] = p
	return p, nil
}

func (t *memoryTx) SetClosed(ctx context.Context, id, userID int64, at time.Time) (Period, error) {
	return t.mutate(id, func(p *Period) {
		p.Status = StatusClosed
		p.ClosedBy = &userID
		p.ClosedAt = &at
	})
}

func (t *memoryTx) SetReopened(ctx context.Context, id, userID int64, at time.Time) (Period, error) {
	return t.mutate(id, func(p *Period) {
		p.Status = StatusOpen
		p.ReopenedBy = &userID
		p.ReopenedAt = &at
	})
}

func (t *memoryTx) UpdateDetails(ctx context.Context, id int64, name, notes string) (Period, error) {
	return t.mutate(id, func(p *Period) {
		p.Name = name
		p.Notes = notes
	})
}

func (t *memoryTx) CountPosted(ctx context.Context, start, end time.Time) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var n int64
	for _, d := range t.repo.posted[t.tenantID] {
		if !d.Before(start) && !d.After(end) {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	delete(t.repo.rows, id)
	return nil
}

type captureAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureAudit) Log(ctx context.Context, e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAudit) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}
