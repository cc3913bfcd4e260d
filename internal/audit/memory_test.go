package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryAuditRepo struct {
	mu      sync.Mutex
	entries []Entry
	cutoff  time.Time
	lastF   Filters
}

func (r *memoryAuditRepo) Insert(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.ID == e.ID {
			return nil
		}
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryAuditRepo) match(f Filters) []Entry {
	out := make([]Entry, 0)
	for _, e := range r.entries {
		if f.TenantID != nil && e.TenantID != *f.TenantID {
			continue
		}
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *memoryAuditRepo) List(ctx context.Context, f Filters) ([]Entry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastF = f
	all := r.match(f)
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	total := len(all)
	if f.Offset >= len(all) {
		return []Entry{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (r *memoryAuditRepo) ListAll(ctx context.Context, f Filters) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match(f), nil
}

func (r *memoryAuditRepo) History(ctx context.Context, tenantID *int64, entityType, entityID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.match(Filters{TenantID: tenantID, EntityType: entityType, EntityID: entityID})
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func (r *memoryAuditRepo) Stats(ctx context.Context, tenantID *int64, topN int) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{ByAction: map[Action]int64{}}
	perUser := map[int64]int64{}
	for _, e := range r.match(Filters{TenantID: tenantID}) {
		stats.Total++
		stats.ByAction[e.Action]++
		if e.UserID != 0 {
			perUser[e.UserID]++
		}
	}
	for user, n := range perUser {
		stats.TopUsers = append(stats.TopUsers, UserCount{UserID: user, Count: n})
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		if stats.TopUsers[i].Count == stats.TopUsers[j].Count {
			return stats.TopUsers[i].UserID < stats.TopUsers[j].UserID
		}
		return stats.TopUsers[i].Count > stats.TopUsers[j].Count
	})
	if len(stats.TopUsers) > topN {
		stats.TopUsers = stats.TopUsers[:topN]
	}
	return stats, nil
}

func (r *memoryAuditRepo) DeleteBefore(ctx context.Context, tenantID *int64, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoff = cutoff
	kept := r.entries[:0]
	var deleted int64
	for _, e := range r.entries {
		if e.Timestamp.Before(cutoff) && (tenantID == nil || e.TenantID == *tenantID) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}
