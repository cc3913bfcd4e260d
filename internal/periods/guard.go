package periods

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ClosedChecker answers the closed-period question from storage.
type ClosedChecker interface {
	HasClosedContaining(ctx context.Context, date time.Time) (bool, error)
}

// Guard answers "is this date in a closed period" for posting services.
// Answers are cached per tenant and version; Invalidate bumps the tenant's version.
type Guard struct {
	checker ClosedChecker
	cache   *cache.Versioned
	logger  *slog.Logger
	group   singleflight.Group
}

// NewGuard constructs a Guard. A nil cache disables caching.
func NewGuard(checker ClosedChecker, c *cache.Versioned, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{checker: checker, cache: c, logger: logger}
}

func tenantScope(tenantID int64) string {
	return "tenant:" + strconv.FormatInt(tenantID, 10)
}

// IsDateInClosedPeriod reports whether date falls inside a closed period of the caller's tenant.
func (g *Guard) IsDateInClosedPeriod(ctx context.Context, date time.Time) (bool, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return false, err
	}
	day := shared.DateOnly(date)
	// A posting transaction must see the period row it is about to depend on,
	// so cached answers and shared in-flight lookups are skipped.
	if _, ok := db.TxFromContext(ctx); ok {
		return g.checker.HasClosedContaining(ctx, day)
	}
	key := tenantScope(tenantID) + ":" + day.Format(shared.DateLayout)
	if g.cache != nil {
		if versioned, err := g.cache.Key(ctx, tenantScope(tenantID), "closed", day.Format(shared.DateLayout)); err != nil {
			g.logger.Warn("period guard cache key", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		} else {
			key = versioned
			var closed bool
			switch err := g.cache.Get(ctx, key, &closed); {
			case err == nil:
				return closed, nil
			case !errors.Is(err, cache.ErrMiss):
				g.logger.Warn("period guard cache read", slog.String("key", key), slog.Any("error", err))
			}
		}
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		closed, err := g.checker.HasClosedContaining(ctx, day)
		if err != nil {
			return false, err
		}
		if g.cache != nil {
			if err := g.cache.Set(ctx, key, closed); err != nil {
				g.logger.Warn("period guard cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return closed, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// EnsureOpen fails with ErrDateInClosedPeriod when date lies in a closed period.
func (g *Guard) EnsureOpen(ctx context.Context, date time.Time) error {
	closed, err := g.IsDateInClosedPeriod(ctx, date)
	if err != nil {
		return err
	}
	if closed {
		return ErrDateInClosedPeriod
	}
	return nil
}

// Invalidate drops every cached answer for the caller's tenant.
func (g *Guard) Invalidate(ctx context.Context) {
	if g.cache == nil {
		return
	}
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return
	}
	if err := g.cache.Bump(ctx, tenantScope(tenantID)); err != nil {
		g.logger.Warn("period guard cache bump", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
	}
}
