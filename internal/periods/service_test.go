package periods

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func tenantCtx(tenantID, userID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: userID, Role: shared.RoleManager})
}

func day(y int, m time.Month, d int) shared.Date {
	return shared.NewDate(y, m, d)
}

func q1() CreatePeriodInput {
	return CreatePeriodInput{Name: "Q1 2024", StartDate: day(2024, 1, 1), EndDate: day(2024, 3, 31)}
}

func q2() CreatePeriodInput {
	return CreatePeriodInput{Name: "Q2 2024", StartDate: day(2024, 4, 1), EndDate: day(2024, 6, 30)}
}

func newTestService() (*Service, *memoryPeriodRepo, *captureAudit) {
	repo := newMemoryPeriodRepo()
	rec := &captureAudit{}
	svc := NewService(repo, nil, rec)
	svc.WithNow(func() time.Time { return time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC) })
	return svc, repo, rec
}

func TestOverlapsMatchesIntervalIntersection(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pick := func() (time.Time, time.Time) {
		a := base.AddDate(0, 0, rng.Intn(60))
		b := a.AddDate(0, 0, rng.Intn(30))
		return a, b
	}
	for i := 0; i < 2000; i++ {
		aStart, aEnd := pick()
		bStart, bEnd := pick()
		want := !aStart.After(bEnd) && !bStart.After(aEnd)
		require.Equal(t, want, Overlaps(aStart, aEnd, bStart, bEnd), "a=[%s,%s] b=[%s,%s]", aStart, aEnd, bStart, bEnd)
		require.Equal(t, want, Overlaps(bStart, bEnd, aStart, aEnd))
	}
}

func TestCreateQuarterScenario(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := tenantCtx(1, 1)

	first, err := svc.Create(ctx, q1())
	require.NoError(t, err)
	require.Equal(t, StatusOpen, first.Status)

	_, err = svc.Create(ctx, CreatePeriodInput{Name: "Q1 overlap", StartDate: day(2024, 3, 15), EndDate: day(2024, 6, 30)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreatePeriodInput{Name: "Whole year", StartDate: day(2023, 12, 1), EndDate: day(2024, 12, 31)})
	require.ErrorIs(t, err, shared.ErrValidation, "a wider range must not swallow an existing period")

	second, err := svc.Create(ctx, q2())
	require.NoError(t, err)

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionCreate}, rec.actions())
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := tenantCtx(1, 1)

	_, err := svc.Create(ctx, CreatePeriodInput{Name: "  ", StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 31)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreatePeriodInput{Name: "Backwards", StartDate: day(2024, 2, 1), EndDate: day(2024, 1, 31)})
	require.ErrorIs(t, err, shared.ErrValidation)

	single, err := svc.Create(ctx, CreatePeriodInput{Name: "One day", StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 1)})
	require.NoError(t, err)
	require.True(t, single.Contains(day(2024, 1, 1).Time))

	_, err = svc.Create(context.Background(), q2())
	require.ErrorIs(t, err, shared.ErrNoTenant)
}

func TestPeriodsAreTenantScoped(t *testing.T) {
	svc, _, _ := newTestService()
	created, err := svc.Create(tenantCtx(1, 1), q1())
	require.NoError(t, err)

	_, err = svc.Create(tenantCtx(2, 5), q1())
	require.NoError(t, err, "other tenants may reuse the same range")

	_, err = svc.Get(tenantCtx(2, 5), created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Close(tenantCtx(2, 5), created.ID, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCloseAndClosedCheck(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := tenantCtx(1, 1)
	first, err := svc.Create(ctx, q1())
	require.NoError(t, err)
	_, err = svc.Create(ctx, q2())
	require.NoError(t, err)

	closed, err := svc.Close(ctx, first.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	require.EqualValues(t, 1, *closed.ClosedBy)
	require.NotNil(t, closed.ClosedAt)

	inClosed, err := svc.IsDateInClosedPeriod(ctx, day(2024, 2, 10).Time)
	require.NoError(t, err)
	require.True(t, inClosed)

	inClosed, err = svc.IsDateInClosedPeriod(ctx, day(2024, 5, 10).Time)
	require.NoError(t, err)
	require.False(t, inClosed)

	inClosed, err = svc.IsDateInClosedPeriod(ctx, time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, inClosed, "end date is inclusive")

	require.Contains(t, rec.actions(), audit.ActionPeriodClose)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := tenantCtx(1, 1)
	p, err := svc.Create(ctx, q1())
	require.NoError(t, err)

	_, err = svc.Reopen(ctx, p.ID, 1)
	require.ErrorIs(t, err, ErrNotClosed)
	require.ErrorIs(t, err, shared.ErrState)

	_, err = svc.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	_, err = svc.Close(ctx, p.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.ErrorIs(t, err, shared.ErrState)

	name := "renamed"
	_, err = svc.Update(ctx, p.ID, UpdatePeriodInput{Name: &name})
	require.ErrorIs(t, err, shared.ErrState)
	require.ErrorIs(t, svc.Delete(ctx, p.ID), shared.ErrState)

	reopened, err := svc.Reopen(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, reopened.Status)
	require.EqualValues(t, 2, *reopened.ReopenedBy)

	updated, err := svc.Update(ctx, p.ID, UpdatePeriodInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Equal(t, []audit.Action{
		audit.ActionCreate, audit.ActionPeriodClose, audit.ActionPeriodReopen, audit.ActionUpdate, audit.ActionDelete,
	}, rec.actions())
}

func TestDeleteBlockedByPostedTransactions(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := tenantCtx(1, 1)
	p, err := svc.Create(ctx, q1())
	require.NoError(t, err)

	repo.post(2, day(2024, 2, 1).Time)
	repo.post(1, day(2024, 7, 1).Time)
	repo.post(1, day(2024, 3, 31).Time)

	err = svc.Delete(ctx, p.ID)
	require.ErrorIs(t, err, ErrHasTransactions)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
}

func TestGetActivePeriodIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := tenantCtx(1, 1)
	p, err := svc.Create(ctx, q1())
	require.NoError(t, err)

	first, err := svc.GetActivePeriod(ctx, day(2024, 2, 10).Time)
	require.NoError(t, err)
	second, err := svc.GetActivePeriod(ctx, day(2024, 2, 10).Time)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, *first, *second)
	require.Equal(t, p.ID, first.ID)

	none, err := svc.GetActivePeriod(ctx, day(2024, 5, 10).Time)
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = svc.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	none, err = svc.GetActivePeriod(ctx, day(2024, 2, 10).Time)
	require.NoError(t, err)
	require.Nil(t, none, "closed periods are not active")
}

func TestFailingAuditSinkDoesNotAffectResult(t *testing.T) {
	repo := newMemoryPeriodRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(audit.SinkFunc(func(ctx context.Context, e audit.Entry) error {
		return errors.New("queue unavailable")
	}), logger)
	svc := NewService(repo, nil, recorder)
	ctx := tenantCtx(1, 1)

	p, err := svc.Create(ctx, q1())
	require.NoError(t, err)
	closed, err := svc.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
}
