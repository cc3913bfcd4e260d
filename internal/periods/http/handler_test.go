package periodshttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/periods"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type fakeService struct {
	created   periods.CreatePeriodInput
	closedBy  int64
	closeErr  error
	closedDay time.Time
}

func (f *fakeService) Create(ctx context.Context, in periods.CreatePeriodInput) (periods.Period, error) {
	if err := in.Validate(); err != nil {
		return periods.Period{}, err
	}
	f.created = in
	return periods.Period{ID: 1, Name: in.Name, StartDate: in.StartDate, EndDate: in.EndDate, Status: periods.StatusOpen}, nil
}

func (f *fakeService) FindAll(ctx context.Context) ([]periods.Period, error) {
	return []periods.Period{{ID: 1}}, nil
}

func (f *fakeService) Get(ctx context.Context, id int64) (periods.Period, error) {
	if id != 1 {
		return periods.Period{}, shared.NotFound("accounting period", id)
	}
	return periods.Period{ID: 1}, nil
}

func (f *fakeService) GetActivePeriod(ctx context.Context, date time.Time) (*periods.Period, error) {
	return nil, nil
}

func (f *fakeService) IsDateInClosedPeriod(ctx context.Context, date time.Time) (bool, error) {
	return !date.Before(f.closedDay), nil
}

func (f *fakeService) Close(ctx context.Context, id, userID int64) (periods.Period, error) {
	if f.closeErr != nil {
		return periods.Period{}, f.closeErr
	}
	f.closedBy = userID
	return periods.Period{ID: id, Status: periods.StatusClosed, ClosedBy: &userID}, nil
}

func (f *fakeService) Reopen(ctx context.Context, id, userID int64) (periods.Period, error) {
	return periods.Period{ID: id, Status: periods.StatusOpen}, nil
}

func (f *fakeService) Update(ctx context.Context, id int64, in periods.UpdatePeriodInput) (periods.Period, error) {
	return periods.Period{ID: id}, nil
}

func (f *fakeService) Delete(ctx context.Context, id int64) error { return nil }

func newRouter(svc *fakeService, actor shared.Actor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func TestCreatePeriodParsesDates(t *testing.T) {
	svc := &fakeService{}
	router := newRouter(svc, shared.Actor{TenantID: 1, UserID: 7, Role: shared.RoleManager})

	rr := do(router, http.MethodPost, "/accounting-periods", `{"name":"Q1","start_date":"2024-01-01","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "2024-03-31", svc.created.EndDate.String())

	rr = do(router, http.MethodPost, "/accounting-periods", `{"name":"Q1","start_date":"01/01/2024","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodPost, "/accounting-periods", `{"name":"Q1","start_date":"2024-04-01","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClosePassesActor(t *testing.T) {
	svc := &fakeService{}
	router := newRouter(svc, shared.Actor{TenantID: 1, UserID: 7, Role: shared.RoleAdmin})

	rr := do(router, http.MethodPost, "/accounting-periods/3/close", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 7, svc.closedBy)

	svc.closeErr = periods.ErrAlreadyClosed
	rr = do(router, http.MethodPost, "/accounting-periods/3/close", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestViewerCannotClose(t *testing.T) {
	router := newRouter(&fakeService{}, shared.Actor{TenantID: 1, UserID: 7, Role: shared.RoleViewer})
	require.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/accounting-periods/3/close", "").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodGet, "/accounting-periods", "").Code)
	require.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/accounting-periods/9", "").Code)
}

func TestCheckClosedEnforcesTenant(t *testing.T) {
	svc := &fakeService{closedDay: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	router := newRouter(svc, shared.Actor{TenantID: 1, UserID: 7, Role: shared.RoleViewer})

	rr := do(router, http.MethodGet, "/accounting-periods/check-closed/1/2024-02-10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body checkClosedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.IsClosed)
	require.Equal(t, "2024-02-10", body.Date.String())

	rr = do(router, http.MethodGet, "/accounting-periods/check-closed/2/2024-02-10", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodGet, "/accounting-periods/check-closed/1/not-a-date", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodGet, "/accounting-periods/active/1/2024-05-10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"period":null`)
}
