package tenants

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newTestRouter(actor shared.Actor) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(newMemoryTenantRepo(), nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	h.MountRoutes(r)
	return r
}

func TestTenantRoutesRequirePlatformAdmin(t *testing.T) {
	for _, role := range []string{shared.RoleManager, shared.RoleAdmin} {
		router := newTestRouter(shared.Actor{TenantID: 1, UserID: 1, Role: role})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tenants", nil))
		require.Equal(t, http.StatusForbidden, rr.Code, role)

		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`{"code":"other","name":"Other"}`)))
		require.Equal(t, http.StatusForbidden, rr.Code, role)
	}

	router := newTestRouter(shared.Actor{TenantID: 1, UserID: 1, Role: shared.RolePlatformAdmin})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tenants", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestTenantCreateAndGet(t *testing.T) {
	router := newTestRouter(shared.Actor{TenantID: 1, UserID: 1, Role: shared.RolePlatformAdmin})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`{"code":"acme","name":"Acme"}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created Tenant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "acme", created.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tenants/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tenants/99", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`{"code":""}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
