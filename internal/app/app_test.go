package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/budget"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tenants"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 365, cfg.AuditRetentionDays)
	require.Equal(t, 2*time.Second, cfg.AuditEnqueueTimeout)
	require.True(t, cfg.AuditQueueEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsWeakSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("AUDIT_RETENTION_DAYS", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("ready", "addr", ":8080")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ready", line["msg"])
	require.Equal(t, "production", line["env"])
}

func newTestRouter(t *testing.T) (http.Handler, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer(testSecret, "backoffice", time.Hour)
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 0, AppRequestTimeout: 5 * time.Second}
	router := NewRouter(RouterParams{
		Config:         cfg,
		Metrics:        observability.NewMetrics(),
		Tokens:         issuer,
		TenantsHandler: tenants.NewHandler(nil, nil),
		BudgetHandler:  budget.NewHandler(nil, nil),
	})
	return router, issuer
}

func bearer(t *testing.T, issuer *auth.Issuer, role string) string {
	t.Helper()
	token, err := issuer.Issue(shared.Actor{TenantID: 1, UserID: 2, Role: role})
	require.NoError(t, err)
	return "Bearer " + token.AccessToken
}

func TestRouterPublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "backoffice_http_requests_total")
}

func TestRouterRequiresToken(t *testing.T) {
	router, issuer := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/budget/variance?budget=100&actual=80", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/budget/variance?budget=100&actual=80", nil)
	req.Header.Set("Authorization", bearer(t, issuer, shared.RoleViewer))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "20", body["variance"])
	require.Equal(t, "20", body["variance_percent"])
}

func TestRouterTenantsNeedPlatformAdmin(t *testing.T) {
	router, issuer := newTestRouter(t)

	for _, role := range []string{shared.RoleManager, shared.RoleAdmin} {
		req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
		req.Header.Set("Authorization", bearer(t, issuer, role))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code, role)
	}

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
