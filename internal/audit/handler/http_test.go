package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
	"github.com/swpuclaylee/APIFlask/internal/audit/repository"
	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
)

type staticVerifier struct{}

func (staticVerifier) Verify(ctx context.Context, tok string, kind security.Kind) (*security.Claims, error) {
	c := &security.Claims{Type: kind}
	c.Subject = tok
	c.ID = "jti-" + tok
	return c, nil
}

// auditorOnly grants system:log to the "auditor" user.
type auditorOnly struct{}

func (auditorOnly) HasPermission(ctx context.Context, userID, p string) (bool, error) {
	return userID == "auditor" && p == "system:log", nil
}

func (auditorOnly) HasRole(ctx context.Context, userID, role string) (bool, error) { return false, nil }

func (a auditorOnly) HasAnyPermission(ctx context.Context, userID string, ps ...string) (bool, error) {
	return a.HasPermission(ctx, userID, ps[0])
}

func (a auditorOnly) HasAllPermissions(ctx context.Context, userID string, ps ...string) (bool, error) {
	return a.HasPermission(ctx, userID, ps[0])
}

type failingReader struct{}

func (failingReader) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, autherr.Unavailable("get audit log", fmt.Errorf("connection refused"))
}

func (failingReader) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	return nil, autherr.Unavailable("list audit logs", fmt.Errorf("connection refused"))
}

func newRouter(logs Reader) *mux.Router {
	errs := httputil.ErrorWriter{Logger: logging.Discard()}
	router := mux.NewRouter()
	NewHandlers(logs, errs).RegisterRoutes(router, middleware.NewAuth(staticVerifier{}, auditorOnly{}, errs, nil))
	return router
}

func get(router http.Handler, path, caller string) (int, map[string]interface{}) {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("Authorization", "Bearer "+caller)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func seed(t *testing.T) *repository.MemoryRepository {
	t.Helper()
	repo := repository.NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []domain.AuditLog{
		{ID: "a1", UserID: "u1", Action: "login", Resource: "auth"},
		{ID: "a2", Action: "login_failure", Resource: "auth"},
		{ID: "a3", UserID: "u1", Action: "update", Resource: "role"},
	}
	for i := range entries {
		e := entries[i]
		e.IP = "203.0.113.7"
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(context.Background(), &e))
	}
	return repo
}

func TestListAuditLogs(t *testing.T) {
	router := newRouter(seed(t))

	status, body := get(router, "/audit-logs", "auditor")
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]interface{})
	require.Len(t, items, 3)
	assert.Equal(t, "a3", items[0].(map[string]interface{})["id"])
	assert.Nil(t, items[1].(map[string]interface{})["user_id"])
	assert.Equal(t, float64(3), body["paginate"].(map[string]interface{})["total"])

	_, body = get(router, "/audit-logs?user_id=u1&resource=auth", "auditor")
	items = body["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "a1", items[0].(map[string]interface{})["id"])

	_, body = get(router, "/audit-logs?per_page=2&page=2", "auditor")
	assert.Len(t, body["data"], 1)
}

func TestGetAuditLog(t *testing.T) {
	router := newRouter(seed(t))

	status, body := get(router, "/audit-logs/a2", "auditor")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "login_failure", body["data"].(map[string]interface{})["action"])

	status, body = get(router, "/audit-logs/zzz", "auditor")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Audit log zzz not found", body["msg"])
}

func TestAuditLogs_RequiresSystemLog(t *testing.T) {
	router := newRouter(seed(t))
	status, body := get(router, "/audit-logs", "someone")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Insufficient permission, requires: system:log", body["msg"])
}

func TestAuditLogs_StoreUnavailable(t *testing.T) {
	status, _ := get(newRouter(failingReader{}), "/audit-logs", "auditor")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
