package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

// mockPinger implements Pinger and DenylistChecker for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

type response struct {
	Code int    `json:"code"`
	Data status `json:"data"`
}

func probe(t *testing.T, srv *Server, path string) (int, response) {
	t.Helper()
	router := mux.NewRouter()
	srv.RegisterRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

func TestLive(t *testing.T) {
	code, resp := probe(t, NewServer(&mockPinger{pingErr: errors.New("down")}, nil), "/health/live")
	if code != http.StatusOK || resp.Data.Status != "ok" {
		t.Errorf("live = %d %+v, want 200 ok", code, resp)
	}
}

func TestReady_NilDependencies(t *testing.T) {
	code, resp := probe(t, NewServer(nil, nil), "/health/ready")
	if code != http.StatusOK || resp.Data.Status != "ok" {
		t.Errorf("ready = %d %+v, want 200 ok", code, resp)
	}
}

func TestReady_AllHealthy(t *testing.T) {
	code, resp := probe(t, NewServer(&mockPinger{}, &mockPinger{}), "/health/ready")
	if code != http.StatusOK {
		t.Fatalf("ready = %d, want 200", code)
	}
	if resp.Data.Checks["postgres"] != "ok" || resp.Data.Checks["denylist"] != "ok" {
		t.Errorf("checks = %v", resp.Data.Checks)
	}
}

func TestReady_DenylistDown(t *testing.T) {
	code, resp := probe(t, NewServer(&mockPinger{}, &mockPinger{pingErr: errors.New("connection refused")}), "/health/ready")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d, want 503", code)
	}
	if resp.Code != 0 || resp.Data.Status != "unavailable" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Data.Checks["denylist"] != "error: connection refused" || resp.Data.Checks["postgres"] != "ok" {
		t.Errorf("checks = %v", resp.Data.Checks)
	}
}
