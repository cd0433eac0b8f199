package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()
	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var res struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Errorf("body status = %q", res.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "memory", Check: func(context.Context) error { return nil }},
		Checker{Name: "audio", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"memory":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyzFailingChecker(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "memory", Check: func(context.Context) error { return errors.New("pool exhausted") }},
		Checker{Name: "audio", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "pool exhausted") || !strings.Contains(body, `"audio":"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestReadyzCheckerGetsContext(t *testing.T) {
	t.Parallel()
	var gotDeadline bool
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	}})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if !gotDeadline {
		t.Error("checker context has no deadline")
	}
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}
