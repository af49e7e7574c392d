package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive("test").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Shopflow-Env") != "test" {
		t.Fatalf("expected env header")
	}
}

func TestHealthReady(t *testing.T) {
	ok := HealthReady("test", nil,
		ReadinessCheck{Name: "postgres", Target: stubPinger{}},
		ReadinessCheck{Name: "redis", Target: stubPinger{}},
	)
	resp := httptest.NewRecorder()
	ok.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	down := HealthReady("test", nil,
		ReadinessCheck{Name: "postgres", Target: stubPinger{}},
		ReadinessCheck{Name: "redis", Target: stubPinger{err: errors.New("connection refused")}},
	)
	resp = httptest.NewRecorder()
	down.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
