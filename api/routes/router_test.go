package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/shopflow-backend/internal/orders"
	pkgAuth "github.com/angelmondragon/shopflow-backend/pkg/auth"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
	"github.com/angelmondragon/shopflow-backend/pkg/redis"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubAdminConsole struct {
	listed int
}

func (s *stubAdminConsole) List(context.Context, orders.AdminFilter, pagination.Params) (*orders.ListResult, error) {
	s.listed++
	return &orders.ListResult{Orders: []orders.Order{}}, nil
}

func (s *stubAdminConsole) Get(context.Context, uuid.UUID) (*orders.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubAdminConsole) SetFulfillmentStatus(context.Context, uuid.UUID, uuid.UUID, enums.FulfillmentStatus, string) (*orders.Order, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (s *stubAdminConsole) SetPaymentStatus(context.Context, uuid.UUID, uuid.UUID, enums.PaymentStatus, string) (*orders.Order, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (s *stubAdminConsole) Delete(context.Context, uuid.UUID, uuid.UUID, bool) error {
	return fmt.Errorf("not implemented")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		HTTP: config.HTTPConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitWindow:   time.Minute,
			RateLimitPerIP:    100,
			CheckoutPerWindow: 10,
		},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "shopflow", ExpirationMinutes: 60},
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.Wrap(raw)
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{DB: stubPinger{}, Redis: newTestRedis(t)})

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
		if got := resp.Header().Get("X-Shopflow-Env"); got != "test" {
			t.Fatalf("%s: expected env header, got %q", path, got)
		}
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{DB: stubPinger{err: fmt.Errorf("down")}})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	console := &stubAdminConsole{}
	router := NewRouter(cfg, nil, Dependencies{Admin: console})

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "customer", auth: bearer(t, cfg, enums.UserRoleCustomer), status: http.StatusForbidden},
		{name: "admin", auth: bearer(t, cfg, enums.UserRoleAdmin), status: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, resp.Code, resp.Body.String())
		}
	}
	if console.listed != 1 {
		t.Fatalf("expected one list call, got %d", console.listed)
	}
}

func TestCheckoutRequiresSignIn(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{Redis: newTestRedis(t)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{Redis: newTestRedis(t)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Idempotency-Key") {
		t.Fatalf("expected idempotency error, got %s", resp.Body.String())
	}
}

func TestRejectsMalformedCartSession(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Cart-Session", "../etc/passwd")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "shopflow_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	router := NewRouter(cfg, nil, Dependencies{Metrics: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "shopflow_test_total 1") {
		t.Fatalf("expected counter in exposition, got %s", resp.Body.String())
	}
}
