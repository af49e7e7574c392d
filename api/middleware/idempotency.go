package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/shopflow-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
	maxIdempotencyKeyBytes   = 255
	defaultIdempotencyTTL    = 24 * time.Hour
	criticalIdempotencyTTL   = 7 * 24 * time.Hour
	inFlightTTL              = 2 * time.Minute
)

// idempotentRoutes maps "METHOD pattern" to how long a completed response is kept.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/checkout":                  criticalIdempotencyTTL,
	http.MethodPost + " /api/v1/orders/{orderId}/payments": criticalIdempotencyTTL,
	http.MethodPost + " /api/v1/cart/merge":                defaultIdempotencyTTL,
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+pattern]
	return ttl, ok
}

// storedResponse is what lands in redis under an idempotency key. A
// reservation is a storedResponse with Pending set and no status yet.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyGate struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is reserved before the handler runs so two concurrent submissions
// of the same checkout cannot both place an order.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	gate := &idempotencyGate{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			gate.serve(w, r, next, ttl)
		})
	}
}

func (g *idempotencyGate) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	switch {
	case clientKey == "":
		g.fail(w, r, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	case len(clientKey) > maxIdempotencyKeyBytes:
		g.fail(w, r, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.fail(w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprintBody(body)
	key := g.store.IdempotencyKey(callerScope(r), clientKey)

	reserved, err := g.reserve(ctx, key, fingerprint)
	if err != nil {
		g.fail(w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if !reserved {
		g.replay(w, r, key, fingerprint)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	completed := false
	defer func() {
		if !completed {
			// handler panicked; free the key so the client can retry
			_ = g.store.Del(context.WithoutCancel(ctx), key)
		}
	}()
	next.ServeHTTP(capture, r)
	completed = true

	g.commit(ctx, key, ttl, storedResponse{
		Fingerprint: fingerprint,
		Status:      capture.statusOrOK(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
}

func (g *idempotencyGate) reserve(ctx context.Context, key, fingerprint string) (bool, error) {
	placeholder, err := json.Marshal(storedResponse{Fingerprint: fingerprint, Pending: true})
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, string(placeholder), inFlightTTL)
}

func (g *idempotencyGate) commit(ctx context.Context, key string, ttl time.Duration, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		g.logError(ctx, "idempotency.record_marshal_failed", err)
		return
	}
	// the client may already have gone away; the record must still land
	if err := g.store.Set(context.WithoutCancel(ctx), key, string(payload), ttl); err != nil {
		g.logError(ctx, "idempotency.record_persist_failed", err)
	}
}

func (g *idempotencyGate) replay(w http.ResponseWriter, r *http.Request, key, fingerprint string) {
	raw, err := g.store.Get(r.Context(), key)
	if errors.Is(err, pkgredis.ErrNotFound) {
		// reservation expired between SetNX and Get
		g.fail(w, r, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is being retried; try again"))
		return
	}
	if err != nil {
		g.fail(w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		g.fail(w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case prior.Fingerprint != fingerprint:
		g.fail(w, r, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case prior.Pending:
		g.fail(w, r, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set(IdempotentReplayedHeader, "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
	}
}

func (g *idempotencyGate) fail(w http.ResponseWriter, r *http.Request, err error) {
	responses.WriteError(r.Context(), g.logg, w, err)
}

func (g *idempotencyGate) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(ctx, msg, err)
	}
}

// callerScope keys records per caller: the signed-in user, else the cart session.
func callerScope(r *http.Request) string {
	caller := UserIDFromContext(r.Context())
	if caller == "" {
		caller = "anon:" + CartSessionFromContext(r.Context())
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
