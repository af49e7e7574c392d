package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/api/middleware"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
)

type stubReconciler struct {
	marker        *payments.Marker
	checked       string
	polled        string
	reconciled    string
	reconcileFrom string
}

func (s *stubReconciler) PendingMarker(context.Context, string) (*payments.Marker, error) {
	return s.marker, nil
}

func (s *stubReconciler) CheckPending(_ context.Context, session string) (*payments.CheckResult, error) {
	s.checked = session
	return &payments.CheckResult{Status: payments.StatusPending, Attempts: 1}, nil
}

func (s *stubReconciler) Poll(_ context.Context, session string) (*payments.CheckResult, error) {
	s.polled = session
	return &payments.CheckResult{Status: payments.StatusPaid}, nil
}

func (s *stubReconciler) Reconcile(_ context.Context, id, source string) (*payments.CheckResult, error) {
	s.reconciled = id
	s.reconcileFrom = source
	return &payments.CheckResult{Status: payments.StatusPaid}, nil
}

type fixedVerifier bool

func (v fixedVerifier) VerifyNotification(momo.Notification) bool { return bool(v) }

func returnQuery(orderID string) string {
	q := url.Values{}
	q.Set("partnerCode", "MOMO")
	q.Set("orderId", orderID)
	q.Set("requestId", "req-1")
	q.Set("amount", "65000")
	q.Set("transId", "4242")
	q.Set("resultCode", "0")
	q.Set("responseTime", "1700000000000")
	q.Set("signature", "abc")
	return q.Encode()
}

func TestPaymentsCheckPending(t *testing.T) {
	rec := &stubReconciler{}
	userID := uuid.New()
	req := signedInRequest(http.MethodPost, "/api/v1/payments/pending/check", "", userID)
	resp := httptest.NewRecorder()
	PaymentsCheckPending(rec, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if rec.checked != "user:"+userID.String() {
		t.Fatalf("unexpected session bucket %q", rec.checked)
	}
}

func TestPaymentsReturnPollsMatchingMarker(t *testing.T) {
	rec := &stubReconciler{marker: &payments.Marker{ProviderTransactionID: "SF-1"}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+returnQuery("SF-1"), nil)
	req = req.WithContext(middleware.WithCartSession(req.Context(), "session-1"))
	resp := httptest.NewRecorder()
	PaymentsReturn(rec, fixedVerifier(true), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if rec.polled != "session-1" || rec.reconciled != "" {
		t.Fatalf("expected poll on the marker session, got polled=%q reconciled=%q", rec.polled, rec.reconciled)
	}
}

func TestPaymentsReturnWithoutMarkerReconcilesDirectly(t *testing.T) {
	rec := &stubReconciler{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+returnQuery("SF-2"), nil)
	resp := httptest.NewRecorder()
	PaymentsReturn(rec, fixedVerifier(true), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if rec.reconciled != "SF-2" || rec.reconcileFrom != payments.SourceReturn {
		t.Fatalf("unexpected reconcile id=%q source=%q", rec.reconciled, rec.reconcileFrom)
	}
}

func TestPaymentsReturnRejectsForgedQuery(t *testing.T) {
	rec := &stubReconciler{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+returnQuery("SF-3"), nil)
	resp := httptest.NewRecorder()
	PaymentsReturn(rec, fixedVerifier(false), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if rec.reconciled != "" || rec.polled != "" {
		t.Fatalf("forged return must not reach the reconciler")
	}
}

func TestNotificationFromQueryParsesNumbers(t *testing.T) {
	q, _ := url.ParseQuery(returnQuery("SF-4"))
	n, err := notificationFromQuery(q)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if n.Amount != 65000 || n.TransID != 4242 || n.ResultCode != 0 || n.ResponseTime != 1700000000000 {
		t.Fatalf("unexpected notification %+v", n)
	}

	q.Set("amount", "lots")
	if _, err := notificationFromQuery(q); err == nil {
		t.Fatalf("expected numeric validation error")
	}
}
