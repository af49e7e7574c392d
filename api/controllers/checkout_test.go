package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/api/middleware"
	"github.com/angelmondragon/shopflow-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/shopflow-backend/internal/checkout"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

type stubCheckout struct {
	owner   cart.Owner
	input   checkoutsvc.CheckoutInput
	orderID uuid.UUID
	result  *payments.Result
	err     error
}

func (s *stubCheckout) Execute(_ context.Context, owner cart.Owner, input checkoutsvc.CheckoutInput) (*payments.Result, error) {
	s.owner = owner
	s.input = input
	return s.result, s.err
}

func (s *stubCheckout) RetryPayment(_ context.Context, owner cart.Owner, orderID uuid.UUID) (*payments.Result, error) {
	s.owner = owner
	s.orderID = orderID
	return s.result, s.err
}

func signedInRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

const checkoutBody = `{
	"recipient_name": "  Lan Tran ",
	"phone": "0901234567",
	"address": "12 Le Loi, District 1",
	"latitude": 10.80,
	"longitude": 106.65,
	"payment_method": "QR"
}`

func TestCheckoutPlacesOrder(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{result: &payments.Result{
		Order:               &orders.Order{ID: orderID, PaymentMethod: enums.PaymentMethodQR},
		PendingConfirmation: true,
		Payment:             &payments.Attempt{PayURL: "https://pay.example/qr"},
	}}
	userID := uuid.New()
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, signedInRequest(http.MethodPost, "/api/v1/checkout", checkoutBody, userID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.owner.UserID == nil || *svc.owner.UserID != userID {
		t.Fatalf("unexpected owner %+v", svc.owner)
	}
	if svc.input.PaymentMethod != enums.PaymentMethodQR {
		t.Fatalf("unexpected payment method %s", svc.input.PaymentMethod)
	}
	if svc.input.Shipping.RecipientName != "Lan Tran" {
		t.Fatalf("expected trimmed recipient got %q", svc.input.Shipping.RecipientName)
	}
	if svc.input.Shipping.Latitude == nil || *svc.input.Shipping.Latitude != 10.80 {
		t.Fatalf("expected coordinates to pass through")
	}

	var envelope struct {
		Data payments.Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.PendingConfirmation || envelope.Data.Payment.PayURL != "https://pay.example/qr" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	body := strings.Replace(checkoutBody, `"QR"`, `"CARD"`, 1)
	resp := httptest.NewRecorder()
	Checkout(&stubCheckout{}, nil).ServeHTTP(resp, signedInRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutRejectsMissingShipping(t *testing.T) {
	resp := httptest.NewRecorder()
	Checkout(&stubCheckout{}, nil).ServeHTTP(resp, signedInRequest(http.MethodPost, "/api/v1/checkout", `{"payment_method":"COD"}`, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutPaymentFailureKeepsOrderID(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment could not be started").
		WithDetails(map[string]any{"order_id": orderID})}
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, signedInRequest(http.MethodPost, "/api/v1/checkout", checkoutBody, uuid.New()))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), orderID.String()) {
		t.Fatalf("expected order id in error details: %s", resp.Body.String())
	}
}

func TestRetryOrderPayment(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{result: &payments.Result{PendingConfirmation: true}}
	req := signedInRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payments", "", uuid.New())
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	RetryOrderPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.orderID != orderID {
		t.Fatalf("unexpected order id %s", svc.orderID)
	}
}
