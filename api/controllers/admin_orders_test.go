package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
)

type stubConsole struct {
	filter      internalorders.AdminFilter
	params      pagination.Params
	adminID     uuid.UUID
	fulfillment enums.FulfillmentStatus
	payment     enums.PaymentStatus
	reason      string
	confirmed   bool
	changed     bool
	err         error
}

func (s *stubConsole) List(_ context.Context, filter internalorders.AdminFilter, params pagination.Params) (*internalorders.ListResult, error) {
	s.filter = filter
	s.params = params
	return &internalorders.ListResult{}, s.err
}

func (s *stubConsole) Get(_ context.Context, id uuid.UUID) (*internalorders.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.Order{ID: id}, nil
}

func (s *stubConsole) SetFulfillmentStatus(_ context.Context, adminID, id uuid.UUID, next enums.FulfillmentStatus, reason string) (*internalorders.Order, bool, error) {
	s.adminID = adminID
	s.fulfillment = next
	s.reason = reason
	if s.err != nil {
		return nil, false, s.err
	}
	return &internalorders.Order{ID: id, FulfillmentStatus: next}, s.changed, nil
}

func (s *stubConsole) SetPaymentStatus(_ context.Context, adminID, id uuid.UUID, next enums.PaymentStatus, reason string) (*internalorders.Order, bool, error) {
	s.adminID = adminID
	s.payment = next
	s.reason = reason
	if s.err != nil {
		return nil, false, s.err
	}
	return &internalorders.Order{ID: id, PaymentStatus: next}, s.changed, nil
}

func (s *stubConsole) Delete(_ context.Context, adminID, _ uuid.UUID, confirmed bool) error {
	s.adminID = adminID
	s.confirmed = confirmed
	if !confirmed {
		return pkgerrors.New(pkgerrors.CodeValidation, "order deletion must be confirmed")
	}
	return s.err
}

func adminRequest(method, target, body string, adminID, orderID uuid.UUID) *http.Request {
	req := signedInRequest(method, target, body, adminID)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestAdminOrdersFilters(t *testing.T) {
	console := &stubConsole{}
	ownerID := uuid.New()
	req := signedInRequest(http.MethodGet, "/api/v1/admin/orders?payment_status=paid&fulfillment_status=PROCESSING&owner_id="+ownerID.String()+"&limit=10", "", uuid.New())
	resp := httptest.NewRecorder()
	AdminOrders(console, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if console.filter.PaymentStatus == nil || *console.filter.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected payment filter")
	}
	if console.filter.FulfillmentStatus == nil || *console.filter.FulfillmentStatus != enums.FulfillmentStatusProcessing {
		t.Fatalf("expected fulfillment filter")
	}
	if console.filter.OwnerID == nil || *console.filter.OwnerID != ownerID || console.params.Limit != 10 {
		t.Fatalf("unexpected filter %+v params %+v", console.filter, console.params)
	}
}

func TestAdminOrdersRejectsUnknownStatusFilter(t *testing.T) {
	resp := httptest.NewRecorder()
	AdminOrders(&stubConsole{}, nil).ServeHTTP(resp, signedInRequest(http.MethodGet, "/api/v1/admin/orders?payment_status=refunded", "", uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOrderDetailNotFound(t *testing.T) {
	console := &stubConsole{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	resp := httptest.NewRecorder()
	AdminOrderDetail(console, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/", "", uuid.New(), uuid.New()))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminSetFulfillmentStatus(t *testing.T) {
	console := &stubConsole{changed: true}
	adminID := uuid.New()
	req := adminRequest(http.MethodPatch, "/", `{"status":"delivered","reason":"courier confirmed"}`, adminID, uuid.New())
	resp := httptest.NewRecorder()
	AdminSetFulfillmentStatus(console, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if console.fulfillment != enums.FulfillmentStatusDelivered || console.adminID != adminID || console.reason != "courier confirmed" {
		t.Fatalf("unexpected call %+v", console)
	}
	var envelope struct {
		Data statusChangeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Changed {
		t.Fatalf("expected changed=true")
	}
}

func TestAdminSetFulfillmentStatusDisallowedTransition(t *testing.T) {
	console := &stubConsole{err: pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")}
	req := adminRequest(http.MethodPatch, "/", `{"status":"PENDING"}`, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	AdminSetFulfillmentStatus(console, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminSetPaymentStatusRejectsUnknownStatus(t *testing.T) {
	req := adminRequest(http.MethodPatch, "/", `{"status":"REFUNDED"}`, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	AdminSetPaymentStatus(&stubConsole{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminSetPaymentStatus(t *testing.T) {
	console := &stubConsole{}
	req := adminRequest(http.MethodPatch, "/", `{"status":"PAID"}`, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	AdminSetPaymentStatus(console, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if console.payment != enums.PaymentStatusPaid {
		t.Fatalf("unexpected status %s", console.payment)
	}
}

func TestAdminDeleteOrderRequiresConfirmation(t *testing.T) {
	console := &stubConsole{}
	orderID := uuid.New()

	resp := httptest.NewRecorder()
	AdminDeleteOrder(console, nil).ServeHTTP(resp, adminRequest(http.MethodDelete, "/api/v1/admin/orders/x", "", uuid.New(), orderID))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AdminDeleteOrder(console, nil).ServeHTTP(resp, adminRequest(http.MethodDelete, "/api/v1/admin/orders/x?confirm=true", "", uuid.New(), orderID))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if !console.confirmed {
		t.Fatalf("expected confirmed delete")
	}
}

func TestStatusChangeRequestRejectsUnknownFields(t *testing.T) {
	req := adminRequest(http.MethodPatch, "/", `{"status":"PAID","force":true}`, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	AdminSetPaymentStatus(&stubConsole{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), string(pkgerrors.CodeValidation)) {
		t.Fatalf("expected validation error got %d %s", resp.Code, resp.Body.String())
	}
}
