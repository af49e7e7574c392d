package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodePaymentFailed, status: http.StatusPaymentRequired, publicMsg: "payment failed", detailsOK: true},
		{code: CodeInconsistent, status: http.StatusBadGateway, publicMsg: "upstream returned an inconsistent response"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeAndRetryable(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("timeout"), "fetch cart"))
	if !IsCode(wrapped, CodeDependency) {
		t.Fatalf("expected dependency code through fmt wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("dependency errors should be retryable")
	}
	if IsRetryable(New(CodePaymentFailed, "declined")) {
		t.Fatalf("payment failures are not retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors are not retryable")
	}
}

func TestDumpCarriesCodeAndChain(t *testing.T) {
	err := Wrap(CodeInconsistent, stdErrors.New("missing id"), "create order").WithDetails(map[string]any{"field": "id"})
	d := Dump(err)
	if d.Code != CodeInconsistent {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(d.Chain))
	}
	if d.Details == nil {
		t.Fatalf("expected details in dump")
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "")
	err := fmt.Errorf("lookup: %w", Newf(CodeNotFound, "order %d", 7))
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("different codes must not match")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey", TableName: "orders", Message: "duplicate key"}
	d := Dump(Wrap(CodeConflict, pgErr, "insert order"))
	if d.PGCode != "23505" || d.PGConstraint != "orders_pkey" || d.PGTable != "orders" {
		t.Fatalf("unexpected pg fields %+v", d)
	}

	pqErr := &pq.Error{Code: "23503", Constraint: "order_items_order_id_fkey", Table: "order_items"}
	d = Dump(fmt.Errorf("wrapped: %w", pqErr))
	if d.PGCode != "23503" || d.PGTable != "order_items" {
		t.Fatalf("unexpected pq fields %+v", d)
	}
	if d.Code != "" {
		t.Fatalf("untyped chains carry no code, got %s", d.Code)
	}
}
