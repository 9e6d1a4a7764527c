package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/samfms/scf/internal/errors"
)

func TestCorrelationAssignsIDsWhenAbsent(t *testing.T) {
	var gotCorrelation, gotRequest string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorrelation = CorrelationID(r.Context())
		gotRequest = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotCorrelation == "" {
		t.Error("expected a generated correlation id")
	}
	if gotRequest == "" {
		t.Error("expected a generated request id")
	}
	if rec.Header().Get(HeaderCorrelationID) != gotCorrelation {
		t.Error("response header should echo the assigned correlation id")
	}
}

func TestCorrelationReusesIncomingHeader(t *testing.T) {
	var got string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	req.Header.Set(HeaderCorrelationID, "caller-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != "caller-supplied-id" {
		t.Errorf("CorrelationID = %q, want caller-supplied-id", got)
	}
}

func TestWriteErrorUsesTaxonomyStatusCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.New(apperrors.TypeNotFound, "trip not found"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestWriteErrorOmitsDetailsForClientErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	rec := httptest.NewRecorder()

	err := apperrors.New(apperrors.TypeValidation, "bad input").WithDetails("field x is required")
	WriteError(rec, req, err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if containsDetails(rec.Body.String()) {
		t.Error("4xx responses should never include details regardless of mode")
	}
}

func containsDetails(body string) bool {
	return len(body) > 0 && (contains(body, `"details":"field x is required"`))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
