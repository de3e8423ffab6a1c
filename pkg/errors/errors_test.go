package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   Conflict("bidding is closed"),
			expected: "CONFLICT: bidding is closed",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("failed to save auction", errors.New("connection reset")),
			expected: "INTERNAL_ERROR: failed to save auction (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFoundWithID("Auction", "a1"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad bid", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("malformed body"), CodeInvalidInput, http.StatusBadRequest},
		{"conflict", Conflict("stage is not a round"), CodeConflict, http.StatusConflict},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
		{"timeout", Timeout("too slow"), CodeTimeout, http.StatusGatewayTimeout},
		{"unavailable", Unavailable("Auction store", nil), CodeUnavailable, http.StatusServiceUnavailable},
		{"too many requests", TooManyRequests("slow down"), CodeTooManyRequests, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.StatusCode())
			}
		})
	}
}

func TestNotFoundWithID_Details(t *testing.T) {
	err := NotFoundWithID("Auction", "UA-11111")

	if err.Details["id"] != "UA-11111" {
		t.Errorf("expected id 'UA-11111', got %v", err.Details["id"])
	}
	if err.Details["resource"] != "Auction" {
		t.Errorf("expected resource 'Auction', got %v", err.Details["resource"])
	}
}

func TestUnavailable_Message(t *testing.T) {
	cause := errors.New("retries exhausted")
	err := Unavailable("Auction store", cause)

	if err.Message != "Auction store is temporarily unavailable" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected Unavailable to wrap its cause")
	}
}

func TestStatusCode_DefaultsToInternal(t *testing.T) {
	err := &AppError{Code: CodeInternal, Message: "no status"}
	if err.StatusCode() != http.StatusInternalServerError {
		t.Errorf("expected %d, got %d", http.StatusInternalServerError, err.StatusCode())
	}
}

func TestAsAppError(t *testing.T) {
	conflict := Conflict("bidding is closed")
	wrapped := fmt.Errorf("admit bid: %w", conflict)
	regular := errors.New("regular error")

	if got := AsAppError(wrapped); got != conflict {
		t.Errorf("AsAppError() should find the AppError in the chain")
	}

	got := AsAppError(regular)
	if got.Code != CodeInternal {
		t.Errorf("expected plain error to become internal, got %s", got.Code)
	}
	if got.Err != regular {
		t.Errorf("expected the original error to be wrapped")
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := Validation("Invalid bid", map[string]any{"amount": "too low"})

	if writeErr := WriteError(rec, err); writeErr != nil {
		t.Fatalf("WriteError returned %v", writeErr)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != CodeValidation || body.Details["amount"] != "too low" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestNew_StatusFromCode(t *testing.T) {
	if got := New(CodeConflict, "late bid").StatusCode(); got != http.StatusConflict {
		t.Errorf("expected %d, got %d", http.StatusConflict, got)
	}
	if got := New("SOMETHING_ELSE", "odd").StatusCode(); got != http.StatusInternalServerError {
		t.Errorf("expected unknown code to map to %d, got %d", http.StatusInternalServerError, got)
	}

	err := InvalidInput("body too large").WithStatus(http.StatusRequestEntityTooLarge)
	if err.Code != CodeInvalidInput || err.StatusCode() != http.StatusRequestEntityTooLarge {
		t.Errorf("unexpected error %+v", err)
	}
}

func TestAppError_Response(t *testing.T) {
	data, err := json.Marshal(NotFoundWithID("Auction", "a1").Response())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !strings.Contains(string(data), CodeNotFound) {
		t.Errorf("response should contain error code, got %s", data)
	}
	if !strings.Contains(string(data), "Auction not found") {
		t.Errorf("response should contain error message, got %s", data)
	}
}
