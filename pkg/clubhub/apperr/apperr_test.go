package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

var errFull = New(CapacityExceeded, "Event is full")

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", errFull)

	if KindOf(wrapped) != CapacityExceeded {
		t.Errorf("Expected CapacityExceeded, got %s", KindOf(wrapped))
	}
	if !errors.Is(wrapped, errFull) {
		t.Error("Expected errors.Is to match the sentinel")
	}
	if KindOf(errors.New("boom")) != Internal {
		t.Error("Expected unclassified errors to be Internal")
	}
	if Is(nil, Internal) {
		t.Error("Expected nil error to match no kind")
	}
}

func TestWrapInternalHidesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(Internal, "Failed to save", cause)

	if Message(err) != "Failed to save" {
		t.Errorf("Expected client message 'Failed to save', got %s", Message(err))
	}
	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable")
	}
	if Message(cause) != "Internal server error" {
		t.Errorf("Expected generic message for raw errors, got %s", Message(cause))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Forbidden, http.StatusForbidden},
		{CapacityExceeded, http.StatusConflict},
		{InvalidTiming, http.StatusUnprocessableEntity},
		{ValidationFailed, http.StatusBadRequest},
		{Internal, http.StatusInternalServerError},
		{Kind(99), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.kind, tt.status, got)
		}
	}
}

func TestJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)

	JSON(c, errFull)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
	var body map[string]string
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["error"] != "Event is full" {
		t.Errorf("Expected error 'Event is full', got %s", body["error"])
	}
	if body["kind"] != "capacity_exceeded" {
		t.Errorf("Expected kind capacity_exceeded, got %s", body["kind"])
	}
}
