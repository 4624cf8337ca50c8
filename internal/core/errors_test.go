package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Invalid("shares", "sum is 90.00"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("add expense: %w", Invalid("name", "empty")), http.StatusBadRequest},
		{"forbidden", fmt.Errorf("x: %w", ErrForbidden), http.StatusForbidden},
		{"mirror", ErrMirrorReadOnly, http.StatusForbidden},
		{"not found", NotFound("session", "s1"), http.StatusNotFound},
		{"store", &StoreTransactionError{Op: "replace", Err: errors.New("disk I/O error")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSyncFailureUnwrap(t *testing.T) {
	err := &SyncFailure{AllocationID: "a", UserID: "u", Err: NotFound("user", "u")}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected SyncFailure to unwrap to ErrNotFound")
	}
}
