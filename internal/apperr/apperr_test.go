package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"validation", Validation("student_id", "Please select a student"), "Please select a student"},
		{"api detail", &APIError{Status: 409, Detail: "student already enrolled"}, "student already enrolled"},
		{"api no detail", &APIError{Status: 502}, "API error: 502"},
		{"wrapped api", fmt.Errorf("enroll: %w", &APIError{Status: 404, Detail: "Student not found"}), "Student not found"},
		{"network", &NetworkError{Err: errors.New("connection refused")}, "network error: connection refused"},
		{"timeout", fmt.Errorf("wait: %w", ErrTimeout), ErrTimeout.Error()},
		{"unauthenticated", ErrUnauthenticated, "User not authenticated"},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		if got := Message(tc.err); got != tc.want {
			t.Fatalf("%s: Message() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(Validation("x", "bad")); got != http.StatusBadRequest {
		t.Fatalf("validation status = %d", got)
	}
	if got := HTTPStatus(&APIError{Status: 409}); got != http.StatusConflict {
		t.Fatalf("409 passthrough = %d", got)
	}
	if got := HTTPStatus(&APIError{Status: 500}); got != http.StatusBadGateway {
		t.Fatalf("5xx status = %d", got)
	}
	if got := HTTPStatus(ErrUnauthenticated); got != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", got)
	}
}
