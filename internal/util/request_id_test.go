package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestIDKeepsCallerID(t *testing.T) {
	const callerID = "mobile-7f3a41"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != callerID {
			t.Fatalf("request id in context = %q, want %q", got, callerID)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("X-Request-Id", callerID)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != callerID {
		t.Fatalf("response request id = %q, want %q", got, callerID)
	}
}

func TestWithRequestIDMintsWhenAbsent(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
		if seen == "" {
			t.Fatal("no request id in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/matches", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got == "" || got != seen {
		t.Fatalf("response request id = %q, want the minted id %q", got, seen)
	}
}
