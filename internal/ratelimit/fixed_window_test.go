package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterCapsWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "bookworm:rl", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	key := "/api/auth/login|203.0.113.9"
	if !limiter.Allow(key) {
		t.Fatalf("first attempt blocked")
	}
	if !limiter.Allow(key) {
		t.Fatalf("second attempt blocked")
	}
	if limiter.Allow(key) {
		t.Fatalf("third attempt passed the cap")
	}
	if !limiter.Allow("/api/auth/login|198.51.100.4") {
		t.Fatalf("other client caught by the first client's window")
	}

	mr.FastForward(time.Minute + time.Second)
	if !limiter.Allow(key) {
		t.Fatalf("window did not reset after expiry")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "bookworm:rl", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow("/api/auth/login|203.0.113.9") {
		t.Fatalf("limiter open despite redis being down")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "bookworm:rl", 1, time.Minute)
	if err == nil || limiter != nil {
		t.Fatalf("constructor accepted an empty redis addr")
	}
}
