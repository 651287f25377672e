package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPForwardedTrust(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"172.16.0.0/12", "10.1.2.3"})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "direct client keeps peer address",
			remoteAddr: "203.0.113.9:50211",
			xff:        "198.51.100.44",
			xrip:       "198.51.100.45",
			want:       "203.0.113.9",
		},
		{
			name:       "trusted proxy forwards the real client",
			remoteAddr: "172.16.4.4:443",
			xff:        "198.51.100.44",
			trusted:    trusted,
			want:       "198.51.100.44",
		},
		{
			name:       "chain stops at first untrusted hop",
			remoteAddr: "172.16.4.4:443",
			xff:        "198.51.100.44, 172.16.9.9",
			trusted:    trusted,
			want:       "198.51.100.44",
		},
		{
			name:       "garbage forwarded header falls back to real-ip",
			remoteAddr: "172.16.4.4:443",
			xff:        "not-an-ip",
			xrip:       "198.51.100.45",
			trusted:    trusted,
			want:       "198.51.100.45",
		},
		{
			name:       "fully trusted chain keeps leftmost hop",
			remoteAddr: "172.16.4.4:443",
			xff:        "172.16.1.1, 172.16.2.2",
			trusted:    trusted,
			want:       "172.16.1.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://bookworm.local/api/matches", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"172.16.0.0/12", "10.1.2.3"}); err != nil {
		t.Fatalf("valid entries: %v", err)
	}
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty list should trust nothing, got %v err=%v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"not-a-network"}); err == nil {
		t.Fatal("expected parse error for invalid entry")
	}
}
