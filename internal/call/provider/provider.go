// Package provider abstracts the VOIP vendors behind a common adapter
// interface. Each adapter owns room naming, token minting and teardown for
// one vendor.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookworm/pkg/domain"
)

// ErrNotConfigured is returned when the selected vendor has no credentials.
var ErrNotConfigured = errors.New("voip provider not configured")

// DefaultTokenTTL bounds how long a join credential stays valid.
const DefaultTokenTTL = time.Hour

// RoomPrefix namespaces vendor room names per space.
const RoomPrefix = "bookworm-"

// RoomInfo describes a vendor-side room.
type RoomInfo struct {
	RoomID string
	Meta   map[string]string
}

// TokenRequest asks for a join credential for one user in one room.
type TokenRequest struct {
	Room     string
	UserID   string
	UserName string
	Role     domain.CallRole
	TTL      time.Duration
}

// Credential is a minted join token plus the vendor-side participant
// identity used to correlate webhook events back to the user.
type Credential struct {
	Token       string
	ProviderUID string
	ExpiresAt   time.Time
	Extra       map[string]string
}

// Adapter is one vendor integration.
type Adapter interface {
	Name() domain.VoipProvider
	CreateRoom(ctx context.Context, spaceID string, maxParticipants int) (RoomInfo, error)
	IssueToken(ctx context.Context, req TokenRequest) (Credential, error)
	EndRoom(ctx context.Context, roomID string) error
}

// Registry holds the configured adapters keyed by vendor.
type Registry struct {
	adapters map[domain.VoipProvider]Adapter
	fallback domain.VoipProvider
}

// NewRegistry builds a registry with the given default vendor.
func NewRegistry(fallback domain.VoipProvider) *Registry {
	return &Registry{
		adapters: make(map[domain.VoipProvider]Adapter),
		fallback: fallback,
	}
}

// Register adds an adapter. Nil adapters are ignored so callers can pass the
// result of a conditional constructor directly.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.adapters[a.Name()] = a
}

// Get resolves a vendor by name, falling back to the default when name is
// empty. Unknown or unconfigured vendors yield ErrNotConfigured.
func (r *Registry) Get(name domain.VoipProvider) (Adapter, error) {
	if name == "" {
		name = r.fallback
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return a, nil
}

// Default returns the fallback vendor name.
func (r *Registry) Default() domain.VoipProvider {
	return r.fallback
}

func roomName(spaceID string) string {
	return RoomPrefix + spaceID
}

func tokenTTL(req TokenRequest) time.Duration {
	if req.TTL > 0 {
		return req.TTL
	}
	return DefaultTokenTTL
}
