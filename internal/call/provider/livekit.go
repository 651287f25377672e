package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bookworm/pkg/domain"
)

// LiveKitAdapter mints access tokens locally. LiveKit creates rooms on first
// join, so CreateRoom only derives the name and EndRoom is a no-op; the room
// closes server-side when the last participant leaves.
type LiveKitAdapter struct {
	apiKey    string
	apiSecret string
}

// NewLiveKitAdapter returns nil when the key pair is not configured.
func NewLiveKitAdapter(apiKey, apiSecret string) Adapter {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil
	}
	return &LiveKitAdapter{apiKey: apiKey, apiSecret: apiSecret}
}

func (a *LiveKitAdapter) Name() domain.VoipProvider { return domain.ProviderLiveKit }

func (a *LiveKitAdapter) CreateRoom(ctx context.Context, spaceID string, maxParticipants int) (RoomInfo, error) {
	return RoomInfo{
		RoomID: roomName(spaceID),
		Meta:   map[string]string{"max_participants": fmt.Sprintf("%d", maxParticipants)},
	}, nil
}

type livekitVideoGrant struct {
	Room       string `json:"room"`
	RoomJoin   bool   `json:"roomJoin"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	CanPublish *bool  `json:"canPublish,omitempty"`
}

type livekitClaims struct {
	jwt.RegisteredClaims
	Name  string            `json:"name,omitempty"`
	Video livekitVideoGrant `json:"video"`
}

func (a *LiveKitAdapter) IssueToken(ctx context.Context, req TokenRequest) (Credential, error) {
	now := time.Now()
	expires := now.Add(tokenTTL(req))
	canPublish := req.Role == domain.CallRoleHost
	claims := livekitClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.apiKey,
			Subject:   req.UserID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name: req.UserName,
		Video: livekitVideoGrant{
			Room:       req.Room,
			RoomJoin:   true,
			RoomAdmin:  req.Role == domain.CallRoleHost,
			CanPublish: &canPublish,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.apiSecret))
	if err != nil {
		return Credential{}, fmt.Errorf("livekit sign token: %w", err)
	}
	// LiveKit reports participants by identity, which is the token subject.
	return Credential{Token: token, ProviderUID: req.UserID, ExpiresAt: expires}, nil
}

func (a *LiveKitAdapter) EndRoom(ctx context.Context, roomID string) error {
	return nil
}
