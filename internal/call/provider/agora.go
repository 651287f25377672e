package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"bookworm/pkg/domain"
)

// AgoraAdapter mints RTC tokens locally from the app certificate. Agora has
// no room lifecycle API for this use case; channels exist while occupied.
type AgoraAdapter struct {
	appID   string
	appCert string
}

// NewAgoraAdapter returns nil when the app credentials are not configured.
func NewAgoraAdapter(appID, appCert string) Adapter {
	if strings.TrimSpace(appID) == "" || strings.TrimSpace(appCert) == "" {
		return nil
	}
	return &AgoraAdapter{appID: appID, appCert: appCert}
}

func (a *AgoraAdapter) Name() domain.VoipProvider { return domain.ProviderAgora }

func (a *AgoraAdapter) CreateRoom(ctx context.Context, spaceID string, maxParticipants int) (RoomInfo, error) {
	return RoomInfo{
		RoomID: roomName(spaceID),
		Meta:   map[string]string{"app_id": a.appID},
	}, nil
}

// NumericUID derives the stable 32-bit channel uid Agora requires from a
// user id. Zero is reserved, so it maps to one.
func NumericUID(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	uid := h.Sum32()
	if uid == 0 {
		uid = 1
	}
	return uid
}

func (a *AgoraAdapter) IssueToken(ctx context.Context, req TokenRequest) (Credential, error) {
	uid := NumericUID(req.UserID)
	expires := time.Now().Add(tokenTTL(req))
	role := "subscriber"
	if req.Role == domain.CallRoleHost {
		role = "publisher"
	}
	msg := fmt.Sprintf("%s:%s:%d:%s:%d", a.appID, req.Room, uid, role, expires.Unix())
	mac := hmac.New(sha256.New, []byte(a.appCert))
	mac.Write([]byte(msg))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	token := fmt.Sprintf("007%s.%s", base64.RawURLEncoding.EncodeToString([]byte(msg)), sig)
	return Credential{
		Token:       token,
		ProviderUID: fmt.Sprintf("%d", uid),
		ExpiresAt:   expires,
		Extra:       map[string]string{"app_id": a.appID, "uid": fmt.Sprintf("%d", uid)},
	}, nil
}

func (a *AgoraAdapter) EndRoom(ctx context.Context, roomID string) error {
	return nil
}
