package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookworm/pkg/domain"
)

const defaultDailyBaseURL = "https://api.daily.co/v1"

// DailyAdapter drives the Daily.co REST API.
type DailyAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDailyAdapter returns nil when no API key is configured.
func NewDailyAdapter(apiKey, baseURL string) Adapter {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultDailyBaseURL
	}
	return &DailyAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *DailyAdapter) Name() domain.VoipProvider { return domain.ProviderDaily }

type dailyRoomRequest struct {
	Name       string              `json:"name"`
	Privacy    string              `json:"privacy"`
	Properties dailyRoomProperties `json:"properties"`
}

type dailyRoomProperties struct {
	MaxParticipants int   `json:"max_participants,omitempty"`
	Exp             int64 `json:"exp,omitempty"`
	EjectAtRoomExp  bool  `json:"eject_at_room_exp,omitempty"`
}

type dailyRoomResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (a *DailyAdapter) CreateRoom(ctx context.Context, spaceID string, maxParticipants int) (RoomInfo, error) {
	req := dailyRoomRequest{
		Name:    roomName(spaceID),
		Privacy: "private",
		Properties: dailyRoomProperties{
			MaxParticipants: maxParticipants,
			Exp:             time.Now().Add(24 * time.Hour).Unix(),
			EjectAtRoomExp:  true,
		},
	}
	var resp dailyRoomResponse
	if err := a.doJSON(ctx, http.MethodPost, "/rooms", req, &resp); err != nil {
		return RoomInfo{}, fmt.Errorf("daily create room: %w", err)
	}
	return RoomInfo{
		RoomID: resp.Name,
		Meta:   map[string]string{"url": resp.URL, "daily_id": resp.ID},
	}, nil
}

type dailyTokenRequest struct {
	Properties dailyTokenProperties `json:"properties"`
}

type dailyTokenProperties struct {
	RoomName string `json:"room_name"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

type dailyTokenResponse struct {
	Token string `json:"token"`
}

func (a *DailyAdapter) IssueToken(ctx context.Context, req TokenRequest) (Credential, error) {
	// Daily identifies participants by the user_id we mint here; webhook
	// events echo it back, so it must be unique per join.
	uid := uuid.NewString()
	expires := time.Now().Add(tokenTTL(req))
	body := dailyTokenRequest{
		Properties: dailyTokenProperties{
			RoomName: req.Room,
			UserID:   uid,
			UserName: req.UserName,
			IsOwner:  req.Role == domain.CallRoleHost,
			Exp:      expires.Unix(),
		},
	}
	var resp dailyTokenResponse
	if err := a.doJSON(ctx, http.MethodPost, "/meeting-tokens", body, &resp); err != nil {
		return Credential{}, fmt.Errorf("daily issue token: %w", err)
	}
	return Credential{Token: resp.Token, ProviderUID: uid, ExpiresAt: expires}, nil
}

func (a *DailyAdapter) EndRoom(ctx context.Context, roomID string) error {
	if err := a.doJSON(ctx, http.MethodDelete, "/rooms/"+roomID, nil, nil); err != nil {
		return fmt.Errorf("daily end room: %w", err)
	}
	return nil
}

func (a *DailyAdapter) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Info string `json:"info"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Info != "" {
			return fmt.Errorf("daily api error: %s", errResp.Info)
		}
		return fmt.Errorf("daily api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
