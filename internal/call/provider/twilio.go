package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bookworm/pkg/domain"
)

const defaultTwilioBaseURL = "https://video.twilio.com"

// TwilioAdapter manages rooms over the Video REST API and mints access
// tokens locally from the API key pair.
type TwilioAdapter struct {
	accountSID string
	authToken  string
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
}

// NewTwilioAdapter returns nil unless the account and API key pair are
// fully configured.
func NewTwilioAdapter(accountSID, authToken, apiKey, apiSecret, baseURL string) Adapter {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" ||
		strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioAdapter{
		accountSID: accountSID,
		authToken:  authToken,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *TwilioAdapter) Name() domain.VoipProvider { return domain.ProviderTwilio }

type twilioRoomResponse struct {
	SID        string `json:"sid"`
	UniqueName string `json:"unique_name"`
	Status     string `json:"status"`
}

func (a *TwilioAdapter) CreateRoom(ctx context.Context, spaceID string, maxParticipants int) (RoomInfo, error) {
	form := url.Values{}
	form.Set("UniqueName", roomName(spaceID))
	form.Set("Type", "group")
	form.Set("MaxParticipants", strconv.Itoa(maxParticipants))
	var resp twilioRoomResponse
	if err := a.doForm(ctx, "/v1/Rooms", form, &resp); err != nil {
		return RoomInfo{}, fmt.Errorf("twilio create room: %w", err)
	}
	return RoomInfo{
		RoomID: resp.UniqueName,
		Meta:   map[string]string{"sid": resp.SID},
	}, nil
}

type twilioVideoGrant struct {
	Room string `json:"room"`
}

type twilioGrants struct {
	Identity string           `json:"identity"`
	Video    twilioVideoGrant `json:"video"`
}

type twilioClaims struct {
	jwt.RegisteredClaims
	Grants twilioGrants `json:"grants"`
}

func (a *TwilioAdapter) IssueToken(ctx context.Context, req TokenRequest) (Credential, error) {
	now := time.Now()
	expires := now.Add(tokenTTL(req))
	identity := req.UserID
	claims := twilioClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        a.apiKey + "-" + uuid.NewString(),
			Issuer:    a.apiKey,
			Subject:   a.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Grants: twilioGrants{
			Identity: identity,
			Video:    twilioVideoGrant{Room: req.Room},
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["cty"] = "twilio-fpa;v=1"
	signed, err := tok.SignedString([]byte(a.apiSecret))
	if err != nil {
		return Credential{}, fmt.Errorf("twilio sign token: %w", err)
	}
	return Credential{Token: signed, ProviderUID: identity, ExpiresAt: expires}, nil
}

func (a *TwilioAdapter) EndRoom(ctx context.Context, roomID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	if err := a.doForm(ctx, "/v1/Rooms/"+roomID, form, nil); err != nil {
		return fmt.Errorf("twilio end room: %w", err)
	}
	return nil
}

func (a *TwilioAdapter) doForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.accountSID, a.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Message != "" {
			return fmt.Errorf("twilio api error: %s", errResp.Message)
		}
		return fmt.Errorf("twilio api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
