// Package webhook ingests VOIP vendor callbacks: verifies each vendor's
// signature scheme, maps payloads to one canonical event shape, deduplicates
// replays through the webhook ledger and applies call-session side effects.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookworm/internal/util"
	"bookworm/pkg/domain"
	"bookworm/pkg/store"
)

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrBadSignature    = errors.New("invalid webhook signature")
	ErrBadPayload      = errors.New("invalid webhook payload")
)

// Secrets holds the per-vendor verification material.
type Secrets struct {
	Daily   string
	LiveKit string
	Agora   string
}

// Event is the canonical shape every vendor payload collapses into.
type Event struct {
	Source         domain.VoipProvider
	ExternalID     string
	EventType      string
	RoomID         string
	ParticipantUID string
}

// Result is the acknowledgment sent back to the vendor. It never exposes
// internal failures; a FAILED ledger row still acknowledges with ok.
type Result struct {
	OK           bool `json:"ok"`
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// SessionCloser is the slice of the call manager the normalizer drives.
type SessionCloser interface {
	EndByRoom(ctx context.Context, vendor domain.VoipProvider, roomID string) (bool, error)
	ParticipantLeftByRoom(ctx context.Context, vendor domain.VoipProvider, roomID, providerUID string) (bool, error)
}

// Normalizer is the single ingestion point for all vendor webhooks.
type Normalizer struct {
	store   store.Store
	calls   SessionCloser
	secrets Secrets
	logger  *slog.Logger
	now     func() time.Time
}

func NewNormalizer(st store.Store, calls SessionCloser, secrets Secrets, logger *slog.Logger) *Normalizer {
	return &Normalizer{store: st, calls: calls, secrets: secrets, logger: logger, now: time.Now}
}

// Handle processes one inbound delivery. providerKey is the URL path
// segment (daily, livekit, agora, twilio). The error return distinguishes
// reject-with-4xx cases; once the event reaches the ledger the result is
// always an acknowledgment.
func (n *Normalizer) Handle(ctx context.Context, providerKey string, header http.Header, rawBody []byte) (Result, error) {
	source, ok := sourceFromKey(providerKey)
	if !ok {
		return Result{}, ErrUnknownProvider
	}
	if !n.verify(source, header, rawBody) {
		return Result{}, ErrBadSignature
	}

	event, err := n.normalize(source, rawBody)
	if err != nil {
		return Result{}, err
	}

	// Replays of a processed event must not reapply side effects.
	if existing, found, err := n.store.GetWebhookLog(source, event.ExternalID); err != nil {
		return Result{}, fmt.Errorf("load ledger: %w", err)
	} else if found && existing.Status == domain.WebhookProcessed {
		return Result{OK: true, Deduplicated: true}, nil
	}

	now := n.now()
	log, err := n.store.UpsertWebhookLog(domain.WebhookLog{
		ID:         util.NewID(),
		Source:     source,
		ExternalID: event.ExternalID,
		EventType:  event.EventType,
		Payload:    rawBody,
		Status:     domain.WebhookPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("upsert ledger: %w", err)
	}

	if err := n.dispatch(ctx, event); err != nil {
		// Acknowledge anyway; the ledger row holds the failure for manual
		// reprocessing instead of triggering a vendor retry storm.
		n.logger.Error("webhook side effect failed",
			"source", source, "external_id", event.ExternalID, "event_type", event.EventType, "error", err)
		if serr := n.store.SetWebhookLogStatus(log.ID, domain.WebhookFailed, err.Error(), nil); serr != nil {
			n.logger.Error("mark webhook failed", "log_id", log.ID, "error", serr)
		}
		return Result{OK: true}, nil
	}

	processed := n.now()
	if err := n.store.SetWebhookLogStatus(log.ID, domain.WebhookProcessed, "", &processed); err != nil {
		n.logger.Error("mark webhook processed", "log_id", log.ID, "error", err)
	}
	return Result{OK: true}, nil
}

func sourceFromKey(key string) (domain.VoipProvider, bool) {
	switch strings.ToLower(key) {
	case "daily":
		return domain.ProviderDaily, true
	case "livekit":
		return domain.ProviderLiveKit, true
	case "agora":
		return domain.ProviderAgora, true
	case "twilio":
		return domain.ProviderTwilio, true
	}
	return "", false
}

func (n *Normalizer) verify(source domain.VoipProvider, header http.Header, rawBody []byte) bool {
	switch source {
	case domain.ProviderDaily:
		return verifyDailySignature(n.secrets.Daily, header.Get("X-Daily-Signature"), rawBody)
	case domain.ProviderLiveKit:
		if n.secrets.LiveKit == "" {
			return false
		}
		want := "Bearer " + n.secrets.LiveKit
		return subtle.ConstantTimeCompare([]byte(header.Get("Authorization")), []byte(want)) == 1
	case domain.ProviderAgora:
		if n.secrets.Agora == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(header.Get("X-Agora-Token")), []byte(n.secrets.Agora)) == 1
	case domain.ProviderTwilio:
		// Twilio signs over the full callback URL plus sorted params; without
		// the public URL we only require the header to be present.
		return header.Get("X-Twilio-Signature") != ""
	}
	return false
}

// verifyDailySignature checks the HMAC-SHA256 hex digest of the raw body.
// The header value may carry a "sha256=" prefix.
func verifyDailySignature(secret, sig string, rawBody []byte) bool {
	if secret == "" || sig == "" {
		return false
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(got, mac.Sum(nil))
}

func (n *Normalizer) normalize(source domain.VoipProvider, rawBody []byte) (Event, error) {
	if source == domain.ProviderTwilio {
		return normalizeTwilio(rawBody)
	}
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	switch source {
	case domain.ProviderDaily:
		return normalizeDaily(payload), nil
	case domain.ProviderLiveKit:
		return n.normalizeLiveKit(payload), nil
	case domain.ProviderAgora:
		return normalizeAgora(payload), nil
	}
	return Event{}, ErrUnknownProvider
}

func normalizeDaily(payload map[string]any) Event {
	return Event{
		Source:         domain.ProviderDaily,
		ExternalID:     asString(payload["id"]),
		EventType:      asString(payload["action"]),
		RoomID:         asString(nested(payload, "room", "name")),
		ParticipantUID: asString(nested(payload, "participant", "user_id")),
	}
}

// normalizeLiveKit prefers the delivery id for dedupe; older payloads
// without one fall back to a key derived from the event and room.
func (n *Normalizer) normalizeLiveKit(payload map[string]any) Event {
	room := asString(nested(payload, "room", "name"))
	externalID := asString(payload["id"])
	if externalID == "" {
		externalID = fmt.Sprintf("%s-%s-%d", asString(payload["event"]), room, n.now().UnixMilli())
	}
	return Event{
		Source:         domain.ProviderLiveKit,
		ExternalID:     externalID,
		EventType:      asString(payload["event"]),
		RoomID:         room,
		ParticipantUID: asString(nested(payload, "participant", "identity")),
	}
}

func normalizeAgora(payload map[string]any) Event {
	return Event{
		Source:         domain.ProviderAgora,
		ExternalID:     asString(payload["noticeId"]),
		EventType:      asString(payload["eventType"]),
		RoomID:         asString(payload["cname"]),
		ParticipantUID: asString(payload["uid"]),
	}
}

func normalizeTwilio(rawBody []byte) (Event, error) {
	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	eventType := form.Get("StatusCallbackEvent")
	roomSID := form.Get("RoomSid")
	// Twilio status callbacks carry no per-delivery id, so the dedupe key is
	// event type plus room: repeated participant-disconnected callbacks for
	// one room collapse to a single processed event. ParticipantSid is also
	// Twilio's own sid, not the identity embedded in the access token, so
	// the per-participant close rarely finds a row; room-ended is what
	// actually closes Twilio sessions.
	return Event{
		Source:         domain.ProviderTwilio,
		ExternalID:     eventType + "-" + roomSID,
		EventType:      eventType,
		RoomID:         roomSID,
		ParticipantUID: form.Get("ParticipantSid"),
	}, nil
}

// dispatch applies side effects for recognized event types. Vendors spell
// lifecycle events differently: Daily "meeting.ended"/"participant.left" pass
// through the room/participant hooks by substring, LiveKit uses
// "room_finished"/"participant_left", Twilio "room-ended"/
// "participant-disconnected" and Agora numeric codes 101/103. Unrecognized
// types are logged and acknowledged without effect. Out-of-order deliveries
// are harmless: both hooks no-op when no active session matches.
func (n *Normalizer) dispatch(ctx context.Context, event Event) error {
	typ := strings.ToLower(event.EventType)
	compact := strings.NewReplacer("_", "", "-", "", ".", "").Replace(typ)
	switch {
	case strings.Contains(compact, "roomended"), strings.Contains(compact, "roomfinished"),
		strings.Contains(compact, "meetingended"), typ == "101":
		if event.RoomID == "" {
			return nil
		}
		handled, err := n.calls.EndByRoom(ctx, event.Source, event.RoomID)
		if err != nil {
			return err
		}
		if !handled {
			n.logger.Info("room-ended webhook for inactive room", "source", event.Source, "room", event.RoomID)
		}
	case strings.Contains(compact, "participantleft"), strings.Contains(compact, "participantdisconnected"),
		typ == "103":
		if event.RoomID == "" || event.ParticipantUID == "" {
			return nil
		}
		if _, err := n.calls.ParticipantLeftByRoom(ctx, event.Source, event.RoomID, event.ParticipantUID); err != nil {
			return err
		}
	default:
		n.logger.Info("unhandled webhook event",
			"source", event.Source, "event_type", event.EventType, "external_id", event.ExternalID)
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func nested(payload map[string]any, keys ...string) any {
	var cur any = payload
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}
