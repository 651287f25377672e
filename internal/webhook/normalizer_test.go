package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"bookworm/pkg/domain"
	"bookworm/pkg/store"
)

type closerCall struct {
	kind   string
	vendor domain.VoipProvider
	room   string
	uid    string
}

type recordingCloser struct {
	calls []closerCall
	fail  error
}

func (r *recordingCloser) EndByRoom(_ context.Context, vendor domain.VoipProvider, roomID string) (bool, error) {
	if r.fail != nil {
		return false, r.fail
	}
	r.calls = append(r.calls, closerCall{kind: "end", vendor: vendor, room: roomID})
	return true, nil
}

func (r *recordingCloser) ParticipantLeftByRoom(_ context.Context, vendor domain.VoipProvider, roomID, uid string) (bool, error) {
	if r.fail != nil {
		return false, r.fail
	}
	r.calls = append(r.calls, closerCall{kind: "left", vendor: vendor, room: roomID, uid: uid})
	return true, nil
}

func newNormalizer(t *testing.T, closer *recordingCloser) (*Normalizer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	n := NewNormalizer(st, closer, Secrets{
		Daily:   "daily-secret",
		LiveKit: "lk-secret",
		Agora:   "agora-token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return n, st
}

func dailySign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDailyRoomEnded(t *testing.T) {
	closer := &recordingCloser{}
	n, st := newNormalizer(t, closer)

	body := []byte(`{"id":"evt-1","action":"meeting.ended","room":{"name":"bookworm-s1"}}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", "sha256="+dailySign("daily-secret", body))

	res, err := n.Handle(context.Background(), "daily", h, body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.OK || res.Deduplicated {
		t.Fatalf("result = %+v", res)
	}
	if len(closer.calls) != 1 || closer.calls[0].kind != "end" || closer.calls[0].room != "bookworm-s1" {
		t.Fatalf("calls = %+v", closer.calls)
	}
	log, ok, err := st.GetWebhookLog(domain.ProviderDaily, "evt-1")
	if err != nil || !ok {
		t.Fatalf("GetWebhookLog: %v ok=%v", err, ok)
	}
	if log.Status != domain.WebhookProcessed || log.ProcessedAt == nil {
		t.Fatalf("log = %+v", log)
	}
}

func TestDailyBadSignature(t *testing.T) {
	n, _ := newNormalizer(t, &recordingCloser{})
	body := []byte(`{"id":"evt-1","action":"meeting.ended"}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", dailySign("wrong-secret", body))
	if _, err := n.Handle(context.Background(), "daily", h, body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestDailySignatureWithoutPrefix(t *testing.T) {
	n, _ := newNormalizer(t, &recordingCloser{})
	body := []byte(`{"id":"evt-2","action":"other"}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", dailySign("daily-secret", body))
	if _, err := n.Handle(context.Background(), "daily", h, body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestDeduplicatedReplay(t *testing.T) {
	closer := &recordingCloser{}
	n, _ := newNormalizer(t, closer)
	body := []byte(`{"id":"evt-1","action":"meeting.ended","room":{"name":"r1"}}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", dailySign("daily-secret", body))

	if _, err := n.Handle(context.Background(), "daily", h, body); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := n.Handle(context.Background(), "daily", h, body)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !res.OK || !res.Deduplicated {
		t.Fatalf("result = %+v, want deduplicated", res)
	}
	if len(closer.calls) != 1 {
		t.Fatalf("side effects = %d, want 1", len(closer.calls))
	}
}

func TestFailedSideEffectStillAcknowledged(t *testing.T) {
	closer := &recordingCloser{fail: errors.New("db down")}
	n, st := newNormalizer(t, closer)
	body := []byte(`{"id":"evt-9","action":"meeting.ended","room":{"name":"r1"}}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", dailySign("daily-secret", body))

	res, err := n.Handle(context.Background(), "daily", h, body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.OK {
		t.Fatalf("result = %+v, want ok despite failure", res)
	}
	log, ok, err := st.GetWebhookLog(domain.ProviderDaily, "evt-9")
	if err != nil || !ok {
		t.Fatalf("GetWebhookLog: %v ok=%v", err, ok)
	}
	if log.Status != domain.WebhookFailed || log.Error != "db down" {
		t.Fatalf("log = %+v", log)
	}

	// a FAILED row does not short-circuit the retry
	closer.fail = nil
	if _, err := n.Handle(context.Background(), "daily", h, body); err != nil {
		t.Fatalf("retry: %v", err)
	}
	log, _, _ = st.GetWebhookLog(domain.ProviderDaily, "evt-9")
	if log.Status != domain.WebhookProcessed {
		t.Fatalf("status after retry = %s", log.Status)
	}
}

func TestLiveKitBearerAndParticipantLeft(t *testing.T) {
	closer := &recordingCloser{}
	n, _ := newNormalizer(t, closer)
	body := []byte(`{"id":"lk-1","event":"participant_left","room":{"name":"bookworm-s1"},"participant":{"identity":"u7"}}`)

	h := http.Header{}
	h.Set("Authorization", "Bearer wrong")
	if _, err := n.Handle(context.Background(), "livekit", h, body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}

	h.Set("Authorization", "Bearer lk-secret")
	if _, err := n.Handle(context.Background(), "livekit", h, body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(closer.calls) != 1 || closer.calls[0].kind != "left" || closer.calls[0].uid != "u7" {
		t.Fatalf("calls = %+v", closer.calls)
	}
}

func TestAgoraNumericEventCodes(t *testing.T) {
	closer := &recordingCloser{}
	n, _ := newNormalizer(t, closer)
	h := http.Header{}
	h.Set("X-Agora-Token", "agora-token")

	ended := []byte(`{"noticeId":"n1","eventType":101,"cname":"bookworm-s1","uid":12345}`)
	if _, err := n.Handle(context.Background(), "agora", h, ended); err != nil {
		t.Fatalf("Handle ended: %v", err)
	}
	left := []byte(`{"noticeId":"n2","eventType":103,"cname":"bookworm-s1","uid":12345}`)
	if _, err := n.Handle(context.Background(), "agora", h, left); err != nil {
		t.Fatalf("Handle left: %v", err)
	}
	if len(closer.calls) != 2 {
		t.Fatalf("calls = %+v", closer.calls)
	}
	if closer.calls[0].kind != "end" || closer.calls[1].kind != "left" || closer.calls[1].uid != "12345" {
		t.Fatalf("calls = %+v", closer.calls)
	}
}

func TestTwilioFormPayload(t *testing.T) {
	closer := &recordingCloser{}
	n, _ := newNormalizer(t, closer)

	form := url.Values{}
	form.Set("StatusCallbackEvent", "room-ended")
	form.Set("RoomSid", "RM1")
	body := []byte(form.Encode())

	h := http.Header{}
	if _, err := n.Handle(context.Background(), "twilio", h, body); !errors.Is(err, ErrBadSignature) {
		t.Fatal("missing signature header must be rejected")
	}

	h.Set("X-Twilio-Signature", "present")
	res, err := n.Handle(context.Background(), "twilio", h, body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if len(closer.calls) != 1 || closer.calls[0].room != "RM1" {
		t.Fatalf("calls = %+v", closer.calls)
	}
}

func TestUnknownProvider(t *testing.T) {
	n, _ := newNormalizer(t, &recordingCloser{})
	if _, err := n.Handle(context.Background(), "stripe", http.Header{}, nil); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestUnrecognizedEventIsLoggedNotFailed(t *testing.T) {
	closer := &recordingCloser{}
	n, st := newNormalizer(t, closer)
	body := []byte(`{"id":"evt-5","action":"recording.started","room":{"name":"r1"}}`)
	h := http.Header{}
	h.Set("X-Daily-Signature", dailySign("daily-secret", body))

	res, err := n.Handle(context.Background(), "daily", h, body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if len(closer.calls) != 0 {
		t.Fatalf("calls = %+v, want none", closer.calls)
	}
	log, ok, _ := st.GetWebhookLog(domain.ProviderDaily, "evt-5")
	if !ok || log.Status != domain.WebhookProcessed {
		t.Fatalf("log = %+v", log)
	}
}
