package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"bookworm/pkg/domain"
)

func TestRecorderKeepsPublishedEvents(t *testing.T) {
	rec := &Recorder{}
	n := domain.Notification{ID: "n-1", UserID: "u-1", Type: domain.NotifyMatchRequest}
	if err := rec.Publish(context.Background(), n); err != nil {
		t.Fatalf("publish: %v", err)
	}
	events := rec.Published()
	if len(events) != 1 || events[0].ID != "n-1" {
		t.Fatalf("recorded events = %+v, want one event for n-1", events)
	}
}

func TestLogPublishError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	LogPublishError(nil, "u-1", domain.NotifyMatchAccepted)
	if buf.Len() != 0 {
		t.Fatalf("nil error produced a log line: %s", buf.String())
	}

	LogPublishError(errors.New("broker down"), "u-1", domain.NotifyMatchAccepted)
	if !strings.Contains(buf.String(), "notification publish failed") {
		t.Fatalf("publish failure was not logged: %s", buf.String())
	}
}
