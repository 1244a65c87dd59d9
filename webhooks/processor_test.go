package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-notify/core"
)

type stubVerifier struct {
	event core.Event
	err   error
}

func (s stubVerifier) Verify(context.Context, []byte) (core.Event, error) {
	return s.event, s.err
}

type stubEventHandler struct {
	err    error
	events []core.Event
}

func (h *stubEventHandler) HandleEvent(_ context.Context, event core.Event) error {
	h.events = append(h.events, event)
	return h.err
}

func TestProcessor_DispatchesVerifiedEvent(t *testing.T) {
	event := core.RemovedEvent{Key: core.RecipientKey{FID: 1, AppFID: 2}}
	handler := &stubEventHandler{}
	processor := NewProcessor(stubVerifier{event: event}, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(handler.events) != 1 || handler.events[0] != event {
		t.Fatalf("expected handler to receive event, got %+v", handler.events)
	}
	if result.Metadata["event"] != "removed" {
		t.Fatalf("expected event metadata, got %+v", result.Metadata)
	}
}

func TestProcessor_RejectsInvalidSignature(t *testing.T) {
	handler := &stubEventHandler{}
	processor := NewProcessor(stubVerifier{err: errors.New("signature mismatch")}, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(`{}`)})
	if err == nil {
		t.Fatalf("expected verifier error")
	}
	if !core.IsAuthentication(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status code, got %d", result.StatusCode)
	}
	if len(handler.events) != 0 {
		t.Fatalf("expected handler not to run when verification fails")
	}
}

func TestProcessor_RejectsOversizedBody(t *testing.T) {
	handler := &stubEventHandler{}
	processor := NewProcessor(stubVerifier{event: core.RemovedEvent{}}, handler)
	processor.MaxBodyBytes = 8

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(strings.Repeat("x", 9))})
	if !core.IsAuthentication(err) || result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for oversized body, got %d %v", result.StatusCode, err)
	}
	if len(handler.events) != 0 {
		t.Fatalf("expected handler not to run")
	}
}

func TestProcessor_DispatchFailureIsServerError(t *testing.T) {
	handler := &stubEventHandler{err: errors.New("store down")}
	processor := NewProcessor(stubVerifier{event: core.RemovedEvent{Key: core.RecipientKey{FID: 1, AppFID: 2}}}, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(`{}`)})
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if result.StatusCode != http.StatusInternalServerError || result.Accepted {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestProcessor_EndToEndWithJFS(t *testing.T) {
	key := newTestKey(t)
	handler := &stubEventHandler{}
	processor := NewProcessor(NewJFSVerifier(&stubAppKeys{result: AppKeyResult{Valid: true, AppFID: 2}}), handler)

	body := signedBody(t, key, 1, "notifications_disabled", nil)
	result, err := processor.Process(context.Background(), core.InboundRequest{Body: body})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected accepted result")
	}
	if _, ok := handler.events[0].(core.NotificationsDisabledEvent); !ok {
		t.Fatalf("expected disabled event, got %T", handler.events[0])
	}
}
