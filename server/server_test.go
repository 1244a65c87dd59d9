package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/delivery"
	"github.com/goliatone/go-notify/store/memory"
	"github.com/goliatone/go-notify/transport"
	"github.com/goliatone/go-notify/webhooks"
	prom "github.com/prometheus/client_golang/prometheus"
)

const testAppURL = "https://tickbase.example"

type stubAppKeys struct {
	appFID int64
}

func (s stubAppKeys) VerifyAppKey(context.Context, int64, string) (webhooks.AppKeyResult, error) {
	return webhooks.AppKeyResult{Valid: true, AppFID: s.appFID}, nil
}

type pushRecorder struct {
	mu       sync.Mutex
	status   int
	response string
	tokens   [][]string
	urls     []string
}

func (p *pushRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

type fixture struct {
	handler http.Handler
	store   *memory.CredentialStore
	push    *pushRecorder
	pushURL string
	key     ed25519.PrivateKey
}

func newFixture(t *testing.T, pushStatus int, pushResponse string) *fixture {
	t.Helper()
	push := &pushRecorder{status: pushStatus, response: pushResponse}
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tokens []string `json:"tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		push.mu.Lock()
		push.tokens = append(push.tokens, body.Tokens)
		push.urls = append(push.urls, r.URL.Path)
		push.mu.Unlock()
		w.WriteHeader(push.status)
		_, _ = w.Write([]byte(push.response))
	}))
	t.Cleanup(pushServer.Close)

	store := memory.NewCredentialStore()
	sender := delivery.NewSender(delivery.Config{
		Store:            store,
		Transport:        transport.NewRESTAdapter(pushServer.Client()),
		DefaultTargetURL: testAppURL,
	})
	svc, err := core.NewService(
		core.Config{AppURL: testAppURL},
		core.WithCredentialStore(store),
		core.WithNotificationSender(sender),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	processor := webhooks.NewProcessor(webhooks.NewJFSVerifier(stubAppKeys{appFID: 2}), svc)

	registry := prom.NewRegistry()
	srv, err := New(Config{
		Webhooks:       processor,
		Notifications:  svc,
		AllowedOrigins: []string{testAppURL},
		Registerer:     registry,
		Gatherer:       registry,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	return &fixture{
		handler: srv.Handler(),
		store:   store,
		push:    push,
		pushURL: pushServer.URL,
		key:     ed25519.NewKeyFromSeed(seed),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) webhook(t *testing.T, fid int64, event string, details *core.NotificationDetails) *httptest.ResponseRecorder {
	t.Helper()
	envelope, err := webhooks.SignEnvelope(fid, f.key, event, details)
	if err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	raw, _ := json.Marshal(envelope)
	return f.do(t, http.MethodPost, "/api/webhook", string(raw))
}

func (f *fixture) seed(t *testing.T, key core.RecipientKey, token string) {
	t.Helper()
	if err := f.store.Put(context.Background(), key, core.NotificationDetails{URL: f.pushURL + "/x", Token: token}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func assertBody(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != body {
		t.Fatalf("expected body %s, got %s", body, got)
	}
}

const pushOK = `{"result":{"successfulTokens":["abc"],"invalidTokens":[],"rateLimitedTokens":[]}}`

func TestWebhook_AddedWithDetailsStoresAndWelcomes(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)

	rec := f.webhook(t, 1, "miniapp_added", &core.NotificationDetails{URL: f.pushURL + "/x", Token: "abc"})
	assertBody(t, rec, http.StatusOK, `{"success":true}`)

	details, found, err := f.store.Get(context.Background(), core.RecipientKey{FID: 1, AppFID: 2})
	if err != nil || !found || details.Token != "abc" {
		t.Fatalf("expected stored credential, got %#v found=%v err=%v", details, found, err)
	}
	if f.push.count() != 1 || f.push.urls[0] != "/x" || f.push.tokens[0][0] != "abc" {
		t.Fatalf("expected welcome push to /x with [abc], got %v %v", f.push.urls, f.push.tokens)
	}
}

func TestWebhook_DisabledForAbsentPairSucceeds(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)

	rec := f.webhook(t, 5, "notifications_disabled", nil)
	assertBody(t, rec, http.StatusOK, `{"success":true}`)
	if f.store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestWebhook_InvalidSignatureIsUnauthorized(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)
	f.seed(t, core.RecipientKey{FID: 1, AppFID: 2}, "abc")

	for _, body := range []string{"not json", `{"header":"x","payload":"y","signature":"z"}`} {
		rec := f.do(t, http.MethodPost, "/api/webhook", body)
		assertBody(t, rec, http.StatusUnauthorized, `{"error":"Invalid webhook signature"}`)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected store to be untouched")
	}
}

type stubProcessor struct {
	err   error
	panic bool
}

func (p stubProcessor) Process(context.Context, core.InboundRequest) (core.InboundResult, error) {
	if p.panic {
		panic("boom")
	}
	return core.InboundResult{StatusCode: http.StatusInternalServerError}, p.err
}

type stubNotifications struct {
	broadcastErr error
}

func (stubNotifications) SendNotification(context.Context, core.SendRequest) (core.DeliveryOutcome, error) {
	return core.DeliveryOutcome{Status: core.DeliveryStatusSuccess}, nil
}

func (s stubNotifications) Broadcast(context.Context, core.BroadcastRequest) (core.BroadcastSummary, error) {
	return core.BroadcastSummary{}, s.broadcastErr
}

func newStubServer(t *testing.T, processor InboundProcessor, notifications NotificationService) http.Handler {
	t.Helper()
	registry := prom.NewRegistry()
	srv, err := New(Config{Webhooks: processor, Notifications: notifications, Registerer: registry, Gatherer: registry})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Handler()
}

func TestWebhook_DispatchFailureAndPanicAreInternalErrors(t *testing.T) {
	cases := map[string]stubProcessor{
		"dispatch error": {err: core.WrapOperationError(errors.New("redis down"), "store credential", nil)},
		"panic":          {panic: true},
	}
	for name, processor := range cases {
		t.Run(name, func(t *testing.T) {
			handler := newStubServer(t, processor, stubNotifications{})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{}")))
			assertBody(t, rec, http.StatusInternalServerError, `{"error":"Internal server error"}`)
			if strings.Contains(rec.Body.String(), "redis") {
				t.Fatalf("internal detail leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestSend_ValidationMessages(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)
	f.seed(t, core.RecipientKey{FID: 1, AppFID: 2}, "abc")

	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "title too long", body: `{"fid":1,"appFid":2,"title":"` + strings.Repeat("a", 33) + `","body":"b"}`, want: `{"error":"Title must be 32 characters or less"}`},
		{name: "body too long", body: `{"fid":1,"appFid":2,"title":"t","body":"` + strings.Repeat("b", 129) + `"}`, want: `{"error":"Body must be 128 characters or less"}`},
		{name: "missing fields", body: `{"fid":1,"title":"t"}`, want: `{"error":"Missing required fields: fid, appFid, title, body"}`},
		{name: "foreign target", body: `{"fid":1,"appFid":2,"title":"t","body":"b","targetUrl":"https://evil.example/x"}`, want: `{"error":"Target URL must be on the same origin as the app"}`},
		{name: "malformed json", body: `{"fid":`, want: `{"error":"Invalid request body"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/notifications/send", tc.body)
			assertBody(t, rec, http.StatusBadRequest, tc.want)
		})
	}
	if f.push.count() != 0 {
		t.Fatalf("expected no push for rejected requests, got %d", f.push.count())
	}
}

func TestSend_OutcomeMapping(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		response string
		seed     bool
		want     int
		body     string
	}{
		{name: "success", status: http.StatusOK, response: pushOK, seed: true, want: http.StatusOK, body: `{"success":true,"state":"success"}`},
		{name: "no token", status: http.StatusOK, response: pushOK, want: http.StatusNotFound, body: `{"success":false,"state":"no_token","error":"No notification token for recipient"}`},
		{name: "rate limited", status: http.StatusOK, response: `{"result":{"rateLimitedTokens":["abc"]}}`, seed: true, want: http.StatusTooManyRequests, body: `{"success":false,"state":"rate_limit","error":"Rate limited"}`},
		{name: "push failure", status: http.StatusInternalServerError, response: "boom", seed: true, want: http.StatusBadGateway, body: `{"success":false,"state":"error","error":"Failed to deliver notification"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.status, tc.response)
			if tc.seed {
				f.seed(t, core.RecipientKey{FID: 1, AppFID: 2}, "abc")
			}
			rec := f.do(t, http.MethodPost, "/api/notifications/send", `{"fid":1,"appFid":2,"title":"Reminder","body":"Doors open","targetUrl":"/events/9"}`)
			assertBody(t, rec, tc.want, tc.body)
		})
	}
}

func TestBroadcast_CountsPerStatus(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)
	f.seed(t, core.RecipientKey{FID: 1, AppFID: 2}, "abc")
	f.seed(t, core.RecipientKey{FID: 3, AppFID: 2}, "def")
	f.seed(t, core.RecipientKey{FID: 4, AppFID: 9}, "ghi")

	rec := f.do(t, http.MethodPost, "/api/notifications/broadcast", `{"appFid":2,"title":"t","body":"b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var got broadcastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode broadcast response: %v", err)
	}
	if got.Attempted != 2 || got.AppFID != 2 {
		t.Fatalf("unexpected summary %#v", got)
	}
	if got.Counts[core.DeliveryStatusSuccess] != 2 {
		t.Fatalf("expected two successes, got %#v", got.Counts)
	}
	if f.push.count() != 2 {
		t.Fatalf("expected only app 2 recipients to be pushed, got %d", f.push.count())
	}
}

func TestBroadcast_WithoutListerIsNotImplemented(t *testing.T) {
	handler := newStubServer(t, stubProcessor{}, stubNotifications{broadcastErr: core.NotImplementedError("broadcast requires a credential lister")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notifications/broadcast", strings.NewReader(`{"appFid":2,"title":"t","body":"b"}`)))
	assertBody(t, rec, http.StatusNotImplemented, `{"error":"Broadcast is not supported by the configured store"}`)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	f := newFixture(t, http.StatusOK, pushOK)

	assertBody(t, f.do(t, http.MethodGet, "/healthz", ""), http.StatusOK, `{"status":"ok"}`)

	metrics := f.do(t, http.MethodGet, "/metrics", "")
	raw, _ := io.ReadAll(metrics.Body)
	if metrics.Code != http.StatusOK || !strings.Contains(string(raw), `http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("expected RED metrics for /healthz, got %d:\n%s", metrics.Code, raw)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/notifications/send", nil)
	req.Header.Set("Origin", testAppURL)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testAppURL {
		t.Fatalf("expected CORS allow origin %q, got %q", testAppURL, got)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{Notifications: stubNotifications{}}); err == nil {
		t.Fatalf("expected webhook processor requirement")
	}
	if _, err := New(Config{Webhooks: stubProcessor{}}); err == nil {
		t.Fatalf("expected notification service requirement")
	}
}
