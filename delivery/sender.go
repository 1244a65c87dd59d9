package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/ratelimit"
	"github.com/goliatone/go-notify/transport"
	"github.com/google/uuid"
)

const (
	DetailRateLimited = "token rate limited"
	DetailThrottled   = "token throttled"

	rateLimitProvider  = "push"
	maxDetailRunes     = 512
	defaultSendTimeout = 10 * time.Second
)

type pushRequest struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

type pushResponse struct {
	Result struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result"`
}

type Config struct {
	Store            core.CredentialStore
	Transport        core.TransportAdapter
	DefaultTargetURL string
	Timeout          time.Duration

	// RateLimit is optional. Without it every call with a credential makes
	// exactly one POST.
	RateLimit      core.RateLimitPolicy
	Recorder       core.DeliveryRecorder
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
	NewID          func() string
	Now            func() time.Time
}

// Sender delivers one notification per call to the push endpoint stored in the
// recipient's credential. Every failure is reported as an outcome value.
type Sender struct {
	store            core.CredentialStore
	transport        core.TransportAdapter
	defaultTargetURL string
	timeout          time.Duration
	rateLimit        core.RateLimitPolicy
	recorder         core.DeliveryRecorder
	logger           core.Logger
	metrics          core.MetricsRecorder
	newID            func() string
	now              func() time.Time
}

func NewSender(cfg Config) *Sender {
	_, logger := glog.Resolve("notify.delivery", cfg.LoggerProvider, cfg.Logger)
	adapter := cfg.Transport
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sender{
		store:            cfg.Store,
		transport:        adapter,
		defaultTargetURL: strings.TrimSpace(cfg.DefaultTargetURL),
		timeout:          timeout,
		rateLimit:        cfg.RateLimit,
		recorder:         cfg.Recorder,
		logger:           glog.Ensure(logger),
		metrics:          metrics,
		newID:            newID,
		now:              now,
	}
}

func (s *Sender) Send(ctx context.Context, key core.RecipientKey, notification core.Notification) core.DeliveryOutcome {
	startedAt := time.Now()
	notificationID := s.newID()
	notification.TargetURL = s.resolveTarget(notification.TargetURL)
	outcome := s.send(ctx, key, notification, notificationID)
	outcome.NotificationID = notificationID

	tags := map[string]string{"status": string(outcome.Status)}
	s.metrics.IncCounter(ctx, core.MetricDeliveryTotal, 1, tags)
	s.metrics.ObserveHistogram(ctx, "notify.delivery.duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)
	s.log(ctx, key, outcome)
	s.record(ctx, key, notification, outcome)
	return outcome
}

func (s *Sender) send(ctx context.Context, key core.RecipientKey, notification core.Notification, notificationID string) core.DeliveryOutcome {
	if s.store == nil {
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: "credential store is not configured"}
	}
	details, found, err := s.store.Get(ctx, key)
	if err != nil {
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: "credential lookup failed: " + err.Error()}
	}
	if !found {
		return core.DeliveryOutcome{Status: core.DeliveryStatusNoToken}
	}

	limitKey := core.RateLimitKey{
		ProviderID: rateLimitProvider,
		ScopeType:  "app",
		ScopeID:    strconv.FormatInt(key.AppFID, 10),
		BucketKey:  TokenBucket(details.Token),
	}
	if s.rateLimit != nil {
		if err := s.rateLimit.BeforeCall(ctx, limitKey); err != nil {
			if ratelimit.IsThrottled(err) {
				return core.DeliveryOutcome{Status: core.DeliveryStatusRateLimit, Detail: DetailThrottled}
			}
			s.logger.Warn("rate limit state unavailable", "fid", key.FID, "app_fid", key.AppFID, "error", err.Error())
		}
	}

	req, err := transport.JSONRequest(http.MethodPost, details.URL, pushRequest{
		NotificationID: notificationID,
		Title:          notification.Title,
		Body:           notification.Body,
		TargetURL:      notification.TargetURL,
		Tokens:         []string{details.Token},
	})
	if err != nil {
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: err.Error()}
	}
	req.Timeout = s.timeout

	res, err := s.transport.Do(ctx, req)
	if err != nil {
		detail := err.Error()
		if transport.IsTimeout(err) {
			detail = "push request timed out"
		}
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: detail}
	}
	if res.StatusCode != http.StatusOK {
		s.afterCall(ctx, limitKey, res, false)
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: truncateDetail(string(res.Body))}
	}

	var parsed pushResponse
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return core.DeliveryOutcome{Status: core.DeliveryStatusError, Detail: "malformed push response: " + err.Error()}
	}
	if slices.Contains(parsed.Result.RateLimitedTokens, details.Token) {
		s.afterCall(ctx, limitKey, res, true)
		return core.DeliveryOutcome{Status: core.DeliveryStatusRateLimit, Detail: DetailRateLimited}
	}
	s.afterCall(ctx, limitKey, res, false)
	if slices.Contains(parsed.Result.InvalidTokens, details.Token) {
		s.logger.Warn("push endpoint reported token invalid", "fid", key.FID, "app_fid", key.AppFID, "notification_id", notificationID)
	}
	return core.DeliveryOutcome{Status: core.DeliveryStatusSuccess}
}

func (s *Sender) resolveTarget(target string) string {
	if target = strings.TrimSpace(target); target != "" {
		return target
	}
	return s.defaultTargetURL
}

// TokenBucket is the rate-limit bucket for token: a hex SHA-256 digest, so
// throttle state never holds the token itself.
func TokenBucket(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Sender) afterCall(ctx context.Context, key core.RateLimitKey, res core.TransportResponse, limited bool) {
	if s.rateLimit == nil {
		return
	}
	meta := core.ProviderResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Metadata:   map[string]any{ratelimit.MetadataRateLimited: limited},
	}
	if err := s.rateLimit.AfterCall(ctx, key, meta); err != nil {
		s.logger.Warn("rate limit state update failed", "error", err.Error())
	}
}

func (s *Sender) log(ctx context.Context, key core.RecipientKey, outcome core.DeliveryOutcome) {
	logger := s.logger.WithContext(ctx)
	args := []any{
		"fid", key.FID,
		"app_fid", key.AppFID,
		"status", string(outcome.Status),
		"notification_id", outcome.NotificationID,
	}
	switch outcome.Status {
	case core.DeliveryStatusSuccess:
		logger.Info("notification delivered", args...)
	case core.DeliveryStatusNoToken:
		logger.Info("notification skipped, no token", args...)
	case core.DeliveryStatusRateLimit:
		logger.Warn("notification rate limited", append(args, "detail", outcome.Detail)...)
	default:
		logger.Error("notification delivery failed", append(args, "detail", outcome.Detail)...)
	}
}

func (s *Sender) record(ctx context.Context, key core.RecipientKey, notification core.Notification, outcome core.DeliveryOutcome) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, core.DeliveryRecord{
		NotificationID: outcome.NotificationID,
		Key:            key,
		Status:         outcome.Status,
		Detail:         outcome.Detail,
		Title:          notification.Title,
		TargetURL:      notification.TargetURL,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("delivery record failed", "notification_id", outcome.NotificationID, "error", err.Error())
	}
}

func truncateDetail(detail string) string {
	detail = strings.TrimSpace(detail)
	if utf8.RuneCountInString(detail) <= maxDetailRunes {
		return detail
	}
	return string([]rune(detail)[:maxDetailRunes])
}

var _ core.NotificationSender = (*Sender)(nil)
