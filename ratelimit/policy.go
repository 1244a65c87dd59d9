package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notify/core"
)

const (
	// MetadataRateLimited marks a response whose status was 200 but whose
	// result listed the token as rate limited.
	MetadataRateLimited = "rate_limited"

	DefaultWindow = 30 * time.Second
)

type ThrottledError struct {
	ProviderID string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: %q bucket %q throttled for %s",
		strings.TrimSpace(e.ProviderID),
		redactBucket(e.BucketKey),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"provider_id": strings.TrimSpace(e.ProviderID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorRateLimited).
		WithMetadata(metadata)
}

func IsThrottled(err error) bool {
	var throttled ThrottledError
	return errors.As(err, &throttled)
}

// TokenPolicy throttles a delivery bucket, usually one token, after the push
// endpoint reports it as rate limited. Later calls for the bucket fail fast
// until the window elapses. Nothing is retried.
type TokenPolicy struct {
	Store  StateStore
	Now    func() time.Time
	Window time.Duration
}

func NewTokenPolicy(store StateStore, window time.Duration) *TokenPolicy {
	if window <= 0 {
		window = DefaultWindow
	}
	return &TokenPolicy{
		Store:  store,
		Now:    func() time.Time { return time.Now().UTC() },
		Window: window,
	}
}

func (p *TokenPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{ProviderID: state.Key.ProviderID, BucketKey: state.Key.BucketKey, RetryAfter: until.Sub(now)}
	}
	return nil
}

// AfterCall records the push response for key. A throttled response opens a
// window, Retry-After when the endpoint sent one, otherwise the configured
// window. Any other response clears an existing window.
func (p *TokenPolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ProviderResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	throttled := isThrottledResponse(res)
	state, err := p.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		if !throttled {
			return nil
		}
		state = State{Key: key}
	case err != nil:
		return err
	}

	now := p.now()
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.Metadata = mergeMetadata(state.Metadata, res.Metadata)
	state.RetryAfter = nil
	retryAfter, hasRetryAfter := parseRetryAfter(res, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	}

	if !throttled {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}
	state.Attempts++
	delay := p.window()
	if hasRetryAfter {
		delay = retryAfter
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *TokenPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *TokenPolicy) window() time.Duration {
	if p != nil && p.Window > 0 {
		return p.Window
	}
	return DefaultWindow
}

func isThrottledResponse(res core.ProviderResponseMeta) bool {
	if res.StatusCode == http.StatusTooManyRequests {
		return true
	}
	limited, _ := res.Metadata[MetadataRateLimited].(bool)
	return limited
}

// parseRetryAfter accepts a transport supplied duration, delta seconds or an
// HTTP date.
func parseRetryAfter(res core.ProviderResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := headerValue(res.Headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	retryAt, err := http.ParseTime(raw)
	if err != nil || !retryAt.After(now) {
		return 0, false
	}
	return retryAt.Sub(now), true
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// Tokens are opaque and case sensitive; only the descriptive parts of the key
// are folded.
func normalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		ProviderID: strings.TrimSpace(strings.ToLower(key.ProviderID)),
		ScopeType:  strings.TrimSpace(strings.ToLower(key.ScopeType)),
		ScopeID:    strings.TrimSpace(key.ScopeID),
		BucketKey:  strings.TrimSpace(key.BucketKey),
	}
}

func redactBucket(bucket string) string {
	bucket = strings.TrimSpace(bucket)
	if len(bucket) <= 4 {
		return "****"
	}
	return bucket[:4] + "****"
}

var _ core.RateLimitPolicy = (*TokenPolicy)(nil)
