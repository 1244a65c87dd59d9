package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore persists token throttle windows so every instance
// honours a rate limit reported to any of them.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, errRateLimitStoreUnset
	}
	key, err := rateLimitKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	record := &rateLimitStateRecord{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.scope_type = ?", key.ScopeType).
		Where("?TableAlias.scope_id = ?", key.ScopeID).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	if err != nil {
		return ratelimit.State{}, err
	}
	return record.toDomain(), nil
}

// Upsert writes state on the bucket's unique index. The id and created_at of
// an existing row are kept.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return errRateLimitStoreUnset
	}
	key, err := rateLimitKey(state.Key)
	if err != nil {
		return err
	}
	updatedAt := state.UpdatedAt.UTC()
	if state.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	record := &rateLimitStateRecord{
		ID:                uuid.NewString(),
		ProviderID:        key.ProviderID,
		ScopeType:         key.ScopeType,
		ScopeID:           key.ScopeID,
		BucketKey:         key.BucketKey,
		RetryAfterSeconds: wholeSeconds(state.RetryAfter),
		ThrottledUntil:    utcPointer(state.ThrottledUntil),
		Attempts:          state.Attempts,
		LastStatus:        state.LastStatus,
		Metadata:          metadataCopy(state.Metadata),
		CreatedAt:         updatedAt,
		UpdatedAt:         updatedAt,
	}
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id, scope_type, scope_id, bucket_key) DO UPDATE").
		Set("retry_after_seconds = EXCLUDED.retry_after_seconds").
		Set("throttled_until = EXCLUDED.throttled_until").
		Set("attempts = EXCLUDED.attempts").
		Set("last_status = EXCLUDED.last_status").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Count returns the number of tracked buckets.
func (s *RateLimitStateStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.repo == nil {
		return 0, errRateLimitStoreUnset
	}
	_, total, err := s.repo.List(ctx, repository.SelectPaginate(1, 0))
	return total, err
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	state := ratelimit.State{
		Key: core.RateLimitKey{
			ProviderID: r.ProviderID,
			ScopeType:  r.ScopeType,
			ScopeID:    r.ScopeID,
			BucketKey:  r.BucketKey,
		},
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		Attempts:       r.Attempts,
		LastStatus:     r.LastStatus,
		UpdatedAt:      r.UpdatedAt.UTC(),
		Metadata:       metadataCopy(r.Metadata),
	}
	if r.RetryAfterSeconds != nil && *r.RetryAfterSeconds > 0 {
		retryAfter := time.Duration(*r.RetryAfterSeconds) * time.Second
		state.RetryAfter = &retryAfter
	}
	return state
}

var errRateLimitStoreUnset = errors.New("sqlstore: rate-limit state store is not configured")

// rateLimitKey folds the descriptive parts of key and requires every part.
// Bucket keys are push tokens and keep their case.
func rateLimitKey(key core.RateLimitKey) (core.RateLimitKey, error) {
	key = core.RateLimitKey{
		ProviderID: strings.ToLower(strings.TrimSpace(key.ProviderID)),
		ScopeType:  strings.ToLower(strings.TrimSpace(key.ScopeType)),
		ScopeID:    strings.TrimSpace(key.ScopeID),
		BucketKey:  strings.TrimSpace(key.BucketKey),
	}
	parts := [...]struct{ name, value string }{
		{"provider id", key.ProviderID},
		{"scope type", key.ScopeType},
		{"scope id", key.ScopeID},
		{"bucket key", key.BucketKey},
	}
	for _, part := range parts {
		if part.value == "" {
			return key, fmt.Errorf("sqlstore: rate-limit %s is required", part.name)
		}
	}
	return key, nil
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

// wholeSeconds rounds sub-second durations up so a short window survives.
func wholeSeconds(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := max(int(input.Seconds()), 1)
	return &seconds
}

func metadataCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
