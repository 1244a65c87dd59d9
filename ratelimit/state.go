package ratelimit

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/goliatone/go-notify/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

type State struct {
	Key            core.RateLimitKey
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// StateKey is the flat identifier stores use for key.
func StateKey(key core.RateLimitKey) string {
	return key.ProviderID + "|" + key.ScopeType + "|" + key.ScopeID + "|" + key.BucketKey
}

// MemoryStateStore keeps throttle state for the process lifetime.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, errNilStore
	}
	s.mu.RLock()
	state, ok := s.items[StateKey(normalizeKey(key))]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = mergeMetadata(nil, state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return errNilStore
	}
	state.Key = normalizeKey(state.Key)
	state.Metadata = mergeMetadata(nil, state.Metadata)
	s.mu.Lock()
	s.items[StateKey(state.Key)] = state
	s.mu.Unlock()
	return nil
}

var errNilStore = errors.New("ratelimit: state store is nil")

// mergeMetadata returns a fresh map holding base overlaid with extra.
func mergeMetadata(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

var _ StateStore = (*MemoryStateStore)(nil)
