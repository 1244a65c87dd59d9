// Package redisstore keeps notification credentials in Redis so several
// service instances share one view of subscriptions.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "notify"

	fieldURL       = "url"
	fieldToken     = "token"
	fieldUpdatedAt = "updated_at"
)

// CredentialStore stores each credential as a hash at
// <prefix>:credential:<app_fid>:<fid> and indexes fids per app in the set
// <prefix>:app:<app_fid>:fids.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

type Option func(*CredentialStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *CredentialStore) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCredentialStore(client redis.UniversalClient, opts ...Option) (*CredentialStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &CredentialStore{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// NewClient opens a client from a redis:// url.
func NewClient(rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	return redis.NewClient(options), nil
}

func (s *CredentialStore) CredentialKey(key core.RecipientKey) string {
	return fmt.Sprintf("%s:credential:%d:%d", s.prefix, key.AppFID, key.FID)
}

func (s *CredentialStore) AppIndexKey(appFID int64) string {
	return fmt.Sprintf("%s:app:%d:fids", s.prefix, appFID)
}

func (s *CredentialStore) Get(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error) {
	if s == nil || s.client == nil {
		return core.NotificationDetails{}, false, fmt.Errorf("redisstore: credential store is not configured")
	}
	values, err := s.client.HGetAll(ctx, s.CredentialKey(key)).Result()
	if err != nil {
		return core.NotificationDetails{}, false, err
	}
	details, ok := detailsFromHash(values)
	return details, ok, nil
}

func (s *CredentialStore) Put(ctx context.Context, key core.RecipientKey, details core.NotificationDetails) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: credential store is not configured")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	details = core.NotificationDetails{
		URL:   strings.TrimSpace(details.URL),
		Token: strings.TrimSpace(details.Token),
	}
	if err := details.Validate(); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.CredentialKey(key),
			fieldURL, details.URL,
			fieldToken, details.Token,
			fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano),
		)
		pipe.SAdd(ctx, s.AppIndexKey(key.AppFID), key.FID)
		return nil
	})
	return err
}

func (s *CredentialStore) Delete(ctx context.Context, key core.RecipientKey) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: credential store is not configured")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.CredentialKey(key))
		pipe.SRem(ctx, s.AppIndexKey(key.AppFID), key.FID)
		return nil
	})
	return err
}

// ListByApp reads the app index and fetches each credential in one pipeline.
// Index members whose hash has gone are skipped.
func (s *CredentialStore) ListByApp(ctx context.Context, appFID int64) ([]core.Credential, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redisstore: credential store is not configured")
	}
	members, err := s.client.SMembers(ctx, s.AppIndexKey(appFID)).Result()
	if err != nil {
		return nil, err
	}
	fids := make([]int64, 0, len(members))
	for _, member := range members {
		fid, parseErr := strconv.ParseInt(member, 10, 64)
		if parseErr != nil || fid <= 0 {
			continue
		}
		fids = append(fids, fid)
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
	if len(fids) == 0 {
		return []core.Credential{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(fids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, fid := range fids {
			cmds[i] = pipe.HGetAll(ctx, s.CredentialKey(core.RecipientKey{FID: fid, AppFID: appFID}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.Credential, 0, len(fids))
	for i, cmd := range cmds {
		values, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, cmdErr
		}
		details, ok := detailsFromHash(values)
		if !ok {
			continue
		}
		credential := core.Credential{
			Key:     core.RecipientKey{FID: fids[i], AppFID: appFID},
			Details: details,
		}
		if updatedAt, parseErr := time.Parse(time.RFC3339Nano, values[fieldUpdatedAt]); parseErr == nil {
			credential.UpdatedAt = updatedAt.UTC()
		}
		out = append(out, credential)
	}
	return out, nil
}

func detailsFromHash(values map[string]string) (core.NotificationDetails, bool) {
	url := values[fieldURL]
	token := values[fieldToken]
	if url == "" || token == "" {
		return core.NotificationDetails{}, false
	}
	return core.NotificationDetails{URL: url, Token: token}, true
}

var (
	_ core.CredentialStore  = (*CredentialStore)(nil)
	_ core.CredentialLister = (*CredentialStore)(nil)
)
