package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-notify/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-notify::credential::v1"

type cachedCredential struct {
	Details core.NotificationDetails
	Found   bool
}

// CachedCredentialStore is a read-through cache in front of any credential
// store. Misses are cached too; Put and Delete invalidate the key after the
// base write succeeds.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(base core.CredentialStore, cacheService repositorycache.CacheService) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns go-notify::credential::v1::<app_fid>::<fid>.
func CredentialCacheKey(key core.RecipientKey) string {
	return strings.Join([]string{
		credentialCacheKeyPrefix,
		strconv.FormatInt(key.AppFID, 10),
		strconv.FormatInt(key.FID, 10),
	}, "::")
}

func (s *CachedCredentialStore) Get(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.NotificationDetails{}, false, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, CredentialCacheKey(key), func(ctx context.Context) (cachedCredential, error) {
		details, found, fetchErr := s.base.Get(ctx, key)
		if fetchErr != nil {
			return cachedCredential{}, fetchErr
		}
		return cachedCredential{Details: details, Found: found}, nil
	})
	if err != nil {
		return core.NotificationDetails{}, false, err
	}
	return entry.Details, entry.Found, nil
}

func (s *CachedCredentialStore) Put(ctx context.Context, key core.RecipientKey, details core.NotificationDetails) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Put(ctx, key, details); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(key))
}

func (s *CachedCredentialStore) Delete(ctx context.Context, key core.RecipientKey) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(key))
}

// ListByApp is never cached; it delegates when the base store can list.
func (s *CachedCredentialStore) ListByApp(ctx context.Context, appFID int64) ([]core.Credential, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	lister, ok := s.base.(core.CredentialLister)
	if !ok {
		return nil, fmt.Errorf("sqlstore: base credential store %T cannot list by app", s.base)
	}
	return lister.ListByApp(ctx, appFID)
}
