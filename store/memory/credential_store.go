// Package memory keeps notification credentials in process memory. It suits
// single instance deployments and tests; entries are lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-notify/core"
)

type CredentialStore struct {
	mu      sync.RWMutex
	entries map[core.RecipientKey]core.Credential
	now     func() time.Time
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		entries: map[core.RecipientKey]core.Credential{},
		now:     time.Now,
	}
}

func (s *CredentialStore) Get(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error) {
	if err := s.check(ctx); err != nil {
		return core.NotificationDetails{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.entries[key]
	if !ok {
		return core.NotificationDetails{}, false, nil
	}
	return credential.Details, true, nil
}

func (s *CredentialStore) Put(ctx context.Context, key core.RecipientKey, details core.NotificationDetails) error {
	if err := s.check(ctx); err != nil {
		return err
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = core.Credential{Key: key, Details: details, UpdatedAt: s.now().UTC()}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, key core.RecipientKey) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ListByApp returns every credential registered for appFID ordered by fid.
func (s *CredentialStore) ListByApp(ctx context.Context, appFID int64) ([]core.Credential, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]core.Credential, 0)
	for key, credential := range s.entries {
		if key.AppFID == appFID {
			out = append(out, credential)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.FID < out[j].Key.FID })
	return out, nil
}

func (s *CredentialStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *CredentialStore) check(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("memory: credential store is nil")
	}
	if ctx != nil {
		return ctx.Err()
	}
	return nil
}

var (
	_ core.CredentialStore  = (*CredentialStore)(nil)
	_ core.CredentialLister = (*CredentialStore)(nil)
)
