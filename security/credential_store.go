package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-notify/core"
)

// EncryptedCredentialStore seals tokens before they reach the wrapped store
// and opens them on the way out. Tokens written before encryption was enabled
// are returned as stored.
type EncryptedCredentialStore struct {
	base   core.CredentialStore
	cipher *TokenCipher
}

func NewEncryptedCredentialStore(base core.CredentialStore, tokenCipher *TokenCipher) (*EncryptedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base credential store is required")
	}
	if tokenCipher == nil {
		return nil, fmt.Errorf("security: token cipher is required")
	}
	return &EncryptedCredentialStore{base: base, cipher: tokenCipher}, nil
}

func (s *EncryptedCredentialStore) Get(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error) {
	details, found, err := s.base.Get(ctx, key)
	if err != nil || !found {
		return details, found, err
	}
	opened, err := s.open(details)
	if err != nil {
		return core.NotificationDetails{}, false, err
	}
	return opened, true, nil
}

func (s *EncryptedCredentialStore) Put(ctx context.Context, key core.RecipientKey, details core.NotificationDetails) error {
	sealed, err := s.cipher.Seal(details.Token)
	if err != nil {
		return err
	}
	details.Token = sealed
	return s.base.Put(ctx, key, details)
}

func (s *EncryptedCredentialStore) Delete(ctx context.Context, key core.RecipientKey) error {
	return s.base.Delete(ctx, key)
}

func (s *EncryptedCredentialStore) ListByApp(ctx context.Context, appFID int64) ([]core.Credential, error) {
	lister, ok := s.base.(core.CredentialLister)
	if !ok {
		return nil, fmt.Errorf("security: base credential store cannot list by app")
	}
	credentials, err := lister.ListByApp(ctx, appFID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(credentials))
	for _, credential := range credentials {
		opened, err := s.open(credential.Details)
		if err != nil {
			return nil, fmt.Errorf("security: open token for fid %d: %w", credential.Key.FID, err)
		}
		credential.Details = opened
		out = append(out, credential)
	}
	return out, nil
}

func (s *EncryptedCredentialStore) open(details core.NotificationDetails) (core.NotificationDetails, error) {
	if !IsSealed(details.Token) {
		return details, nil
	}
	token, err := s.cipher.Open(details.Token)
	if err != nil {
		return core.NotificationDetails{}, err
	}
	details.Token = token
	return details, nil
}

var (
	_ core.CredentialStore  = (*EncryptedCredentialStore)(nil)
	_ core.CredentialLister = (*EncryptedCredentialStore)(nil)
)
