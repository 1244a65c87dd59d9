package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore persists notification credentials, one row per
// (fid, app_fid).
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
	now  func() time.Time
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:   db,
		repo: repo,
		now:  time.Now,
	}, nil
}

func (s *CredentialStore) Get(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error) {
	if s == nil || s.db == nil {
		return core.NotificationDetails{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.fid = ?", key.FID).
		Where("?TableAlias.app_fid = ?", key.AppFID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotificationDetails{}, false, nil
		}
		return core.NotificationDetails{}, false, err
	}
	return record.toDetails(), true, nil
}

// Put overwrites the credential for key. The write is a single upsert on the
// (fid, app_fid) unique index, so concurrent puts never fail on a duplicate.
func (s *CredentialStore) Put(ctx context.Context, key core.RecipientKey, details core.NotificationDetails) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
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
	now := s.now().UTC()
	record := &credentialRecord{
		ID:        uuid.NewString(),
		FID:       key.FID,
		AppFID:    key.AppFID,
		URL:       details.URL,
		Token:     details.Token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (fid, app_fid) DO UPDATE").
			Set("url = EXCLUDED.url").
			Set("token = EXCLUDED.token").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

func (s *CredentialStore) Delete(ctx context.Context, key core.RecipientKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("fid = ?", key.FID).
		Where("app_fid = ?", key.AppFID).
		Exec(ctx)
	return err
}

func (s *CredentialStore) ListByApp(ctx context.Context, appFID int64) ([]core.Credential, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records := make([]*credentialRecord, 0)
	if err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.app_fid = ?", appFID).
		OrderExpr("?TableAlias.fid ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Count returns the number of stored credentials.
func (s *CredentialStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, total, err := s.repo.List(ctx, repository.SelectPaginate(1, 0))
	return total, err
}

func (r *credentialRecord) toDetails() core.NotificationDetails {
	if r == nil {
		return core.NotificationDetails{}
	}
	return core.NotificationDetails{URL: r.URL, Token: r.Token}
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		Key:       core.RecipientKey{FID: r.FID, AppFID: r.AppFID},
		Details:   r.toDetails(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
