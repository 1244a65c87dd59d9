package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const maxDeliveryDetailLength = 1024

// DeliveryLogStore keeps an append-only audit trail of delivery outcomes.
type DeliveryLogStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryLogStore(db *bun.DB) (*DeliveryLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery log repository wiring: %w", err)
		}
	}
	return &DeliveryLogStore{db: db, repo: repo}, nil
}

func (s *DeliveryLogStore) Record(ctx context.Context, input core.DeliveryRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if strings.TrimSpace(input.NotificationID) == "" {
		return fmt.Errorf("sqlstore: notification id is required")
	}
	if strings.TrimSpace(string(input.Status)) == "" {
		return fmt.Errorf("sqlstore: delivery status is required")
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	record := &deliveryRecord{
		ID:             uuid.NewString(),
		NotificationID: strings.TrimSpace(input.NotificationID),
		FID:            input.Key.FID,
		AppFID:         input.Key.AppFID,
		Status:         string(input.Status),
		Detail:         truncate(input.Detail, maxDeliveryDetailLength),
		Title:          input.Title,
		TargetURL:      strings.TrimSpace(input.TargetURL),
		CreatedAt:      createdAt.UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *DeliveryLogStore) FindByNotificationID(ctx context.Context, notificationID string) (core.DeliveryRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("notification_id", "=", strings.TrimSpace(notificationID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.DeliveryRecord{}, false, err
	}
	if len(records) == 0 {
		return core.DeliveryRecord{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// ListByRecipient returns the most recent deliveries for key, newest first.
func (s *DeliveryLogStore) ListByRecipient(ctx context.Context, key core.RecipientKey, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records := make([]*deliveryRecord, 0)
	if err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.fid = ?", key.FID).
		Where("?TableAlias.app_fid = ?", key.AppFID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.DeliveryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (r *deliveryRecord) toDomain() core.DeliveryRecord {
	if r == nil {
		return core.DeliveryRecord{}
	}
	return core.DeliveryRecord{
		NotificationID: r.NotificationID,
		Key:            core.RecipientKey{FID: r.FID, AppFID: r.AppFID},
		Status:         core.DeliveryStatus(r.Status),
		Detail:         r.Detail,
		Title:          r.Title,
		TargetURL:      r.TargetURL,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
