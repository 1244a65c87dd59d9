package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:notification_credentials,alias:nc"`

	ID        string    `bun:"id,pk"`
	FID       int64     `bun:"fid,notnull"`
	AppFID    int64     `bun:"app_fid,notnull"`
	URL       string    `bun:"url,notnull"`
	Token     string    `bun:"token,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:notification_deliveries,alias:nd"`

	ID             string    `bun:"id,pk"`
	NotificationID string    `bun:"notification_id,notnull"`
	FID            int64     `bun:"fid,notnull"`
	AppFID         int64     `bun:"app_fid,notnull"`
	Status         string    `bun:"status,notnull"`
	Detail         string    `bun:"detail,notnull"`
	Title          string    `bun:"title,notnull"`
	TargetURL      string    `bun:"target_url,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:notification_rate_limits,alias:nrl"`

	ID                string         `bun:"id,pk"`
	ProviderID        string         `bun:"provider_id,notnull"`
	ScopeType         string         `bun:"scope_type,notnull"`
	ScopeID           string         `bun:"scope_id,notnull"`
	BucketKey         string         `bun:"bucket_key,notnull"`
	RetryAfterSeconds *int           `bun:"retry_after_seconds,nullzero"`
	ThrottledUntil    *time.Time     `bun:"throttled_until,nullzero"`
	Attempts          int            `bun:"attempts,notnull"`
	LastStatus        int            `bun:"last_status,notnull"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *credentialRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *deliveryRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *deliveryRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *rateLimitStateRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *rateLimitStateRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}
