package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CredentialStore owns notification credentials keyed by (fid, appFid).
// Get reports a missing entry through the bool result, never as an error.
// Put overwrites and Delete of a missing entry is a no-op.
type CredentialStore interface {
	Get(ctx context.Context, key RecipientKey) (NotificationDetails, bool, error)
	Put(ctx context.Context, key RecipientKey, details NotificationDetails) error
	Delete(ctx context.Context, key RecipientKey) error
}

type CredentialLister interface {
	ListByApp(ctx context.Context, appFID int64) ([]Credential, error)
}

type EventVerifier interface {
	Verify(ctx context.Context, body []byte) (Event, error)
}

type NotificationSender interface {
	Send(ctx context.Context, key RecipientKey, notification Notification) DeliveryOutcome
}

type LifecyclePublisher interface {
	Publish(ctx context.Context, change SubscriptionChange) error
}

type DeliveryRecorder interface {
	Record(ctx context.Context, record DeliveryRecord) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// EventHandler applies a verified event. Service implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Metadata             map[string]any
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type RateLimitKey struct {
	ProviderID string
	ScopeType  string
	ScopeID    string
	BucketKey  string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type CommandMessage interface {
	Type() string
}
