package notify

import "github.com/goliatone/go-notify/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type RecipientKey = core.RecipientKey
type NotificationDetails = core.NotificationDetails
type CredentialStore = core.CredentialStore
type CredentialLister = core.CredentialLister
type NotificationSender = core.NotificationSender
type LifecyclePublisher = core.LifecyclePublisher

type Event = core.Event

type SendRequest = core.SendRequest

type BroadcastRequest = core.BroadcastRequest

type DeliveryOutcome = core.DeliveryOutcome

type BroadcastSummary = core.BroadcastSummary

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithCredentialStore    = core.WithCredentialStore
	WithCredentialLister   = core.WithCredentialLister
	WithNotificationSender = core.WithNotificationSender
	WithLifecyclePublisher = core.WithLifecyclePublisher
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
