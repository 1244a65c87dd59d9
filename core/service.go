package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	observer
	config         Config
	loggerProvider LoggerProvider
	errorMapper    ErrorMapper
	store          CredentialStore
	lister         CredentialLister
	sender         NotificationSender
	publisher      LifecyclePublisher
	dispatcher     *Dispatcher
	validator      *RequestValidator
	now            func() time.Time
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	CredentialStore  CredentialStore
	CredentialLister CredentialLister
	Sender           NotificationSender
	Publisher        LifecyclePublisher
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("notify", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("notify"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.credentialStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: credential store is required"))
	}
	if builder.sender == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: notification sender is required"))
	}
	if builder.credentialLister == nil {
		if lister, ok := builder.credentialStore.(CredentialLister); ok {
			builder.credentialLister = lister
		}
	}

	validator, err := NewRequestValidator(finalConfig.AppURL)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	dispatcher := NewDispatcher(DispatcherConfig{
		Store:     builder.credentialStore,
		Sender:    builder.sender,
		Publisher: builder.publisher,
		Texts:     finalConfig.Notifications.Resolve(finalConfig.AppName),
		Logger:    logger,
		Metrics:   builder.metricsRecorder,
		Now:       builder.now,
	})

	return &Service{
		observer: observer{
			logger:          logger,
			metricsRecorder: builder.metricsRecorder,
		},
		config:         finalConfig,
		loggerProvider: provider,
		errorMapper:    builder.errorMapper,
		store:          builder.credentialStore,
		lister:         builder.credentialLister,
		sender:         builder.sender,
		publisher:      builder.publisher,
		dispatcher:     dispatcher,
		validator:      validator,
		now:            builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorMapper:      s.errorMapper,
		CredentialStore:  s.store,
		CredentialLister: s.lister,
		Sender:           s.sender,
		Publisher:        s.publisher,
	}
}

// HandleEvent applies a verified webhook event.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	if s == nil || s.dispatcher == nil {
		return InternalError("service is not initialised", nil)
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		return s.mapError(err)
	}
	return nil
}

// SendNotification validates req and performs a single delivery attempt. The
// error result is only set for invalid requests; delivery failures are
// reported through the outcome.
func (s *Service) SendNotification(ctx context.Context, req SendRequest) (outcome DeliveryOutcome, err error) {
	if s == nil || s.validator == nil {
		return DeliveryOutcome{}, InternalError("service is not initialised", nil)
	}
	startedAt := time.Now()
	fields := recipientFields(req.Key())
	defer func() {
		if err == nil {
			fields["delivery_status"] = string(outcome.Status)
			fields["notification_id"] = outcome.NotificationID
		}
		s.observeOperation(ctx, startedAt, "notification.send", err, fields)
	}()

	validated, err := s.validator.ValidateSend(req)
	if err != nil {
		return DeliveryOutcome{}, s.mapError(err)
	}
	outcome = s.sender.Send(ctx, validated.Key(), validated.Notification())
	return outcome, nil
}

// Broadcast sends one notification to every credential registered for the
// app, sequentially, one attempt each.
func (s *Service) Broadcast(ctx context.Context, req BroadcastRequest) (summary BroadcastSummary, err error) {
	if s == nil || s.validator == nil {
		return BroadcastSummary{}, InternalError("service is not initialised", nil)
	}
	if s.lister == nil {
		return BroadcastSummary{}, NotImplementedError("broadcast requires a credential lister")
	}
	startedAt := time.Now()
	fields := map[string]any{"app_fid": req.AppFID}
	defer func() {
		fields["attempted"] = summary.Attempted
		s.observeOperation(ctx, startedAt, "notification.broadcast", err, fields)
	}()

	validated, err := s.validator.ValidateBroadcast(req)
	if err != nil {
		return BroadcastSummary{}, s.mapError(err)
	}
	credentials, err := s.lister.ListByApp(ctx, validated.AppFID)
	if err != nil {
		return BroadcastSummary{}, s.mapError(WrapOperationError(err, "list credentials", fields))
	}

	summary = BroadcastSummary{
		AppFID: validated.AppFID,
		Counts: map[DeliveryStatus]int{},
	}
	notification := Notification{Title: validated.Title, Body: validated.Body, TargetURL: validated.TargetURL}
	for _, credential := range credentials {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, s.mapError(WrapOperationError(ctxErr, "broadcast interrupted", fields))
		}
		outcome := s.sender.Send(ctx, credential.Key, notification)
		summary.Attempted++
		summary.Counts[outcome.Status]++
	}
	return summary, nil
}

func (s *Service) GetCredential(ctx context.Context, key RecipientKey) (NotificationDetails, bool, error) {
	if s == nil || s.store == nil {
		return NotificationDetails{}, false, InternalError("service is not initialised", nil)
	}
	if err := key.Validate(); err != nil {
		return NotificationDetails{}, false, s.mapError(err)
	}
	details, found, err := s.store.Get(ctx, key)
	if err != nil {
		return NotificationDetails{}, false, s.mapError(WrapOperationError(err, "load credential", recipientFields(key)))
	}
	return details, found, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}
