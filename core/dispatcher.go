package core

import (
	"context"
	"time"
)

// Dispatcher applies verified events to the credential store following the
// subscription transition table. Transitions never depend on the current
// state, so replays and out of order events converge on the last one applied.
type Dispatcher struct {
	observer
	store     CredentialStore
	sender    NotificationSender
	publisher LifecyclePublisher
	texts     NotificationsConfig
	now       func() time.Time
}

type DispatcherConfig struct {
	Store     CredentialStore
	Sender    NotificationSender
	Publisher LifecyclePublisher
	Texts     NotificationsConfig
	Logger    Logger
	Metrics   MetricsRecorder
	Now       func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &Dispatcher{
		observer: observer{
			logger:          cfg.Logger,
			metricsRecorder: metrics,
		},
		store:     cfg.Store,
		sender:    cfg.Sender,
		publisher: cfg.Publisher,
		texts:     cfg.Texts,
		now:       now,
	}
}

// Dispatch applies event. Store failures are returned; delivery outcomes of
// the welcome and confirmation notifications are logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (err error) {
	if event == nil {
		return BadInputError("event is required", nil)
	}
	if d == nil || d.store == nil {
		return InternalError("dispatcher: credential store is not configured", nil)
	}
	key := event.Recipient()
	fields := recipientFields(key)
	fields["event"] = string(event.Kind())

	state, known := TargetState(event)
	if !known {
		d.logWarn(ctx, "unhandled webhook event", fields)
		return nil
	}

	startedAt := time.Now()
	defer func() {
		d.observeOperation(ctx, startedAt, "event.dispatch", err, fields)
	}()

	switch typed := event.(type) {
	case AddedEvent:
		if typed.Details != nil {
			if err = d.store.Put(ctx, key, *typed.Details); err != nil {
				return WrapOperationError(err, "store credential", fields)
			}
			d.notify(ctx, key, Notification{Title: d.texts.WelcomeTitle, Body: d.texts.WelcomeBody})
		}
	case NotificationsEnabledEvent:
		if err = d.store.Put(ctx, key, typed.Details); err != nil {
			return WrapOperationError(err, "store credential", fields)
		}
		d.notify(ctx, key, Notification{Title: d.texts.EnabledTitle, Body: d.texts.EnabledBody})
	case RemovedEvent, NotificationsDisabledEvent:
		if err = d.store.Delete(ctx, key); err != nil {
			return WrapOperationError(err, "delete credential", fields)
		}
	}

	fields["state"] = string(state)
	d.recordCounter(ctx, MetricSubscriptionChange, 1, map[string]string{
		"event": string(event.Kind()),
		"state": string(state),
	})
	d.publish(ctx, SubscriptionChange{
		Key:        key,
		Event:      event.Kind(),
		State:      state,
		OccurredAt: d.now().UTC(),
	})
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, key RecipientKey, notification Notification) {
	if d.sender == nil {
		return
	}
	outcome := d.sender.Send(ctx, key, notification)
	fields := recipientFields(key)
	fields["delivery_status"] = string(outcome.Status)
	fields["notification_id"] = outcome.NotificationID
	if outcome.Detail != "" {
		fields["detail"] = outcome.Detail
	}
	if outcome.Delivered() {
		d.logInfo(ctx, "lifecycle notification delivered", fields)
		return
	}
	d.logError(ctx, "lifecycle notification not delivered", fields)
}

func (d *Dispatcher) publish(ctx context.Context, change SubscriptionChange) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, change); err != nil {
		fields := recipientFields(change.Key)
		fields["state"] = string(change.State)
		fields["error"] = err.Error()
		d.logError(ctx, "subscription change publish failed", fields)
	}
}
