package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-notify/core"
)

const (
	JobIDSendNotification = "notify.notification.send"

	paramFID       = "fid"
	paramAppFID    = "app_fid"
	paramTitle     = "title"
	paramBody      = "body"
	paramTargetURL = "target_url"

	defaultIdleDelay = time.Second
)

var ErrMalformedSendJob = errors.New("gojob: malformed send notification job")

// EncodeSendJob builds the queue message for req. idempotencyKey is optional.
func EncodeSendJob(req core.SendRequest, idempotencyKey string) *core.JobExecutionMessage {
	params := map[string]any{
		paramFID:    req.FID,
		paramAppFID: req.AppFID,
		paramTitle:  req.Title,
		paramBody:   req.Body,
	}
	if target := strings.TrimSpace(req.TargetURL); target != "" {
		params[paramTargetURL] = target
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDSendNotification,
		ScriptPath:     JobIDSendNotification,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// DecodeSendJob reverses EncodeSendJob. Numeric ids survive a JSON round
// trip through the queue backend, so float64, json.Number and string forms
// are accepted.
func DecodeSendJob(msg *core.JobExecutionMessage) (core.SendRequest, error) {
	if msg == nil {
		return core.SendRequest{}, fmt.Errorf("%w: message is nil", ErrMalformedSendJob)
	}
	if strings.TrimSpace(msg.JobID) != JobIDSendNotification {
		return core.SendRequest{}, fmt.Errorf("%w: unexpected job id %q", ErrMalformedSendJob, msg.JobID)
	}
	fid, err := intParam(msg.Parameters, paramFID)
	if err != nil {
		return core.SendRequest{}, err
	}
	appFID, err := intParam(msg.Parameters, paramAppFID)
	if err != nil {
		return core.SendRequest{}, err
	}
	title, err := stringParam(msg.Parameters, paramTitle, true)
	if err != nil {
		return core.SendRequest{}, err
	}
	body, err := stringParam(msg.Parameters, paramBody, true)
	if err != nil {
		return core.SendRequest{}, err
	}
	target, err := stringParam(msg.Parameters, paramTargetURL, false)
	if err != nil {
		return core.SendRequest{}, err
	}
	return core.SendRequest{FID: fid, AppFID: appFID, Title: title, Body: body, TargetURL: target}, nil
}

func intParam(params map[string]any, key string) (int64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrMalformedSendJob, key)
	}
	var value int64
	switch typed := raw.(type) {
	case int:
		value = int64(typed)
	case int64:
		value = typed
	case float64:
		if typed != math.Trunc(typed) || typed > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformedSendJob, key)
		}
		value = int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrMalformedSendJob, key, err)
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrMalformedSendJob, key, err)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrMalformedSendJob, key, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrMalformedSendJob, key)
	}
	return value, nil
}

func stringParam(params map[string]any, key string, required bool) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrMalformedSendJob, key)
		}
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s has type %T", ErrMalformedSendJob, key, raw)
	}
	return value, nil
}

// NotificationSender is the part of the service the worker drives.
type NotificationSender interface {
	SendNotification(ctx context.Context, req core.SendRequest) (core.DeliveryOutcome, error)
}

type SendWorkerConfig struct {
	Dequeuer       core.JobDequeuer
	Sender         NotificationSender
	Hook           core.JobWorkerHook
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	IdleDelay      time.Duration
	Now            func() time.Time
}

// SendWorker drains notification jobs. Every delivery outcome is acked, since
// a failed push is never retried. Jobs that cannot be decoded or that the
// service rejects are dead-lettered.
type SendWorker struct {
	dequeuer  core.JobDequeuer
	sender    NotificationSender
	hook      core.JobWorkerHook
	logger    core.Logger
	idleDelay time.Duration
	now       func() time.Time
}

func NewSendWorker(cfg SendWorkerConfig) (*SendWorker, error) {
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("gojob: notification sender is required")
	}
	_, logger := glog.Resolve("notify.worker", cfg.LoggerProvider, cfg.Logger)
	idle := cfg.IdleDelay
	if idle <= 0 {
		idle = defaultIdleDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SendWorker{
		dequeuer:  cfg.Dequeuer,
		sender:    cfg.Sender,
		hook:      cfg.Hook,
		logger:    glog.Ensure(logger),
		idleDelay: idle,
		now:       now,
	}, nil
}

// RunOnce processes a single job. The returned error is non-nil only when
// the queue itself failed.
func (w *SendWorker) RunOnce(ctx context.Context) (core.DeliveryOutcome, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return core.DeliveryOutcome{}, err
	}
	if delivery == nil {
		return core.DeliveryOutcome{}, nil
	}

	msg := delivery.Message()
	event := core.JobWorkerEvent{Message: msg, Attempt: 1, StartedAt: w.now().UTC()}
	w.onStart(ctx, event)

	req, err := DecodeSendJob(msg)
	if err != nil {
		return core.DeliveryOutcome{}, w.deadLetter(ctx, delivery, event, err)
	}
	outcome, err := w.sender.SendNotification(ctx, req)
	if err != nil {
		return core.DeliveryOutcome{}, w.deadLetter(ctx, delivery, event, err)
	}

	event.Duration = w.now().UTC().Sub(event.StartedAt)
	if ackErr := delivery.Ack(ctx); ackErr != nil {
		return outcome, fmt.Errorf("gojob: ack send job: %w", ackErr)
	}
	if outcome.Delivered() {
		w.onSuccess(ctx, event)
	} else {
		event.Err = fmt.Errorf("delivery %s: %s", outcome.Status, outcome.Detail)
		w.onFailure(ctx, event)
	}
	return outcome, nil
}

// Run processes jobs until ctx is cancelled. Queue errors are logged and
// retried after the idle delay.
func (w *SendWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("send worker iteration failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.idleDelay):
			}
		}
	}
}

func (w *SendWorker) deadLetter(ctx context.Context, delivery core.JobDelivery, event core.JobWorkerEvent, cause error) error {
	event.Err = cause
	event.Duration = w.now().UTC().Sub(event.StartedAt)
	w.logger.Error("send job dead-lettered", "error", cause.Error())
	w.onFailure(ctx, event)
	if err := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: cause.Error()}); err != nil {
		return fmt.Errorf("gojob: dead-letter send job: %w", err)
	}
	return nil
}

func (w *SendWorker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *SendWorker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *SendWorker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

var _ NotificationSender = (*core.Service)(nil)
