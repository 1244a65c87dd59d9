package gojob

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/goliatone/go-notify/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

var (
	errNoEnqueuer = errors.New("gojob: enqueuer is not configured")
	errNoDequeuer = errors.New("gojob: dequeuer is not configured")
	errNoDelivery = errors.New("gojob: delivery is not configured")
)

// ToExecutionMessage converts a queued notification job into the go-job shape.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{DedupPolicy: job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy))}
	out.JobID, out.ScriptPath, out.IdempotencyKey, out.Parameters = trimmedFields(msg.JobID, msg.ScriptPath, msg.IdempotencyKey, msg.Parameters)
	return out
}

// FromExecutionMessage converts a go-job message back into a notification job.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{DedupPolicy: strings.TrimSpace(string(msg.DedupPolicy))}
	out.JobID, out.ScriptPath, out.IdempotencyKey, out.Parameters = trimmedFields(msg.JobID, msg.ScriptPath, msg.IdempotencyKey, msg.Parameters)
	return out
}

func trimmedFields(jobID, script, key string, params map[string]any) (string, string, string, map[string]any) {
	copied := make(map[string]any, len(params))
	maps.Copy(copied, params)
	return strings.TrimSpace(jobID), strings.TrimSpace(script), strings.TrimSpace(key), copied
}

// ToNackOptions never requeues: a failed push is not retried, so a nack
// either dead-letters or drops the job.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
}

// EnqueuerAdapter puts notification jobs on a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return errNoEnqueuer
	}
	if msg == nil {
		return errors.New("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// EnqueueSend encodes req as a send job and queues it.
func (a *EnqueuerAdapter) EnqueueSend(ctx context.Context, req core.SendRequest, idempotencyKey string) error {
	return a.Enqueue(ctx, EncodeSendJob(req, idempotencyKey))
}

// DequeuerAdapter hands go-job deliveries to the send worker.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, errNoDequeuer
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery), nil
}

type DeliveryAdapter struct {
	delivery queue.Delivery
}

func NewDeliveryAdapter(delivery queue.Delivery) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return errNoDelivery
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return errNoDelivery
	}
	return d.delivery.Nack(ctx, ToNackOptions(opts))
}

// WorkerHookAdapter reports go-job worker events to a notification hook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(event, func(hook core.JobWorkerHook, mapped core.JobWorkerEvent) { hook.OnStart(ctx, mapped) })
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(event, func(hook core.JobWorkerHook, mapped core.JobWorkerEvent) { hook.OnSuccess(ctx, mapped) })
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(event, func(hook core.JobWorkerHook, mapped core.JobWorkerEvent) { hook.OnFailure(ctx, mapped) })
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(event, func(hook core.JobWorkerHook, mapped core.JobWorkerEvent) { hook.OnRetry(ctx, mapped) })
}

func (a *WorkerHookAdapter) forward(event worker.Event, fn func(core.JobWorkerHook, core.JobWorkerEvent)) {
	if a == nil || a.hook == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fn(a.hook, core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
