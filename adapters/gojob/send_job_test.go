package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-notify/core"
)

type coreDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacked *core.JobNackOptions
}

func (d *coreDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *coreDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *coreDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = &opts
	return nil
}

type coreDequeuer struct {
	deliveries []*coreDelivery
	err        error
}

func (q *coreDequeuer) Dequeue(context.Context) (core.JobDelivery, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.deliveries) == 0 {
		return nil, nil
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type stubSender struct {
	outcome core.DeliveryOutcome
	err     error
	calls   []core.SendRequest
}

func (s *stubSender) SendNotification(_ context.Context, req core.SendRequest) (core.DeliveryOutcome, error) {
	s.calls = append(s.calls, req)
	return s.outcome, s.err
}

func TestDecodeSendJob_AcceptsQueueNumberForms(t *testing.T) {
	cases := map[string]map[string]any{
		"int64":       {paramFID: int64(1), paramAppFID: int64(2), paramTitle: "t", paramBody: "b"},
		"float64":     {paramFID: float64(1), paramAppFID: float64(2), paramTitle: "t", paramBody: "b"},
		"json number": {paramFID: json.Number("1"), paramAppFID: json.Number("2"), paramTitle: "t", paramBody: "b"},
		"string":      {paramFID: "1", paramAppFID: "2", paramTitle: "t", paramBody: "b"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := DecodeSendJob(&core.JobExecutionMessage{JobID: JobIDSendNotification, Parameters: params})
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if req.FID != 1 || req.AppFID != 2 || req.Title != "t" || req.Body != "b" {
				t.Fatalf("unexpected request %#v", req)
			}
		})
	}
}

func TestDecodeSendJob_RoundTripsTargetURL(t *testing.T) {
	in := core.SendRequest{FID: 1, AppFID: 2, Title: "t", Body: "b", TargetURL: "https://tickbase.example/e/1"}
	out, err := DecodeSendJob(EncodeSendJob(in, ""))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("expected %#v, got %#v", in, out)
	}
}

func TestDecodeSendJob_Rejections(t *testing.T) {
	cases := map[string]*core.JobExecutionMessage{
		"nil":          nil,
		"wrong job":    {JobID: "notify.other"},
		"missing fid":  {JobID: JobIDSendNotification, Parameters: map[string]any{paramAppFID: 2, paramTitle: "t", paramBody: "b"}},
		"fraction":     {JobID: JobIDSendNotification, Parameters: map[string]any{paramFID: 1.5, paramAppFID: 2, paramTitle: "t", paramBody: "b"}},
		"negative":     {JobID: JobIDSendNotification, Parameters: map[string]any{paramFID: -1, paramAppFID: 2, paramTitle: "t", paramBody: "b"}},
		"title type":   {JobID: JobIDSendNotification, Parameters: map[string]any{paramFID: 1, paramAppFID: 2, paramTitle: 3, paramBody: "b"}},
		"missing body": {JobID: JobIDSendNotification, Parameters: map[string]any{paramFID: 1, paramAppFID: 2, paramTitle: "t"}},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeSendJob(msg); !errors.Is(err, ErrMalformedSendJob) {
				t.Fatalf("expected ErrMalformedSendJob, got %v", err)
			}
		})
	}
}

func TestSendWorker_AcksEveryOutcome(t *testing.T) {
	statuses := []core.DeliveryStatus{
		core.DeliveryStatusSuccess,
		core.DeliveryStatusNoToken,
		core.DeliveryStatusRateLimit,
		core.DeliveryStatusError,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			delivery := &coreDelivery{msg: EncodeSendJob(core.SendRequest{FID: 1, AppFID: 2, Title: "t", Body: "b"}, "")}
			sender := &stubSender{outcome: core.DeliveryOutcome{Status: status}}
			hook := &capturingHook{}
			w, err := NewSendWorker(SendWorkerConfig{Dequeuer: &coreDequeuer{deliveries: []*coreDelivery{delivery}}, Sender: sender, Hook: hook})
			if err != nil {
				t.Fatalf("new worker: %v", err)
			}

			outcome, err := w.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("run once: %v", err)
			}
			if outcome.Status != status {
				t.Fatalf("expected %q, got %q", status, outcome.Status)
			}
			if !delivery.acked || delivery.nacked != nil {
				t.Fatalf("expected ack only, got acked=%v nacked=%#v", delivery.acked, delivery.nacked)
			}
			if len(sender.calls) != 1 {
				t.Fatalf("expected exactly one send, got %d", len(sender.calls))
			}
			if len(hook.starts) != 1 {
				t.Fatalf("expected start hook")
			}
			delivered := status == core.DeliveryStatusSuccess
			if delivered && len(hook.successes) != 1 {
				t.Fatalf("expected success hook")
			}
			if !delivered && len(hook.failures) != 1 {
				t.Fatalf("expected failure hook")
			}
		})
	}
}

func TestSendWorker_DeadLettersMalformedAndRejectedJobs(t *testing.T) {
	malformed := &coreDelivery{msg: &core.JobExecutionMessage{JobID: JobIDSendNotification}}
	rejected := &coreDelivery{msg: EncodeSendJob(core.SendRequest{FID: 1, AppFID: 2, Title: "t", Body: "b"}, "")}
	sender := &stubSender{err: core.ValidationError("title", core.MessageTitleTooLong)}
	w, err := NewSendWorker(SendWorkerConfig{Dequeuer: &coreDequeuer{deliveries: []*coreDelivery{malformed, rejected}}, Sender: sender})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	for _, delivery := range []*coreDelivery{malformed, rejected} {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once: %v", err)
		}
		if delivery.acked || delivery.nacked == nil || !delivery.nacked.DeadLetter {
			t.Fatalf("expected dead letter, got acked=%v nacked=%#v", delivery.acked, delivery.nacked)
		}
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected malformed job to skip the sender, got %d calls", len(sender.calls))
	}
}

func TestSendWorker_QueueErrorsSurface(t *testing.T) {
	expected := errors.New("queue down")
	w, err := NewSendWorker(SendWorkerConfig{Dequeuer: &coreDequeuer{err: expected}, Sender: &stubSender{}})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected queue error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected run to stop on cancellation, got %v", err)
	}
}

func TestNewSendWorker_RequiresDependencies(t *testing.T) {
	if _, err := NewSendWorker(SendWorkerConfig{Sender: &stubSender{}}); err == nil {
		t.Fatalf("expected dequeuer requirement")
	}
	if _, err := NewSendWorker(SendWorkerConfig{Dequeuer: &coreDequeuer{}}); err == nil {
		t.Fatalf("expected sender requirement")
	}
}
