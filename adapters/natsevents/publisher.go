// Package natsevents publishes subscription lifecycle changes on NATS.
package natsevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-notify/core"
	natsgo "github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "notify.subscriptions"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON body published for each change.
type Message struct {
	FID        int64     `json:"fid"`
	AppFID     int64     `json:"appFid"`
	Event      string    `json:"event"`
	State      string    `json:"state"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher struct {
	conn   Conn
	prefix string
	logger core.Logger
}

type Option func(*Publisher)

func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		if prefix = strings.Trim(strings.TrimSpace(prefix), "."); prefix != "" {
			p.prefix = prefix
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *Publisher) {
		p.logger = glog.Ensure(logger)
	}
}

func NewPublisher(conn Conn, opts ...Option) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("natsevents: connection is required")
	}
	p := &Publisher{conn: conn, prefix: DefaultSubjectPrefix, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Connect dials url with a client name; callers own the returned connection.
func Connect(url string, name string) (*natsgo.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("natsevents: url is required")
	}
	opts := []natsgo.Option{}
	if name = strings.TrimSpace(name); name != "" {
		opts = append(opts, natsgo.Name(name))
	}
	return natsgo.Connect(url, opts...)
}

// Subject is <prefix>.<state>.
func (p *Publisher) Subject(state core.SubscriptionState) string {
	return p.prefix + "." + string(state)
}

func (p *Publisher) Publish(ctx context.Context, change core.SubscriptionChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if change.State == "" {
		return fmt.Errorf("natsevents: subscription state is required")
	}
	payload, err := json.Marshal(Message{
		FID:        change.Key.FID,
		AppFID:     change.Key.AppFID,
		Event:      string(change.Event),
		State:      string(change.State),
		OccurredAt: change.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("natsevents: encode change: %w", err)
	}
	subject := p.Subject(change.State)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("natsevents: publish %s: %w", subject, err)
	}
	p.logger.Debug("subscription change published", "subject", subject, "fid", change.Key.FID, "app_fid", change.Key.AppFID)
	return nil
}

var (
	_ core.LifecyclePublisher = (*Publisher)(nil)
	_ Conn                    = (*natsgo.Conn)(nil)
)
