package gocommand

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	notifycommand "github.com/goliatone/go-notify/command"
	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/query"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(command.Message)
	if !ok {
		return errors.New("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return errors.New("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter wraps a go-command registry for the notify handlers.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return nil
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery shares the command registry; go-command keys both by message type.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	return a.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver lets handlers registered afterwards be queued through go-job.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return errors.New("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	return a.ready() == nil && a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// bind subscribes handler and then registers it, undoing the subscription
// when registration fails.
func bind(adapter *RegistryAdapter, handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("gocommand: handler is required")
	}
	subscription := subscribe()
	if err := adapter.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribe[T any](adapter *RegistryAdapter, cmd command.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, errors.New("gocommand: command is required")
	}
	return bind(adapter, cmd, func() commanddispatcher.Subscription { return SubscribeCommand(cmd, runnerOpts...) })
}

func RegisterAndSubscribeQuery[T any, R any](adapter *RegistryAdapter, qry command.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, errors.New("gocommand: query is required")
	}
	return bind(adapter, qry, func() commanddispatcher.Subscription { return SubscribeQuery(qry, runnerOpts...) })
}

// NotifyService is what RegisterService needs from the notification service.
type NotifyService interface {
	notifycommand.NotificationService
	core.EventHandler
	query.CredentialReader
}

type ServiceHandlers struct {
	Service    NotifyService
	Lister     core.CredentialLister
	Deliveries query.DeliveryLogReader
}

type registration func(*RegistryAdapter, ...runner.Option) (commanddispatcher.Subscription, error)

// RegisterService registers and subscribes the notify commands and queries.
// Lister and Deliveries are optional; their queries are skipped when nil.
// On failure every subscription made so far is removed.
func RegisterService(adapter *RegistryAdapter, handlers ServiceHandlers, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if handlers.Service == nil {
		return nil, errors.New("gocommand: notify service is required")
	}
	svc := handlers.Service
	steps := []registration{
		func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[notifycommand.SendNotificationMessage](a, notifycommand.NewSendNotificationCommand(svc), opts...)
		},
		func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[notifycommand.BroadcastNotificationMessage](a, notifycommand.NewBroadcastNotificationCommand(svc), opts...)
		},
		func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[notifycommand.HandleEventMessage](a, notifycommand.NewHandleEventCommand(svc), opts...)
		},
		func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[query.GetCredentialMessage, query.CredentialResult](a, query.NewGetCredentialQuery(svc), opts...)
		},
	}
	if lister := handlers.Lister; lister != nil {
		steps = append(steps, func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[query.ListCredentialsMessage, []core.Credential](a, query.NewListCredentialsQuery(lister), opts...)
		})
	}
	if deliveries := handlers.Deliveries; deliveries != nil {
		steps = append(steps,
			func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
				return RegisterAndSubscribeQuery[query.ListRecipientDeliveriesMessage, []core.DeliveryRecord](a, query.NewListRecipientDeliveriesQuery(deliveries), opts...)
			},
			func(a *RegistryAdapter, opts ...runner.Option) (commanddispatcher.Subscription, error) {
				return RegisterAndSubscribeQuery[query.GetDeliveryMessage, query.DeliveryResult](a, query.NewGetDeliveryQuery(deliveries), opts...)
			},
		)
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, len(steps))
	for _, step := range steps {
		sub, err := step(adapter, runnerOpts...)
		if err != nil {
			for _, done := range subscriptions {
				done.Unsubscribe()
			}
			return nil, err
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

var _ NotifyService = (*core.Service)(nil)
