package notify

import (
	"fmt"

	notifycommand "github.com/goliatone/go-notify/command"
	"github.com/goliatone/go-notify/core"
	notifyquery "github.com/goliatone/go-notify/query"
)

type CommandQueryService interface {
	notifycommand.NotificationService
	core.EventHandler
	notifyquery.CredentialReader
}

type Commands struct {
	SendNotification      *notifycommand.SendNotificationCommand
	BroadcastNotification *notifycommand.BroadcastNotificationCommand
	HandleEvent           *notifycommand.HandleEventCommand
}

// Queries holds the read handlers. ListCredentials and the delivery queries
// are nil when no lister or delivery log is available.
type Queries struct {
	GetCredential           *notifyquery.GetCredentialQuery
	ListCredentials         *notifyquery.ListCredentialsQuery
	ListRecipientDeliveries *notifyquery.ListRecipientDeliveriesQuery
	GetDelivery             *notifyquery.GetDeliveryQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	lister     core.CredentialLister
	deliveries notifyquery.DeliveryLogReader
}

func WithFacadeCredentialLister(lister core.CredentialLister) FacadeOption {
	return func(options *facadeOptions) {
		options.lister = lister
	}
}

func WithDeliveryLog(reader notifyquery.DeliveryLogReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveries = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("notify: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	lister := cfg.lister
	if lister == nil {
		lister = resolveCredentialLister(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SendNotification:      notifycommand.NewSendNotificationCommand(service),
		BroadcastNotification: notifycommand.NewBroadcastNotificationCommand(service),
		HandleEvent:           notifycommand.NewHandleEventCommand(service),
	}
	facade.queries = Queries{
		GetCredential: notifyquery.NewGetCredentialQuery(service),
	}
	if lister != nil {
		facade.queries.ListCredentials = notifyquery.NewListCredentialsQuery(lister)
	}
	if cfg.deliveries != nil {
		facade.queries.ListRecipientDeliveries = notifyquery.NewListRecipientDeliveriesQuery(cfg.deliveries)
		facade.queries.GetDelivery = notifyquery.NewGetDeliveryQuery(cfg.deliveries)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveCredentialLister falls back to the lister the service was built
// with, which core.NewService derives from list-capable stores.
func resolveCredentialLister(service CommandQueryService) core.CredentialLister {
	if lister, ok := service.(core.CredentialLister); ok {
		return lister
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	return provider.Dependencies().CredentialLister
}

var _ CommandQueryService = (*core.Service)(nil)
