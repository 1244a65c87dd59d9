package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-notify/core"
)

type NotificationService interface {
	SendNotification(ctx context.Context, req core.SendRequest) (core.DeliveryOutcome, error)
	Broadcast(ctx context.Context, req core.BroadcastRequest) (core.BroadcastSummary, error)
}

type SendNotificationCommand struct {
	service NotificationService
}

func NewSendNotificationCommand(service NotificationService) *SendNotificationCommand {
	return &SendNotificationCommand{service: service}
}

// Execute stores the delivery outcome in the context result collector. A
// failed delivery is not an error.
func (c *SendNotificationCommand) Execute(ctx context.Context, msg SendNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	out, err := c.service.SendNotification(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BroadcastNotificationCommand struct {
	service NotificationService
}

func NewBroadcastNotificationCommand(service NotificationService) *BroadcastNotificationCommand {
	return &BroadcastNotificationCommand{service: service}
}

func (c *BroadcastNotificationCommand) Execute(ctx context.Context, msg BroadcastNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	out, err := c.service.Broadcast(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type HandleEventCommand struct {
	handler core.EventHandler
}

func NewHandleEventCommand(handler core.EventHandler) *HandleEventCommand {
	return &HandleEventCommand{handler: handler}
}

func (c *HandleEventCommand) Execute(ctx context.Context, msg HandleEventMessage) error {
	if c == nil || c.handler == nil {
		return commandDependencyError("command: event handler is required")
	}
	return c.handler.HandleEvent(ctx, msg.Event)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
