package command

import (
	"strings"

	"github.com/goliatone/go-notify/core"
)

const (
	TypeSendNotification      = "notify.command.notification.send"
	TypeBroadcastNotification = "notify.command.notification.broadcast"
	TypeHandleEvent           = "notify.command.event.handle"
)

type SendNotificationMessage struct {
	Request core.SendRequest
}

func (SendNotificationMessage) Type() string { return TypeSendNotification }

// Validate checks presence only; length and origin limits are enforced by
// the service with the client facing messages.
func (m SendNotificationMessage) Validate() error {
	if m.Request.FID <= 0 {
		return commandValidationError("fid", "fid must be positive")
	}
	if m.Request.AppFID <= 0 {
		return commandValidationError("appFid", "app fid must be positive")
	}
	if strings.TrimSpace(m.Request.Title) == "" {
		return commandValidationError("title", "title is required")
	}
	if strings.TrimSpace(m.Request.Body) == "" {
		return commandValidationError("body", "body is required")
	}
	return nil
}

type BroadcastNotificationMessage struct {
	Request core.BroadcastRequest
}

func (BroadcastNotificationMessage) Type() string { return TypeBroadcastNotification }

func (m BroadcastNotificationMessage) Validate() error {
	if m.Request.AppFID <= 0 {
		return commandValidationError("appFid", "app fid must be positive")
	}
	if strings.TrimSpace(m.Request.Title) == "" {
		return commandValidationError("title", "title is required")
	}
	if strings.TrimSpace(m.Request.Body) == "" {
		return commandValidationError("body", "body is required")
	}
	return nil
}

// HandleEventMessage carries an event that has already been verified.
type HandleEventMessage struct {
	Event core.Event
}

func (HandleEventMessage) Type() string { return TypeHandleEvent }

func (m HandleEventMessage) Validate() error {
	if m.Event == nil {
		return commandValidationError("event", "event is required")
	}
	if err := m.Event.Recipient().Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event recipient")
	}
	return nil
}
