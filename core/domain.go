package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidRecipientKey      = errors.New("core: invalid recipient key")
	ErrInvalidNotificationInput = errors.New("core: invalid notification details")
	ErrMissingEnabledDetails    = errors.New("core: notifications_enabled event requires notification details")
)

type RecipientKey struct {
	FID    int64
	AppFID int64
}

func (k RecipientKey) Validate() error {
	if k.FID <= 0 {
		return fmt.Errorf("%w: fid must be positive, got %d", ErrInvalidRecipientKey, k.FID)
	}
	if k.AppFID <= 0 {
		return fmt.Errorf("%w: app fid must be positive, got %d", ErrInvalidRecipientKey, k.AppFID)
	}
	return nil
}

func (k RecipientKey) String() string {
	return fmt.Sprintf("%d:%d", k.FID, k.AppFID)
}

// NotificationDetails is the delivery credential a client hands over when
// notifications are enabled: the push endpoint and the opaque token.
type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (d NotificationDetails) Validate() error {
	rawURL := strings.TrimSpace(d.URL)
	if rawURL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidNotificationInput)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", ErrInvalidNotificationInput)
	}
	if strings.TrimSpace(d.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidNotificationInput)
	}
	return nil
}

type Credential struct {
	Key       RecipientKey
	Details   NotificationDetails
	UpdatedAt time.Time
}

type EventKind string

const (
	EventKindAdded                 EventKind = "added"
	EventKindRemoved               EventKind = "removed"
	EventKindNotificationsEnabled  EventKind = "notifications_enabled"
	EventKindNotificationsDisabled EventKind = "notifications_disabled"
)

// NormalizeEventKind maps wire names, including the legacy frame_* and the
// miniapp_* spellings, to the canonical kinds. Unrecognised kinds are returned
// trimmed and lower-cased.
func NormalizeEventKind(raw string) EventKind {
	kind := strings.ToLower(strings.TrimSpace(raw))
	switch kind {
	case "added", "miniapp_added", "frame_added":
		return EventKindAdded
	case "removed", "miniapp_removed", "frame_removed":
		return EventKindRemoved
	case string(EventKindNotificationsEnabled):
		return EventKindNotificationsEnabled
	case string(EventKindNotificationsDisabled):
		return EventKindNotificationsDisabled
	default:
		return EventKind(kind)
	}
}

func (k EventKind) Known() bool {
	switch k {
	case EventKindAdded, EventKindRemoved, EventKindNotificationsEnabled, EventKindNotificationsDisabled:
		return true
	default:
		return false
	}
}

// Event is a verified webhook event. The set of implementations is closed:
// AddedEvent, RemovedEvent, NotificationsEnabledEvent,
// NotificationsDisabledEvent and UnknownEvent.
type Event interface {
	Recipient() RecipientKey
	Kind() EventKind
	isEvent()
}

type AddedEvent struct {
	Key RecipientKey
	// Details is nil when the client did not enable notifications while adding.
	Details *NotificationDetails
}

func (e AddedEvent) Recipient() RecipientKey { return e.Key }
func (AddedEvent) Kind() EventKind           { return EventKindAdded }
func (AddedEvent) isEvent()                  {}

type RemovedEvent struct {
	Key RecipientKey
}

func (e RemovedEvent) Recipient() RecipientKey { return e.Key }
func (RemovedEvent) Kind() EventKind           { return EventKindRemoved }
func (RemovedEvent) isEvent()                  {}

type NotificationsEnabledEvent struct {
	Key     RecipientKey
	Details NotificationDetails
}

func (e NotificationsEnabledEvent) Recipient() RecipientKey { return e.Key }
func (NotificationsEnabledEvent) Kind() EventKind           { return EventKindNotificationsEnabled }
func (NotificationsEnabledEvent) isEvent()                  {}

type NotificationsDisabledEvent struct {
	Key RecipientKey
}

func (e NotificationsDisabledEvent) Recipient() RecipientKey { return e.Key }
func (NotificationsDisabledEvent) Kind() EventKind           { return EventKindNotificationsDisabled }
func (NotificationsDisabledEvent) isEvent()                  {}

type UnknownEvent struct {
	Key     RecipientKey
	RawKind string
}

func (e UnknownEvent) Recipient() RecipientKey { return e.Key }
func (e UnknownEvent) Kind() EventKind         { return EventKind(e.RawKind) }
func (UnknownEvent) isEvent()                  {}

// ParseEvent builds the typed event for a verified payload. Details supplied
// with removed, disabled or unknown kinds are discarded.
func ParseEvent(key RecipientKey, rawKind string, details *NotificationDetails) (Event, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	kind := NormalizeEventKind(rawKind)
	switch kind {
	case EventKindAdded:
		if details == nil {
			return AddedEvent{Key: key}, nil
		}
		if err := details.Validate(); err != nil {
			return nil, err
		}
		copied := *details
		return AddedEvent{Key: key, Details: &copied}, nil
	case EventKindRemoved:
		return RemovedEvent{Key: key}, nil
	case EventKindNotificationsEnabled:
		if details == nil {
			return nil, ErrMissingEnabledDetails
		}
		if err := details.Validate(); err != nil {
			return nil, err
		}
		return NotificationsEnabledEvent{Key: key, Details: *details}, nil
	case EventKindNotificationsDisabled:
		return NotificationsDisabledEvent{Key: key}, nil
	default:
		return UnknownEvent{Key: key, RawKind: string(kind)}, nil
	}
}

type SubscriptionState string

const (
	SubscriptionStateNotSubscribed               SubscriptionState = "not_subscribed"
	SubscriptionStateSubscribedNoNotifications   SubscriptionState = "subscribed_no_notifications"
	SubscriptionStateSubscribedWithNotifications SubscriptionState = "subscribed_with_notifications"
)

// TargetState reports the subscription state an event moves its recipient
// into. The second value is false for unknown kinds, which change nothing.
func TargetState(event Event) (SubscriptionState, bool) {
	switch typed := event.(type) {
	case AddedEvent:
		if typed.Details != nil {
			return SubscriptionStateSubscribedWithNotifications, true
		}
		return SubscriptionStateSubscribedNoNotifications, true
	case RemovedEvent:
		return SubscriptionStateNotSubscribed, true
	case NotificationsEnabledEvent:
		return SubscriptionStateSubscribedWithNotifications, true
	case NotificationsDisabledEvent:
		return SubscriptionStateSubscribedNoNotifications, true
	default:
		return "", false
	}
}

type SubscriptionChange struct {
	Key        RecipientKey
	Event      EventKind
	State      SubscriptionState
	OccurredAt time.Time
}

type Notification struct {
	Title     string
	Body      string
	TargetURL string
}

type SendRequest struct {
	FID       int64  `json:"fid" validate:"required,gt=0"`
	AppFID    int64  `json:"appFid" validate:"required,gt=0"`
	Title     string `json:"title" validate:"required"`
	Body      string `json:"body" validate:"required"`
	TargetURL string `json:"targetUrl,omitempty"`
}

func (r SendRequest) Key() RecipientKey {
	return RecipientKey{FID: r.FID, AppFID: r.AppFID}
}

func (r SendRequest) Notification() Notification {
	return Notification{Title: r.Title, Body: r.Body, TargetURL: r.TargetURL}
}

type BroadcastRequest struct {
	AppFID    int64  `json:"appFid" validate:"required,gt=0"`
	Title     string `json:"title" validate:"required"`
	Body      string `json:"body" validate:"required"`
	TargetURL string `json:"targetUrl,omitempty"`
}

type DeliveryStatus string

const (
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusNoToken   DeliveryStatus = "no_token"
	DeliveryStatusError     DeliveryStatus = "error"
	DeliveryStatusRateLimit DeliveryStatus = "rate_limit"
)

// DeliveryOutcome is the result of one delivery attempt. Senders return it as
// a value; failures never surface as Go errors.
type DeliveryOutcome struct {
	Status         DeliveryStatus
	Detail         string
	NotificationID string
}

func (o DeliveryOutcome) Delivered() bool {
	return o.Status == DeliveryStatusSuccess
}

type BroadcastSummary struct {
	AppFID    int64
	Attempted int
	Counts    map[DeliveryStatus]int
}

type DeliveryRecord struct {
	NotificationID string
	Key            RecipientKey
	Status         DeliveryStatus
	Detail         string
	Title          string
	TargetURL      string
	CreatedAt      time.Time
}
