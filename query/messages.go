package query

import "github.com/goliatone/go-notify/core"

const (
	TypeGetCredential           = "notify.query.credential.get"
	TypeListCredentials         = "notify.query.credential.list"
	TypeListRecipientDeliveries = "notify.query.delivery.list"
	TypeGetDelivery             = "notify.query.delivery.get"
)

type GetCredentialMessage struct {
	Key core.RecipientKey
}

func (GetCredentialMessage) Type() string { return TypeGetCredential }

func (m GetCredentialMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid recipient key")
	}
	return nil
}

type ListCredentialsMessage struct {
	AppFID int64
}

func (ListCredentialsMessage) Type() string { return TypeListCredentials }

func (m ListCredentialsMessage) Validate() error {
	if m.AppFID <= 0 {
		return queryValidationError("appFid", "app fid must be positive")
	}
	return nil
}

type ListRecipientDeliveriesMessage struct {
	Key   core.RecipientKey
	Limit int
}

func (ListRecipientDeliveriesMessage) Type() string { return TypeListRecipientDeliveries }

func (m ListRecipientDeliveriesMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid recipient key")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	return nil
}

type GetDeliveryMessage struct {
	NotificationID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if m.NotificationID == "" {
		return queryValidationError("notificationId", "notification id is required")
	}
	return nil
}
