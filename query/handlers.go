package query

import (
	"context"

	"github.com/goliatone/go-notify/core"
)

type CredentialReader interface {
	GetCredential(ctx context.Context, key core.RecipientKey) (core.NotificationDetails, bool, error)
}

type DeliveryLogReader interface {
	FindByNotificationID(ctx context.Context, notificationID string) (core.DeliveryRecord, bool, error)
	ListByRecipient(ctx context.Context, key core.RecipientKey, limit int) ([]core.DeliveryRecord, error)
}

// CredentialResult reports whether a credential exists for Key. Details is
// zero when Found is false.
type CredentialResult struct {
	Key     core.RecipientKey
	Details core.NotificationDetails
	Found   bool
}

type DeliveryResult struct {
	Record core.DeliveryRecord
	Found  bool
}

type GetCredentialQuery struct {
	reader CredentialReader
}

func NewGetCredentialQuery(reader CredentialReader) *GetCredentialQuery {
	return &GetCredentialQuery{reader: reader}
}

func (q *GetCredentialQuery) Query(ctx context.Context, msg GetCredentialMessage) (CredentialResult, error) {
	if q == nil || q.reader == nil {
		return CredentialResult{}, queryDependencyError("query: credential reader is required")
	}
	details, found, err := q.reader.GetCredential(ctx, msg.Key)
	if err != nil {
		return CredentialResult{}, err
	}
	return CredentialResult{Key: msg.Key, Details: details, Found: found}, nil
}

type ListCredentialsQuery struct {
	lister core.CredentialLister
}

func NewListCredentialsQuery(lister core.CredentialLister) *ListCredentialsQuery {
	return &ListCredentialsQuery{lister: lister}
}

func (q *ListCredentialsQuery) Query(ctx context.Context, msg ListCredentialsMessage) ([]core.Credential, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: credential lister is required")
	}
	return q.lister.ListByApp(ctx, msg.AppFID)
}

type ListRecipientDeliveriesQuery struct {
	reader DeliveryLogReader
}

func NewListRecipientDeliveriesQuery(reader DeliveryLogReader) *ListRecipientDeliveriesQuery {
	return &ListRecipientDeliveriesQuery{reader: reader}
}

func (q *ListRecipientDeliveriesQuery) Query(
	ctx context.Context,
	msg ListRecipientDeliveriesMessage,
) ([]core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery log reader is required")
	}
	return q.reader.ListByRecipient(ctx, msg.Key, msg.Limit)
}

type GetDeliveryQuery struct {
	reader DeliveryLogReader
}

func NewGetDeliveryQuery(reader DeliveryLogReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (DeliveryResult, error) {
	if q == nil || q.reader == nil {
		return DeliveryResult{}, queryDependencyError("query: delivery log reader is required")
	}
	record, found, err := q.reader.FindByNotificationID(ctx, msg.NotificationID)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Record: record, Found: found}, nil
}
