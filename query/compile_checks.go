package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-notify/core"
)

var (
	_ gocmd.Querier[GetCredentialMessage, CredentialResult]                = (*GetCredentialQuery)(nil)
	_ gocmd.Querier[ListCredentialsMessage, []core.Credential]             = (*ListCredentialsQuery)(nil)
	_ gocmd.Querier[ListRecipientDeliveriesMessage, []core.DeliveryRecord] = (*ListRecipientDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, DeliveryResult]                    = (*GetDeliveryQuery)(nil)
	_ CredentialReader                                                     = (*core.Service)(nil)
)
