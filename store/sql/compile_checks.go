package sqlstore

import (
	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/ratelimit"
)

var (
	_ core.CredentialStore  = (*CredentialStore)(nil)
	_ core.CredentialLister = (*CredentialStore)(nil)
	_ core.CredentialStore  = (*CachedCredentialStore)(nil)
	_ core.CredentialLister = (*CachedCredentialStore)(nil)
	_ core.DeliveryRecorder = (*DeliveryLogStore)(nil)
	_ ratelimit.StateStore  = (*RateLimitStateStore)(nil)
)
