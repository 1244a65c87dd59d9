package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Event = AddedEvent{}
	_ Event = RemovedEvent{}
	_ Event = NotificationsEnabledEvent{}
	_ Event = NotificationsDisabledEvent{}
	_ Event = UnknownEvent{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
