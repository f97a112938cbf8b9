package agency

import (
	"github.com/findy-network/findy-agent-core/agent/dispatch"
	"github.com/findy-network/findy-agent-core/protocol/admin"
	"github.com/findy-network/findy-agent-core/protocol/connection"
	"github.com/findy-network/findy-agent-core/protocol/discovery"
	"github.com/findy-network/findy-agent-core/protocol/issuecredential"
	"github.com/findy-network/findy-agent-core/protocol/notification"
	"github.com/findy-network/findy-agent-core/protocol/trustping"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// register builds the protocol managers and registers their message types.
// The registry isn't changed after this.
func (a *Agency) register() (err error) {
	defer err2.Handle(&err, "register protocols")

	a.Pinger = &trustping.Pinger{Sender: a.Messenger, Station: a.Station}
	a.Connections = connection.NewManager(connection.Config{
		Storage:  a.Storage,
		Wallet:   a.Wallet,
		Ledger:   a.Ledger,
		Sender:   a.Messenger,
		Station:  a.Station,
		Settings: a.Settings,
		OnActive: a.Pinger.OnActive,
	})
	a.Credentials = issuecredential.NewManager(issuecredential.Config{
		Storage:  a.Storage,
		Wallet:   a.Wallet,
		Ledger:   a.Ledger,
		Sender:   a.Messenger,
		Station:  a.Station,
		Settings: a.Settings,
	})
	a.Discoverer = &discovery.Discoverer{
		Registry: a.Registry,
		Sender:   a.Messenger,
		Station:  a.Station,
	}

	try.To(connection.Register(a.Registry, a.Connections))
	try.To(issuecredential.Register(a.Registry, a.Credentials))
	try.To(notification.Register(a.Registry, &notification.Notifier{
		Owners:  []notification.ThreadOwner{a.Credentials, a.Connections},
		Station: a.Station,
	}))
	try.To(trustping.Register(a.Registry, a.Pinger))
	try.To(discovery.Register(a.Registry, a.Discoverer))
	try.To(admin.Register(a.Registry, &admin.Admin{
		Connections: a.Connections,
		Credentials: a.Credentials,
		Wallet:      a.Wallet,
		Ledger:      a.Ledger,
		Settings:    a.Settings,
	}))

	a.Dispatcher = dispatch.New(dispatch.Config{
		Registry: a.Registry,
		Storage:  a.Storage,
		Wallet:   a.Wallet,
		Ledger:   a.Ledger,
		Sender:   a.Messenger,
		Station:  a.Station,
		Settings: a.Settings,
	})
	a.Dispatcher.AddHook(a.Connections.Activate)
	return nil
}
