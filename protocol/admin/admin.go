/*
Package admin implements the administrative message families: connections,
static connections, schemas, credential definitions, DIDs and the holder and
issuer side of the credential exchange. All the types are admin only, so the
dispatcher accepts them only from the local admin surface. The results are
sent with the reply which the admin surface collects.

The errors of the handlers go back as problem reports threaded to the admin
message, e.g. "Connection not found.".
*/
package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/protocol/connection"
	"github.com/findy-network/findy-agent-core/protocol/issuecredential"
	"github.com/golang/glog"
)

// ExplainNoLedger is returned when the agent runs without a ledger.
const ExplainNoLedger = "Ledger is not configured."

type Admin struct {
	Connections *connection.Manager
	Credentials *issuecredential.Manager
	Wallet      ssi.Wallet
	Ledger      ledger.Ledger
	Settings    *utils.Hub
}

// Register adds all the admin families to the registry.
func Register(reg *registry.Registry, a *Admin) error {
	if a.Settings == nil {
		a.Settings = utils.Settings
	}
	var ds []registry.Descriptor
	for _, family := range [][]registry.Descriptor{
		a.connectionTypes(),
		a.staticTypes(),
		a.schemaTypes(),
		a.credDefTypes(),
		a.didTypes(),
		a.holderTypes(),
		a.issuerTypes(),
	} {
		ds = append(ds, family...)
	}
	return reg.RegisterMany(ds...)
}

func adminOnly(t string, n func() didcomm.Message, h comm.HandlerFunc) registry.Descriptor {
	return registry.Descriptor{Type: t, New: n, Handler: h, AdminOnly: true}
}

// pass is the handler of the reply types. They are registered so that the
// families are complete, but we don't expect to get them.
func pass(_ context.Context, rc *comm.RequestContext) error {
	glog.V(3).Infoln("admin reply type received:", rc.Message.Hdr().Type)
	return nil
}

func replyHeader(t string, rc *comm.RequestContext) didcomm.Header {
	return didcomm.NewReplyHeader(t, rc.Message.Hdr())
}

// withLedger runs fn with the open ledger handle.
func (a *Admin) withLedger(ctx context.Context, fn func(h ledger.Handle) error) error {
	if a.Ledger == nil {
		return fault.Invalid(ExplainNoLedger)
	}
	return ledger.With(ctx, a.Ledger, fn)
}

// noReply is the reply message without payload.
type noReply struct {
	didcomm.Header
}

func (m *noReply) Validate() error {
	return nil
}
