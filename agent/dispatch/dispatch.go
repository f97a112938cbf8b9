/*
Package dispatch is the inbound message dispatcher. It decodes the message,
resolves its type from the registry, builds the typed message and the request
context, and calls the handler. Errors of the handlers are turned to problem
reports when the counterparty is to blame.
*/
package dispatch

import (
	"context"
	"fmt"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/golang/glog"
)

const (
	ExplainMalformed   = "malformed message"
	ExplainUnsupported = "unsupported message type"
)

// Hook is called for the messages which came over a known connection before
// the handler. The connection manager uses it to activate the connection.
type Hook func(ctx context.Context, rc *comm.RequestContext) error

type Config struct {
	Registry *registry.Registry
	Storage  api.Storage
	Wallet   ssi.Wallet
	Ledger   ledger.Ledger
	Sender   comm.Sender
	Station  *bus.Station
	Settings *utils.Hub
}

type Dispatcher struct {
	Config
	hooks []Hook
}

func New(cfg Config) *Dispatcher {
	if cfg.Settings == nil {
		cfg.Settings = utils.Settings
	}
	return &Dispatcher{Config: cfg}
}

// AddHook adds the connection hook. Hooks are added at startup.
func (d *Dispatcher) AddHook(h Hook) {
	d.hooks = append(d.hooks, h)
}

// Handle processes one inbound message. Errors which are reported to the
// sender as problem reports aren't returned for network messages. Local
// callers get every error.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, dl comm.Delivery) (err error) {
	rc := &comm.RequestContext{
		Delivery: &dl,
		Storage:  d.Storage,
		Wallet:   d.Wallet,
		Ledger:   d.Ledger,
		Station:  d.Station,
		Settings: d.Settings,
	}
	rc.Responder = comm.NewResponder(rc.Delivery, d.Sender)

	env, err := didcomm.Decode(raw)
	if err != nil {
		glog.Warningln("malformed message from", dl.Origin, err)
		pe := fault.Wrap(fault.CodeInvalidRequest, ExplainMalformed, err)
		d.report(ctx, rc, &didcomm.Header{ID: utils.UUID()}, pe)
		return d.result(&dl, pe)
	}
	rc.Envelope = env
	glog.V(1).Infoln("<==", env.Type, env.ID, "from", dl.Origin)

	if err := d.senderConnection(ctx, rc); err != nil {
		glog.Errorln("sender connection lookup:", err)
		return d.result(&dl, err)
	}

	desc, ok := d.Registry.Resolve(env.Type)
	if !ok {
		glog.Warningln("unsupported message type:", env.Type)
		pe := fault.Invalid(ExplainUnsupported)
		d.report(ctx, rc, &env.Header, pe)
		return nil
	}
	if desc.AdminOnly && !dl.Local() {
		glog.Warningln("admin message", env.Type, "from network, dropping")
		return &fault.AuthorizationError{Type: env.Type}
	}

	msg := desc.New()
	if err := didcomm.Unmarshal(raw, msg); err != nil {
		pe := fault.Wrap(fault.CodeInvalidRequest, ExplainMalformed, err)
		d.report(ctx, rc, &env.Header, pe)
		return d.result(&dl, pe)
	}
	if err := msg.Validate(); err != nil {
		pe := fault.Wrap(fault.CodeInvalidRequest, ExplainMalformed, err)
		d.report(ctx, rc, &env.Header, pe)
		return d.result(&dl, pe)
	}
	rc.Message = msg

	if rc.Connection != nil {
		for _, hook := range d.hooks {
			if err := hook(ctx, rc); err != nil {
				glog.Warningln("connection hook:", err)
			}
		}
	}

	err = call(ctx, desc.Handler, rc)
	if err == nil {
		return nil
	}
	if pe, ok := fault.AsProtocol(err); ok {
		glog.Warningln("protocol error in", env.Type, ":", err)
		d.report(ctx, rc, msg.Hdr(), pe)
		return d.result(&dl, err)
	}
	glog.Errorln("handler", env.Type, "failed:", err)
	return d.result(&dl, err)
}

// result tells what is returned to the caller of the Handle.
func (d *Dispatcher) result(dl *comm.Delivery, err error) error {
	if dl.Local() {
		return err
	}
	return nil
}

// report sends the problem report to the sender if there is a reply path.
func (d *Dispatcher) report(ctx context.Context, rc *comm.RequestContext, in *didcomm.Header, pe *fault.ProtocolError) {
	pr := common.FromError(in, pe)
	if err := rc.Responder.SendReply(ctx, pr); err != nil {
		glog.V(1).Infoln("problem report not sent:", err)
	}
}

// senderConnection finds the connection of the sender by the recipient key:
// the key is our DID's verkey and the DID is the connection's my_did.
func (d *Dispatcher) senderConnection(ctx context.Context, rc *comm.RequestContext) error {
	dl := rc.Delivery
	if dl.ConnectionID != "" {
		conn, err := psm.Get[psm.ConnectionRecord](ctx, d.Storage, dl.ConnectionID)
		if psm.IsNotFound(err) {
			return nil
		}
		rc.Connection = conn
		return err
	}
	if dl.RecipientKey == "" || d.Wallet == nil {
		return nil
	}
	myDID, err := d.Wallet.GetLocalDIDForVerkey(ctx, dl.RecipientKey)
	if err != nil {
		// invitation keys aren't DIDs of any connection
		glog.V(3).Infoln("no DID for recipient key", dl.RecipientKey)
		return nil
	}
	conns, err := psm.Query[psm.ConnectionRecord](ctx, d.Storage,
		api.TagFilter{"my_did": myDID.DID})
	if err != nil {
		return err
	}
	if len(conns) > 0 {
		rc.Connection = conns[0]
		dl.ConnectionID = conns[0].ConnectionID
	}
	return nil
}

// call runs the handler and turns its panic to an error.
func call(ctx context.Context, h comm.HandlerFunc, rc *comm.RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("handler panic: %w", e)
				return
			}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, rc)
}
