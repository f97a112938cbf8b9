package comm

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Poster queues the data for the delivery to the endpoint.
type Poster interface {
	Post(endpoint string, data []byte) error
}

// Messenger is the Sender of the agent. It resolves the endpoint of the
// connection and posts the message to the outbox, so Send doesn't wait for
// the network.
type Messenger struct {
	store api.Storage
	out   Poster
}

func NewMessenger(store api.Storage, out Poster) *Messenger {
	return &Messenger{store: store, out: out}
}

func (m *Messenger) Send(ctx context.Context, msg didcomm.Message, connID string) (err error) {
	defer err2.Handle(&err, "send "+msg.Hdr().Type)

	endpoint := try.To1(m.Target(ctx, connID))
	glog.V(3).Infoln("send", msg.Hdr().Type, "to", connID, endpoint)
	return m.SendTo(ctx, msg, endpoint)
}

// SendTo posts the message to the endpoint.
func (m *Messenger) SendTo(_ context.Context, msg didcomm.Message, endpoint string) error {
	return fault.Infra("post", m.out.Post(endpoint, didcomm.Marshal(msg)))
}

// Target returns the endpoint of the connection. It's taken from their DID
// doc, and before we have it, from the invitation.
func (m *Messenger) Target(ctx context.Context, connID string) (endpoint string, err error) {
	conn, err := psm.Get[psm.ConnectionRecord](ctx, m.store, connID)
	if psm.IsNotFound(err) {
		return "", fault.NotFound("Connection not found.")
	} else if err != nil {
		return "", err
	}
	if conn.TheirDID != nil {
		doc, err := psm.Get[psm.DIDDocRecord](ctx, m.store, *conn.TheirDID)
		if err != nil && !psm.IsNotFound(err) {
			return "", err
		}
		if err == nil && doc.Doc != nil && doc.Doc.Endpoint() != "" {
			return doc.Doc.Endpoint(), nil
		}
	}
	inv, err := psm.Get[psm.InvitationRecord](ctx, m.store, connID)
	if err != nil && !psm.IsNotFound(err) {
		return "", err
	}
	if err == nil && inv.ServiceEndpoint != "" {
		return inv.ServiceEndpoint, nil
	}
	return "", fault.Invalid("connection %s has no endpoint", connID)
}
