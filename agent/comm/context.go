/*
Package comm includes the request context the message handlers get, the
Responder they answer with, and the outbound side: Messenger resolves the
connection's endpoint and Outbox delivers the message with the transport in
the background.
*/
package comm

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/utils"
)

// Origin tells where the message came from.
type Origin int

const (
	// OriginNetwork is a message from the other agent over the transport.
	OriginNetwork Origin = iota
	// OriginLocal is a message from our own admin surface.
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "network"
}

// Replier writes the reply straight back to the sender, e.g. to the admin
// HTTP response.
type Replier func(ctx context.Context, data []byte) error

// Delivery is the metadata of the inbound message.
type Delivery struct {
	Origin       Origin
	ConnectionID string // sender's connection when known
	RecipientKey string // our verkey the message was sent to
	Reply        Replier
}

func (d *Delivery) Local() bool {
	return d.Origin == OriginLocal
}

// HandlerFunc is the handler of the one message type.
type HandlerFunc func(ctx context.Context, rc *RequestContext) error

// RequestContext is everything the handler needs to process the message.
type RequestContext struct {
	Message    didcomm.Message
	Envelope   *didcomm.Envelope
	Delivery   *Delivery
	Connection *psm.ConnectionRecord // nil if sender isn't known

	Storage   api.Storage
	Wallet    ssi.Wallet
	Ledger    ledger.Ledger
	Responder Responder
	Station   *bus.Station
	Settings  *utils.Hub
}

// ThreadID returns the thread ID of the inbound message.
func (rc *RequestContext) ThreadID() string {
	return rc.Message.Hdr().ThreadID()
}

// ConnectionID returns the ID of the sender's connection or empty.
func (rc *RequestContext) ConnectionID() string {
	if rc.Connection != nil {
		return rc.Connection.ConnectionID
	}
	return rc.Delivery.ConnectionID
}
