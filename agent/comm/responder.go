package comm

import (
	"context"
	"errors"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
)

var ErrNoReplyPath = errors.New("no reply path to the sender")

// Responder sends the handler's outbound messages.
type Responder interface {
	// SendReply answers the sender of the inbound message.
	SendReply(ctx context.Context, msg didcomm.Message) error
	// Send sends the message over the connection.
	Send(ctx context.Context, msg didcomm.Message, connID string) error
}

// Sender sends messages over the connections.
type Sender interface {
	Send(ctx context.Context, msg didcomm.Message, connID string) error
}

type responder struct {
	d *Delivery
	s Sender
}

// NewResponder returns the responder for the inbound message. The reply goes
// with the delivery's Replier if there is one, and else over the delivery's
// connection. The delivery can be updated by the handler, e.g. when the
// connection is created by the message.
func NewResponder(d *Delivery, s Sender) Responder {
	return &responder{d: d, s: s}
}

func (r *responder) SendReply(ctx context.Context, msg didcomm.Message) error {
	switch {
	case r.d.Reply != nil:
		return r.d.Reply(ctx, didcomm.Marshal(msg))
	case r.d.ConnectionID != "":
		return r.s.Send(ctx, msg, r.d.ConnectionID)
	}
	return ErrNoReplyPath
}

func (r *responder) Send(ctx context.Context, msg didcomm.Message, connID string) error {
	return r.s.Send(ctx, msg, connID)
}

// Collector is a Replier which keeps the replies in memory, which is how the
// admin surface returns the results.
type Collector struct {
	replies [][]byte
}

func (c *Collector) Reply(_ context.Context, data []byte) error {
	c.replies = append(c.replies, data)
	return nil
}

// Replies returns the collected replies in order.
func (c *Collector) Replies() [][]byte {
	return c.replies
}
