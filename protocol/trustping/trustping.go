// Package trustping implements the trust_ping/1.0 protocol. The ping is sent
// when the connection becomes active on our side, and it activates the
// connection on the inviter's side.
package trustping

import (
	"context"
	"time"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// RecordType is the record type of the ping notifications.
const RecordType = "trust_ping"

// States of the ping notifications.
const (
	StateSent    = "sent"
	StateReplied = "replied"
)

type Ping struct {
	didcomm.Header
	Comment           string `json:"comment,omitempty"`
	ResponseRequested *bool  `json:"response_requested,omitempty"`
}

func (p *Ping) Validate() error {
	return nil
}

// Respond tells if the sender wants the response. It's the default.
func (p *Ping) Respond() bool {
	return p.ResponseRequested == nil || *p.ResponseRequested
}

type Response struct {
	didcomm.Header
	Comment string `json:"comment,omitempty"`
}

func (r *Response) Validate() error {
	return (&didcomm.Check{}).That(r.Thread != nil && r.Thread.ID != "",
		"~thread is required").Err()
}

type Pinger struct {
	Sender  comm.Sender
	Station *bus.Station
}

// Register adds the ping messages to the registry.
func Register(reg *registry.Registry, p *Pinger) error {
	return reg.RegisterMany(
		registry.Descriptor{
			Type:    pltype.TrustPingPing,
			New:     func() didcomm.Message { return &Ping{} },
			Handler: p.handlePing,
		},
		registry.Descriptor{
			Type:    pltype.TrustPingResponse,
			New:     func() didcomm.Message { return &Response{} },
			Handler: p.handleResponse,
		},
	)
}

// Ping sends the ping over the connection and returns its thread ID. The
// response is broadcast with the thread ID as the record ID.
func (p *Pinger) Ping(ctx context.Context, connID string, responseRequested bool) (thid string, err error) {
	defer err2.Handle(&err, "trust ping")

	ping := &Ping{
		Header:            didcomm.NewHeader(pltype.TrustPingPing),
		ResponseRequested: &responseRequested,
	}
	try.To(p.Sender.Send(ctx, ping, connID))
	p.notify(ping.ThreadID(), connID, StateSent)
	return ping.ThreadID(), nil
}

// OnActive pings the connection which just became active.
func (p *Pinger) OnActive(ctx context.Context, rec *psm.ConnectionRecord) {
	if _, err := p.Ping(ctx, rec.ConnectionID, true); err != nil {
		glog.Warningln("ping of new connection", rec.ConnectionID, err)
	}
}

// WaitResponse waits for the ping response of the thread.
func (p *Pinger) WaitResponse(thid string, timeout time.Duration) bool {
	_, ok := p.Station.WaitState(thid, timeout, StateReplied)
	return ok
}

func (p *Pinger) handlePing(ctx context.Context, rc *comm.RequestContext) error {
	ping := rc.Message.(*Ping)
	if rc.Connection == nil || !rc.Connection.State.Ready() {
		glog.Warningln("trust ping over inactive connection, ignored")
		return nil
	}
	if !ping.Respond() {
		return nil
	}
	return rc.Responder.SendReply(ctx, &Response{
		Header: didcomm.NewReplyHeader(pltype.TrustPingResponse, &ping.Header),
	})
}

func (p *Pinger) handleResponse(_ context.Context, rc *comm.RequestContext) error {
	glog.V(1).Infoln("trust ping response, thread:", rc.ThreadID())
	p.notify(rc.ThreadID(), rc.ConnectionID(), StateReplied)
	return nil
}

func (p *Pinger) notify(thid, connID, state string) {
	if p.Station == nil {
		return
	}
	p.Station.Broadcast(bus.Notify{
		RecordType:   RecordType,
		ID:           thid,
		ConnectionID: connID,
		ThreadID:     thid,
		State:        state,
	})
}
