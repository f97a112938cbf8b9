package connection

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/std/didexchange"
)

// Register adds the connection protocol messages to the registry.
func Register(reg *registry.Registry, m *Manager) error {
	return reg.RegisterMany(
		registry.Descriptor{
			Type:    pltype.AriesConnectionRequest,
			New:     func() didcomm.Message { return &didexchange.Request{} },
			Handler: m.handleRequest,
		},
		registry.Descriptor{
			Type:    pltype.AriesConnectionResponse,
			New:     func() didcomm.Message { return &didexchange.Response{} },
			Handler: m.handleResponse,
		},
	)
}

func (m *Manager) handleRequest(ctx context.Context, rc *comm.RequestContext) error {
	req := rc.Message.(*didexchange.Request)
	rec, err := m.ReceiveRequest(ctx, req, rc.Delivery.RecipientKey)
	if rec != nil && rec.TheirDID != nil {
		rc.Delivery.ConnectionID = rec.ConnectionID
	}
	return err
}

func (m *Manager) handleResponse(ctx context.Context, rc *comm.RequestContext) error {
	resp := rc.Message.(*didexchange.Response)
	rec, err := m.ReceiveResponse(ctx, resp)
	if rec != nil {
		rc.Delivery.ConnectionID = rec.ConnectionID
	}
	return err
}
