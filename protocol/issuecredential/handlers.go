package issuecredential

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/findy-network/findy-agent-core/std/issuecredential"
)

// Register adds the issue-credential messages to the registry.
func Register(reg *registry.Registry, m *Manager) error {
	return reg.RegisterMany(
		registry.Descriptor{
			Type:    pltype.IssueCredentialPropose,
			New:     func() didcomm.Message { return &issuecredential.Propose{} },
			Handler: m.handlePropose,
		},
		registry.Descriptor{
			Type:    pltype.IssueCredentialOffer,
			New:     func() didcomm.Message { return &issuecredential.Offer{} },
			Handler: m.handleOffer,
		},
		registry.Descriptor{
			Type:    pltype.IssueCredentialRequest,
			New:     func() didcomm.Message { return &issuecredential.Request{} },
			Handler: m.handleRequest,
		},
		registry.Descriptor{
			Type:    pltype.IssueCredentialIssue,
			New:     func() didcomm.Message { return &issuecredential.Issue{} },
			Handler: m.handleIssue,
		},
		registry.Descriptor{
			Type:    pltype.IssueCredentialACK,
			New:     func() didcomm.Message { return &common.Ack{} },
			Handler: m.handleAck,
		},
	)
}

// senderConnection returns the ID of the ready connection of the sender.
func senderConnection(rc *comm.RequestContext) (string, error) {
	if rc.Connection == nil {
		return "", fault.NotFound(ExplainConnNotFound)
	}
	if err := rc.Connection.CheckReady(); err != nil {
		return "", err
	}
	return rc.Connection.ConnectionID, nil
}

func (m *Manager) handlePropose(ctx context.Context, rc *comm.RequestContext) error {
	connID, err := senderConnection(rc)
	if err != nil {
		return err
	}
	_, err = m.ReceiveProposal(ctx, connID, rc.Message.(*issuecredential.Propose))
	return err
}

func (m *Manager) handleOffer(ctx context.Context, rc *comm.RequestContext) error {
	connID, err := senderConnection(rc)
	if err != nil {
		return err
	}
	_, err = m.ReceiveOffer(ctx, connID, rc.Message.(*issuecredential.Offer))
	return err
}

func (m *Manager) handleRequest(ctx context.Context, rc *comm.RequestContext) error {
	connID, err := senderConnection(rc)
	if err != nil {
		return err
	}
	_, err = m.ReceiveRequest(ctx, connID, rc.Message.(*issuecredential.Request))
	return err
}

func (m *Manager) handleIssue(ctx context.Context, rc *comm.RequestContext) error {
	connID, err := senderConnection(rc)
	if err != nil {
		return err
	}
	_, err = m.ReceiveCredential(ctx, connID, rc.Message.(*issuecredential.Issue))
	return err
}

func (m *Manager) handleAck(ctx context.Context, rc *comm.RequestContext) error {
	return m.ReceiveAck(ctx, rc.Message.(*common.Ack))
}
