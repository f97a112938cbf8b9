package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/protocol/issuecredential"
	msg "github.com/findy-network/findy-agent-core/std/issuecredential"
)

// CredentialRequest is the holder's send-proposal and the issuer's send.
type CredentialRequest struct {
	didcomm.Header
	ConnectionID           string       `json:"connection_id"`
	CredentialDefinitionID string       `json:"credential_definition_id"`
	Comment                string       `json:"comment,omitempty"`
	CredentialProposal     *msg.Preview `json:"credential_proposal,omitempty"`
}

func (m *CredentialRequest) Validate() error {
	return (&didcomm.Check{}).
		Required("connection_id", m.ConnectionID).
		Required("credential_definition_id", m.CredentialDefinitionID).
		That(m.Type != pltype.AdminIssuerSend || m.CredentialProposal != nil,
			"credential_proposal is required").
		Err()
}

type CredExchange struct {
	didcomm.Header
	Exchange *psm.CredExchangeRecord `json:"credential_exchange"`
}

func (m *CredExchange) Validate() error { return nil }

type CredGetList struct {
	didcomm.Header
	ConnectionID           string `json:"connection_id,omitempty"`
	CredentialDefinitionID string `json:"credential_definition_id,omitempty"`
	SchemaID               string `json:"schema_id,omitempty"`
}

func (m *CredGetList) Validate() error { return nil }

type CredList struct {
	didcomm.Header
	Results []*psm.CredExchangeRecord `json:"results"`
}

func (m *CredList) Validate() error { return nil }

func (a *Admin) holderTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminHolderSendProposal,
			func() didcomm.Message { return &CredentialRequest{} }, a.sendProposal),
		adminOnly(pltype.AdminHolderCredExchange,
			func() didcomm.Message { return &CredExchange{} }, pass),
		adminOnly(pltype.AdminHolderCredentialsGetList,
			func() didcomm.Message { return &CredGetList{} }, a.credentialList(psm.RoleHolder)),
		adminOnly(pltype.AdminHolderCredentialsList,
			func() didcomm.Message { return &CredList{} }, pass),
	}
}

func (a *Admin) sendProposal(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*CredentialRequest)
	rec, err := a.Credentials.SendProposal(ctx, m.ConnectionID,
		m.CredentialDefinitionID, m.CredentialProposal, m.Comment)
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &CredExchange{
		Header:   replyHeader(pltype.AdminHolderCredExchange, rc),
		Exchange: rec,
	})
}

// credentialList returns the handler which lists the exchanges of the role.
func (a *Admin) credentialList(role string) comm.HandlerFunc {
	replyType := pltype.AdminHolderCredentialsList
	if role == psm.RoleIssuer {
		replyType = pltype.AdminIssuerCredentialsList
	}
	return func(ctx context.Context, rc *comm.RequestContext) error {
		m := rc.Message.(*CredGetList)
		recs, err := a.Credentials.List(ctx, issuecredential.ListFilter{
			ConnectionID: m.ConnectionID,
			CredDefID:    m.CredentialDefinitionID,
			SchemaID:     m.SchemaID,
			Role:         role,
		})
		if err != nil {
			return err
		}
		return rc.Responder.SendReply(ctx, &CredList{
			Header:  replyHeader(replyType, rc),
			Results: recs,
		})
	}
}
