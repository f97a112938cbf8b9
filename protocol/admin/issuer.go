package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/golang/glog"
)

func (a *Admin) issuerTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminIssuerSend,
			func() didcomm.Message { return &CredentialRequest{} }, a.issuerSend),
		adminOnly(pltype.AdminIssuerCredExchange,
			func() didcomm.Message { return &CredExchange{} }, pass),
		adminOnly(pltype.AdminIssuerCredentialsGetList,
			func() didcomm.Message { return &CredGetList{} }, a.credentialList(psm.RoleIssuer)),
		adminOnly(pltype.AdminIssuerCredentialsList,
			func() didcomm.Message { return &CredList{} }, pass),
	}
}

// issuerSend replies with the prepared exchange right away. The offer is
// built and sent in the background, and it isn't cancelled with the request.
func (a *Admin) issuerSend(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*CredentialRequest)
	rec, err := a.Credentials.PrepareSend(ctx, m.CredentialDefinitionID,
		m.ConnectionID, m.CredentialProposal)
	if err != nil {
		return err
	}
	connID, responder := m.ConnectionID, rc.Responder
	done := a.Credentials.PerformSend(context.WithoutCancel(ctx), rec,
		func(ctx context.Context, msg didcomm.Message) error {
			return responder.Send(ctx, msg, connID)
		})
	go func() {
		if err := <-done; err != nil {
			glog.Warningln("credential offer of", rec.CredentialExchangeID, "failed:", err)
		}
	}()
	return rc.Responder.SendReply(ctx, &CredExchange{
		Header:   replyHeader(pltype.AdminIssuerCredExchange, rc),
		Exchange: rec,
	})
}
