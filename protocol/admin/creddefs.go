package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
)

type SendCredDef struct {
	didcomm.Header
	SchemaID string `json:"schema_id"`
	Tag      string `json:"tag,omitempty"`
}

func (m *SendCredDef) Validate() error {
	return (&didcomm.Check{}).Required("schema_id", m.SchemaID).Err()
}

type CredDefID struct {
	didcomm.Header
	CredDefID string `json:"cred_def_id"`
}

func (m *CredDefID) Validate() error { return nil }

type CredDefGet struct {
	didcomm.Header
	CredDefID string `json:"cred_def_id"`
}

func (m *CredDefGet) Validate() error {
	return (&didcomm.Check{}).Required("cred_def_id", m.CredDefID).Err()
}

type CredDef struct {
	didcomm.Header
	CredentialDefinition *ledger.CredDef `json:"credential_definition"`
}

func (m *CredDef) Validate() error { return nil }

type CredDefGetList struct {
	didcomm.Header
	SchemaID string `json:"schema_id,omitempty"`
}

func (m *CredDefGetList) Validate() error { return nil }

type CredDefList struct {
	didcomm.Header
	Results []*psm.CredDefRecord `json:"results"`
}

func (m *CredDefList) Validate() error { return nil }

func (a *Admin) credDefTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminCredDefSend,
			func() didcomm.Message { return &SendCredDef{} }, a.sendCredDef),
		adminOnly(pltype.AdminCredDefID,
			func() didcomm.Message { return &CredDefID{} }, pass),
		adminOnly(pltype.AdminCredDefGet,
			func() didcomm.Message { return &CredDefGet{} }, a.credDefGet),
		adminOnly(pltype.AdminCredDef,
			func() didcomm.Message { return &CredDef{} }, pass),
		adminOnly(pltype.AdminCredDefGetList,
			func() didcomm.Message { return &CredDefGetList{} }, a.credDefGetList),
		adminOnly(pltype.AdminCredDefList,
			func() didcomm.Message { return &CredDefList{} }, pass),
	}
}

func (a *Admin) sendCredDef(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*SendCredDef)
	rec, err := a.Credentials.CreateCredDef(ctx, m.SchemaID, m.Tag)
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &CredDefID{
		Header:    replyHeader(pltype.AdminCredDefID, rc),
		CredDefID: rec.CredDefID,
	})
}

func (a *Admin) credDefGet(ctx context.Context, rc *comm.RequestContext) error {
	cd, err := a.Credentials.GetCredDef(ctx, rc.Message.(*CredDefGet).CredDefID)
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &CredDef{
		Header:               replyHeader(pltype.AdminCredDef, rc),
		CredentialDefinition: cd,
	})
}

func (a *Admin) credDefGetList(ctx context.Context, rc *comm.RequestContext) error {
	recs, err := a.Credentials.CredDefs(ctx, rc.Message.(*CredDefGetList).SchemaID)
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &CredDefList{
		Header:  replyHeader(pltype.AdminCredDefList, rc),
		Results: recs,
	})
}
