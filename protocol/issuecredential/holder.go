package issuecredential

import (
	"context"
	"sort"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/findy-network/findy-agent-core/std/issuecredential"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// CreateProposal creates the holder's record and the proposal for the caller
// to send. The connection must be ready.
func (m *Manager) CreateProposal(ctx context.Context, connID, credDefID string, preview *issuecredential.Preview, comment string) (rec *psm.CredExchangeRecord, prop *issuecredential.Propose, err error) {
	defer err2.Handle(&err, "create proposal")

	try.To1(m.readyConnection(ctx, connID))
	if preview != nil && preview.Type == "" {
		preview.Type = pltype.IssueCredentialCredentialPreview
	}
	prop = &issuecredential.Propose{
		Header:             didcomm.NewHeader(pltype.IssueCredentialPropose),
		Comment:            comment,
		CredentialProposal: preview,
		CredDefID:          credDefID,
	}
	if err := prop.Validate(); err != nil {
		return nil, nil, fault.Wrap(fault.CodeInvalidRequest, "invalid proposal", err)
	}
	rec = psm.NewCredExchangeRecord(utils.UUID(), connID, prop.ThreadID(),
		psm.InitiatorSelf, psm.RoleHolder, psm.CredProposalSent)
	rec.CredentialDefinitionID = psm.Str(credDefID)
	rec.CredentialProposal = dto.ToJSONBytes(prop)
	try.To(m.save(ctx, rec))
	return rec, prop, nil
}

// SendProposal creates the proposal and sends it over the connection.
func (m *Manager) SendProposal(ctx context.Context, connID, credDefID string, preview *issuecredential.Preview, comment string) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "send proposal")

	rec, prop := try.To2(m.CreateProposal(ctx, connID, credDefID, preview, comment))
	if err := m.Sender.Send(ctx, prop, connID); err != nil {
		return m.exchangeFailed(ctx, rec.CredentialExchangeID, err)
	}
	glog.V(1).Infoln("proposal sent:", rec.CredentialExchangeID)
	return rec, nil
}

// ReceiveOffer records the offer and answers it with the request. The offer
// continues our proposal's thread or starts a new exchange.
func (m *Manager) ReceiveOffer(ctx context.Context, connID string, offer *issuecredential.Offer) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "receive offer")

	conn := try.To1(m.readyConnection(ctx, connID))
	var data issuecredential.OfferData
	if err := issuecredential.ReadAttach(offer.OffersAttach, &data); err != nil {
		return nil, fault.Wrap(fault.CodeInvalidRequest, "invalid credential offer", err)
	}
	if data.CredDefID == "" {
		return nil, fault.Invalid("credential offer has no cred_def_id")
	}

	rec = try.To1(m.thread(ctx, offer.ThreadID(), psm.RoleHolder))
	setOffer := func(r *psm.CredExchangeRecord) {
		r.CredentialDefinitionID = psm.Str(data.CredDefID)
		r.SchemaID = psm.Str(data.SchemaID)
		r.CredentialOffer = dto.ToJSONBytes(offer)
	}
	if rec == nil {
		rec = psm.NewCredExchangeRecord(utils.UUID(), connID, offer.ThreadID(),
			psm.InitiatorExternal, psm.RoleHolder, psm.CredOfferReceived)
		setOffer(rec)
		try.To(m.save(ctx, rec))
	} else {
		if rec.ConnectionID != connID {
			return nil, fault.Invalid(ExplainUnknownThread)
		}
		rec = try.To1(m.transit(ctx, rec.CredentialExchangeID, func(r *psm.CredExchangeRecord) error {
			setOffer(r)
			return r.SetState(psm.CredOfferReceived)
		}))
	}
	glog.V(1).Infoln("offer received:", rec.CredentialExchangeID)

	req := &issuecredential.Request{
		Header: threadHeader(pltype.IssueCredentialRequest, rec.ThreadID),
		RequestsAttach: issuecredential.NewAttach(issuecredential.RequestData{
			ProverDID: conn.MyDID,
			CredDefID: data.CredDefID,
			Nonce:     data.Nonce,
		}),
	}
	rec = try.To1(m.transit(ctx, rec.CredentialExchangeID, func(r *psm.CredExchangeRecord) error {
		r.CredentialRequest = dto.ToJSONBytes(req)
		return r.SetState(psm.CredRequestSent)
	}))
	if err := m.Sender.Send(ctx, req, connID); err != nil {
		return m.exchangeFailed(ctx, rec.CredentialExchangeID, err)
	}
	return rec, nil
}

// ReceiveCredential verifies the credential against the cred def on the
// ledger, stores it and acks it. A credential which doesn't verify abandons
// the exchange.
func (m *Manager) ReceiveCredential(ctx context.Context, connID string, issue *issuecredential.Issue) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "receive credential")

	rec = try.To1(m.thread(ctx, issue.ThreadID(), psm.RoleHolder))
	if rec == nil || rec.ConnectionID != connID {
		return nil, fault.Invalid(ExplainUnknownThread)
	}
	var cred issuecredential.Credential
	if err := issuecredential.ReadAttach(issue.CredentialsAttach, &cred); err != nil {
		return rec, fault.Wrap(fault.CodeInvalidRequest, "invalid credential", err)
	}
	if verr := m.verifyCredential(ctx, rec, &cred); verr != nil {
		if _, ok := fault.AsProtocol(verr); !ok {
			return rec, verr
		}
		try.To(m.abandon(ctx, rec.CredentialExchangeID, verr.Error()))
		return rec, verr
	}

	rec = try.To1(m.transit(ctx, rec.CredentialExchangeID, func(r *psm.CredExchangeRecord) error {
		r.Credential = dto.ToJSONBytes(&cred)
		return r.SetState(psm.CredCredentialReceived)
	}))
	stored := &psm.CredentialRecord{
		CredentialID: utils.UUID(),
		CredDefID:    cred.CredDefID,
		SchemaID:     cred.SchemaID,
		ConnectionID: connID,
		IssuerDID:    cred.IssuerDID,
		Attrs:        cred.Values,
		Signature:    cred.Signature,
		CreatedAt:    rec.UpdatedAt,
	}
	try.To(psm.Save(ctx, m.Storage, stored))
	rec = try.To1(m.transit(ctx, rec.CredentialExchangeID, func(r *psm.CredExchangeRecord) error {
		r.CredentialID = psm.Str(stored.CredentialID)
		return r.SetState(psm.CredStored)
	}))
	glog.V(1).Infoln("credential stored:", stored.CredentialID)

	ack := common.NewAck(pltype.IssueCredentialACK, &didcomm.Header{ID: rec.ThreadID})
	try.To(m.Sender.Send(ctx, ack, connID))
	return rec, nil
}

func (m *Manager) verifyCredential(ctx context.Context, rec *psm.CredExchangeRecord, cred *issuecredential.Credential) (err error) {
	defer err2.Handle(&err)

	if cred.CredDefID != psm.Val(rec.CredentialDefinitionID) {
		return fault.Invalid("credential of wrong cred def %s", cred.CredDefID)
	}
	cd := try.To1(m.credDefFromLedger(ctx, cred.CredDefID))
	sig, err := utils.DecodeB64(cred.Signature)
	if err != nil {
		return fault.Wrap(fault.CodeInvalidRequest, ExplainBadCredential, err)
	}
	ok, err := ssi.VerifyWithKey(cd.IssuerVerkey, cred.SigningPayload(), sig)
	if err != nil || !ok {
		return fault.Wrap(fault.CodeInvalidRequest, ExplainBadCredential, err)
	}
	return nil
}

// CredentialFilter selects the stored credentials, empty fields match all.
type CredentialFilter struct {
	ConnectionID string
	CredDefID    string
	SchemaID     string
}

// Credentials returns the holder's stored credentials in creation order.
func (m *Manager) Credentials(ctx context.Context, f CredentialFilter) ([]*psm.CredentialRecord, error) {
	tags := api.TagFilter{}
	for k, v := range map[string]string{
		"connection_id": f.ConnectionID,
		"cred_def_id":   f.CredDefID,
		"schema_id":     f.SchemaID,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	recs, err := psm.Query[psm.CredentialRecord](ctx, m.Storage, tags)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}
