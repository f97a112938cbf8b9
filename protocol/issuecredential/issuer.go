package issuecredential

import (
	"context"
	"fmt"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/findy-network/findy-agent-core/std/issuecredential"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// ReceiveProposal creates the issuer's record for the holder's proposal and
// starts PerformSend for the offer. The offer is built in the background
// with a context which isn't cancelled with the ctx.
func (m *Manager) ReceiveProposal(ctx context.Context, connID string, prop *issuecredential.Propose) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "receive proposal")

	old := try.To1(m.thread(ctx, prop.ThreadID(), psm.RoleIssuer))
	if old != nil {
		return old, fault.Invalid(ExplainStale)
	}
	rec = psm.NewCredExchangeRecord(utils.UUID(), connID, prop.ThreadID(),
		psm.InitiatorExternal, psm.RoleIssuer, psm.CredProposalReceived)
	rec.CredentialDefinitionID = psm.Str(prop.CredDefID)
	if prop.SchemaID != "" {
		rec.SchemaID = psm.Str(prop.SchemaID)
	}
	rec.CredentialProposal = dto.ToJSONBytes(prop)
	rec.AutoIssue = true
	try.To(m.save(ctx, rec))
	glog.V(1).Infoln("proposal received:", rec.CredentialExchangeID)

	m.PerformSend(context.WithoutCancel(ctx), rec, m.sendTo(connID))
	return rec, nil
}

// PrepareSend creates the issuer's record for the credential we offer on our
// own initiative. The proposal is synthesized from the attributes. The record
// is persisted and returned right away; PerformSend continues from it.
func (m *Manager) PrepareSend(ctx context.Context, credDefID, connID string, preview *issuecredential.Preview) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "prepare send")

	try.To1(m.readyConnection(ctx, connID))
	cd, err := psm.Get[psm.CredDefRecord](ctx, m.Storage, credDefID)
	if psm.IsNotFound(err) {
		return nil, fault.NotFound(ExplainCredDefNotFound)
	}
	try.To(err)

	if preview.Type == "" {
		preview.Type = pltype.IssueCredentialCredentialPreview
	}
	prop := &issuecredential.Propose{
		Header:             didcomm.NewHeader(pltype.IssueCredentialPropose),
		CredentialProposal: preview,
		CredDefID:          credDefID,
		SchemaID:           cd.SchemaID,
		IssuerDid:          cd.IssuerDID,
	}
	try.To(prop.Validate())

	rec = psm.NewCredExchangeRecord(utils.UUID(), connID, prop.ThreadID(),
		psm.InitiatorSelf, psm.RoleIssuer, psm.CredProposalReceived)
	rec.CredentialDefinitionID = psm.Str(credDefID)
	rec.SchemaID = psm.Str(cd.SchemaID)
	rec.CredentialProposal = dto.ToJSONBytes(prop)
	rec.AutoIssue = true
	try.To(m.save(ctx, rec))
	return rec, nil
}

// PerformSend builds the offer of the record and hands it to the send in its
// own goroutine. The credential definition is written to the ledger first if
// it's not there yet, and that write is shielded from the cancellation of
// the ctx. Failures and panics abandon the exchange and the problem report is
// sent with the send. The returned channel gets the result and it's closed
// after that.
func (m *Manager) PerformSend(ctx context.Context, rec *psm.CredExchangeRecord, send SendFunc) <-chan error {
	done := make(chan error, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)

		err := m.runSend(ctx, rec, send)
		if err != nil {
			m.sendFailed(ctx, rec, err, send)
		}
		done <- err
	}()
	return done
}

func (m *Manager) runSend(ctx context.Context, rec *psm.CredExchangeRecord, send SendFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("perform send panic: %v", r)
		}
	}()
	defer err2.Handle(&err, "perform send")

	cd := try.To1(m.ensureCredDef(ctx, psm.Val(rec.CredentialDefinitionID)))
	try.To(ctx.Err())

	var prop issuecredential.Propose
	dto.FromJSON(rec.CredentialProposal, &prop)
	preview := issuecredential.NewPreview(nil)
	if prop.CredentialProposal != nil {
		preview.Attributes = prop.CredentialProposal.Attributes
	}
	offer := &issuecredential.Offer{
		Header:            threadHeader(pltype.IssueCredentialOffer, rec.ThreadID),
		Comment:           prop.Comment,
		CredentialPreview: *preview,
		OffersAttach: issuecredential.NewAttach(issuecredential.OfferData{
			SchemaID:  cd.SchemaID,
			CredDefID: cd.ID,
			Nonce:     utils.NewNonceStr(),
		}),
	}
	try.To1(m.transit(ctx, rec.CredentialExchangeID, func(r *psm.CredExchangeRecord) error {
		r.SchemaID = psm.Str(cd.SchemaID)
		r.CredentialOffer = dto.ToJSONBytes(offer)
		return r.SetState(psm.CredOfferSent)
	}))
	try.To(send(ctx, offer))
	glog.V(1).Infoln("offer sent:", rec.CredentialExchangeID)
	return nil
}

// sendFailed abandons the exchange and reports the failure to the holder. It
// runs even when the ctx is cancelled.
func (m *Manager) sendFailed(ctx context.Context, rec *psm.CredExchangeRecord, cause error, send SendFunc) {
	glog.Errorln("credential exchange", rec.CredentialExchangeID, "failed:", cause)
	ctx = context.WithoutCancel(ctx)

	explain := ExplainIssueFailed
	if pe, ok := fault.AsProtocol(cause); ok {
		explain = pe.Explain
	}
	if err := m.abandon(ctx, rec.CredentialExchangeID, cause.Error()); err != nil {
		glog.Errorln("abandon exchange:", err)
	}
	pr := common.NewProblemReport(&didcomm.Header{ID: rec.ThreadID}, explain, fault.RetryNone)
	if err := safeSend(ctx, send, pr); err != nil {
		glog.Errorln("problem report of exchange", rec.CredentialExchangeID, "not sent:", err)
	}
}

func safeSend(ctx context.Context, send SendFunc, msg didcomm.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	return send(ctx, msg)
}

// ReceiveRequest issues the credential for the request. The credential is
// signed with the key of the cred def.
func (m *Manager) ReceiveRequest(ctx context.Context, connID string, req *issuecredential.Request) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err, "receive request")

	rec = try.To1(m.thread(ctx, req.ThreadID(), psm.RoleIssuer))
	if rec == nil {
		return nil, fault.Invalid(ExplainUnknownThread)
	}
	if rec.ConnectionID != connID {
		return nil, fault.Invalid(ExplainUnknownThread)
	}
	var data issuecredential.RequestData
	if err := issuecredential.ReadAttach(req.RequestsAttach, &data); err != nil {
		return rec, fault.Wrap(fault.CodeInvalidRequest, "invalid credential request", err)
	}
	if data.CredDefID != psm.Val(rec.CredentialDefinitionID) {
		return rec, fault.Invalid("credential request for wrong cred def %s", data.CredDefID)
	}
	if !rec.State.CanTransitTo(psm.CredRequestReceived) {
		return rec, fault.Invalid("credential exchange %s cannot move from %s to %s",
			rec.CredentialExchangeID, rec.State, psm.CredRequestReceived)
	}
	id := rec.CredentialExchangeID

	cred, err := m.signCredential(ctx, rec)
	if err != nil {
		return m.exchangeFailed(ctx, id, err)
	}
	issue := &issuecredential.Issue{
		Header:            threadHeader(pltype.IssueCredentialIssue, rec.ThreadID),
		CredentialsAttach: issuecredential.NewAttach(cred),
	}
	rec = try.To1(m.transit(ctx, id, func(r *psm.CredExchangeRecord) error {
		r.CredentialRequest = dto.ToJSONBytes(req)
		r.Credential = dto.ToJSONBytes(cred)
		return r.SetState(psm.CredRequestReceived)
	}))
	if err := m.Sender.Send(ctx, issue, connID); err != nil {
		return m.exchangeFailed(ctx, id, err)
	}
	rec = try.To1(m.transit(ctx, id, func(r *psm.CredExchangeRecord) error {
		return r.SetState(psm.CredCredentialIssued)
	}))
	glog.V(1).Infoln("credential issued:", rec.CredentialExchangeID)
	return rec, nil
}

func (m *Manager) signCredential(ctx context.Context, rec *psm.CredExchangeRecord) (cred *issuecredential.Credential, err error) {
	defer err2.Handle(&err, "sign credential")

	cd := try.To1(m.credDefFromLedger(ctx, psm.Val(rec.CredentialDefinitionID)))
	var offer issuecredential.Offer
	dto.FromJSON(rec.CredentialOffer, &offer)

	cred = &issuecredential.Credential{
		SchemaID:  cd.SchemaID,
		CredDefID: cd.ID,
		IssuerDID: ledger.IssuerOf(cd.ID),
		Values:    offer.CredentialPreview.Values(),
	}
	sig := try.To1(m.Wallet.Sign(ctx, cd.IssuerVerkey, cred.SigningPayload()))
	cred.Signature = utils.EncodeB64(sig)
	return cred, nil
}

// ReceiveAck is the holder's ack of the issued credential. The issuer's
// exchange is already finished so it's only logged.
func (m *Manager) ReceiveAck(_ context.Context, ack *common.Ack) error {
	glog.V(1).Infoln("credential ack", ack.Status, "thread:", ack.ThreadID())
	return nil
}
