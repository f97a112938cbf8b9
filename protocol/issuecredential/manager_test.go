package issuecredential

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/dispatch"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/memstore"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/protocol/notification"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/findy-network/findy-agent-core/std/issuecredential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link delivers the messages straight to the peer's dispatcher over the
// peer's connection.
type link struct {
	peer   *dispatch.Dispatcher
	connID string

	l    sync.Mutex
	sent []didcomm.Message
}

func (k *link) Send(ctx context.Context, msg didcomm.Message, _ string) error {
	k.l.Lock()
	k.sent = append(k.sent, msg)
	k.l.Unlock()
	return k.peer.Handle(ctx, didcomm.Marshal(msg), comm.Delivery{
		Origin:       comm.OriginNetwork,
		ConnectionID: k.connID,
	})
}

func (k *link) last() didcomm.Message {
	k.l.Lock()
	defer k.l.Unlock()
	if len(k.sent) == 0 {
		return nil
	}
	return k.sent[len(k.sent)-1]
}

// cancelingLedger cancels the caller's context when a cred def is published.
type cancelingLedger struct {
	ledger.Ledger
	cancel context.CancelFunc
}

func (l *cancelingLedger) Open(ctx context.Context) (ledger.Handle, error) {
	h, err := l.Ledger.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &cancelingHandle{Handle: h, cancel: l.cancel}, nil
}

type cancelingHandle struct {
	ledger.Handle
	cancel context.CancelFunc
}

func (h *cancelingHandle) PublishCredDef(ctx context.Context, issuerDID, issuerVerkey, schemaID, tag string) (*ledger.CredDef, error) {
	h.cancel()
	return h.Handle.PublishCredDef(ctx, issuerDID, issuerVerkey, schemaID, tag)
}

type failingSender struct {
	err error
}

func (s failingSender) Send(context.Context, didcomm.Message, string) error {
	return s.err
}

type agent struct {
	store  *memstore.Store
	wallet *ssi.LocalWallet
	mgr    *Manager
	disp   *dispatch.Dispatcher
	out    *link
	connID string
}

func newAgent(t *testing.T, l ledger.Ledger, connID string) *agent {
	ctx := context.Background()
	a := &agent{store: memstore.New(), out: &link{}, connID: connID}
	a.wallet = ssi.NewLocalWallet(a.store)
	a.mgr = NewManager(Config{
		Storage:  a.store,
		Wallet:   a.wallet,
		Ledger:   l,
		Sender:   a.out,
		Station:  bus.New(),
		Settings: &utils.Hub{},
	})
	reg := registry.New()
	require.NoError(t, Register(reg, a.mgr))
	require.NoError(t, notification.Register(reg, &notification.Notifier{
		Owners: []notification.ThreadOwner{a.mgr},
	}))
	a.disp = dispatch.New(dispatch.Config{
		Registry: reg,
		Storage:  a.store,
		Wallet:   a.wallet,
		Sender:   a.out,
		Settings: a.mgr.Settings,
	})

	my, err := a.wallet.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	conn := psm.NewConnectionRecord(connID, psm.InitiatorSelf, psm.AcceptAuto)
	conn.MyDID = my.DID
	conn.State = psm.ConnActive
	require.NoError(t, psm.Save(ctx, a.store, conn))
	return a
}

type fixture struct {
	ledger    *ledger.Bolt
	holder    *agent
	issuer    *agent
	issuerDID string
	credDefID string
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	f := &fixture{ledger: ledger.NewBolt(filepath.Join(t.TempDir(), "ledger.bolt"))}
	t.Cleanup(func() { _ = f.ledger.Close() })

	f.holder = newAgent(t, f.ledger, "conn-h")
	f.issuer = newAgent(t, f.ledger, "conn-i")
	f.holder.out.peer, f.holder.out.connID = f.issuer.disp, f.issuer.connID
	f.issuer.out.peer, f.issuer.out.connID = f.holder.disp, f.holder.connID

	pub, err := f.issuer.wallet.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	_, err = f.issuer.wallet.SetPublicDID(ctx, pub.DID)
	require.NoError(t, err)
	f.issuerDID = pub.DID

	schemaID := f.publishSchema(t, "email")
	cd, err := f.issuer.mgr.CreateCredDef(ctx, schemaID, "")
	require.NoError(t, err)
	require.Equal(t, psm.CredDefWritten, cd.State)
	f.credDefID = cd.CredDefID
	return f
}

func (f *fixture) publishSchema(t *testing.T, name string) string {
	var id string
	ctx := context.Background()
	require.NoError(t, ledger.With(ctx, f.ledger, func(h ledger.Handle) error {
		s, err := h.PublishSchema(ctx, f.issuerDID, name, "1.0", []string{name})
		if err == nil {
			id = s.ID
		}
		return err
	}))
	return id
}

func preview(name, value string) *issuecredential.Preview {
	return issuecredential.NewPreview([]issuecredential.Attribute{{Name: name, Value: value}})
}

func getExchange(t *testing.T, a *agent, role string) *psm.CredExchangeRecord {
	recs, err := a.mgr.List(context.Background(), ListFilter{Role: role})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestExchange_HolderProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.holder.mgr.SendProposal(ctx, "conn-h", f.credDefID,
		preview("email", "alice@example.com"), "please")
	require.NoError(t, err)
	f.issuer.mgr.Wait()

	h := getExchange(t, f.holder, psm.RoleHolder)
	assert.Equal(t, rec.CredentialExchangeID, h.CredentialExchangeID)
	assert.Equal(t, psm.CredStored, h.State)
	assert.NotNil(t, h.CredentialID)

	i := getExchange(t, f.issuer, psm.RoleIssuer)
	assert.Equal(t, psm.CredCredentialIssued, i.State)
	assert.Equal(t, h.ThreadID, i.ThreadID)
	assert.Equal(t, psm.InitiatorExternal, i.Initiator)
	assert.Equal(t, "conn-i", i.ConnectionID)

	creds, err := f.holder.mgr.Credentials(ctx, CredentialFilter{CredDefID: f.credDefID})
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, map[string]string{"email": "alice@example.com"}, creds[0].Attrs)
	assert.Equal(t, f.issuerDID, creds[0].IssuerDID)

	// the holder acked the credential
	ack, ok := f.holder.out.last().(*common.Ack)
	require.True(t, ok)
	assert.Equal(t, pltype.IssueCredentialACK, ack.Type)
	assert.Equal(t, h.ThreadID, ack.ThreadID())
}

func TestExchange_IssuerSend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.issuer.mgr.PrepareSend(ctx, f.credDefID, "conn-i", preview("email", "bob@example.com"))
	require.NoError(t, err)
	assert.Equal(t, psm.CredProposalReceived, rec.State)
	assert.True(t, rec.AutoIssue)

	err = <-f.issuer.mgr.PerformSend(ctx, rec, f.issuer.mgr.sendTo("conn-i"))
	require.NoError(t, err)

	i, err := f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredCredentialIssued, i.State)

	h := getExchange(t, f.holder, psm.RoleHolder)
	assert.Equal(t, psm.CredStored, h.State)
	assert.Equal(t, psm.InitiatorExternal, h.Initiator)
	assert.Equal(t, rec.ThreadID, h.ThreadID)
}

func TestCreateProposal_Connection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.holder.mgr.CreateProposal(ctx, "none", f.credDefID, nil, "")
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainConnNotFound, pe.Explain)

	conn := psm.NewConnectionRecord("pending", psm.InitiatorSelf, psm.AcceptAuto)
	conn.State = psm.ConnRequest
	require.NoError(t, psm.Save(ctx, f.holder.store, conn))
	_, _, err = f.holder.mgr.CreateProposal(ctx, "pending", f.credDefID, nil, "")
	assert.Equal(t, fault.CodeConnectionNotReady, fault.CodeOf(err))
	pe, ok = fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, "Connection invalid.", pe.Explain)

	recs, err := f.holder.mgr.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExchange_StaleThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.holder.mgr.SendProposal(ctx, "conn-h", f.credDefID, preview("email", "a@b.c"), "")
	require.NoError(t, err)
	f.issuer.mgr.Wait()

	var issue *issuecredential.Issue
	for _, m := range f.issuer.out.sent {
		if i, ok := m.(*issuecredential.Issue); ok {
			issue = i
		}
	}
	require.NotNil(t, issue)

	// resent credential is stale for the holder
	require.NoError(t, f.issuer.out.Send(ctx, issue, ""))
	pr, ok := f.holder.out.last().(*common.ProblemReport)
	require.True(t, ok)
	assert.Equal(t, ExplainStale, pr.ExplainLongTxt)
	assert.Equal(t, issue.ThreadID(), pr.ThreadID())

	h := getExchange(t, f.holder, psm.RoleHolder)
	assert.Equal(t, psm.CredStored, h.State)
	i := getExchange(t, f.issuer, psm.RoleIssuer)
	assert.Equal(t, psm.CredCredentialIssued, i.State)
}

func TestExchange_ProblemReportAbandons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, prop, err := f.holder.mgr.CreateProposal(ctx, "conn-h", f.credDefID, preview("email", "x"), "")
	require.NoError(t, err)

	pr := common.NewProblemReport(&prop.Header, "no such credential", fault.RetryNone)

	// the thread isn't abandoned by the other connections
	require.NoError(t, f.holder.disp.Handle(ctx, didcomm.Marshal(pr), comm.Delivery{
		Origin:       comm.OriginNetwork,
		ConnectionID: "conn-other",
	}))
	ok, err := f.holder.mgr.ReceiveProblemReport(ctx, "", prop.ThreadID(), "anonymous")
	require.NoError(t, err)
	assert.False(t, ok)
	rec, err = f.holder.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredProposalSent, rec.State)

	require.NoError(t, f.issuer.out.Send(ctx, pr, ""))

	rec, err = f.holder.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
	assert.Equal(t, "no such credential", psm.Val(rec.ErrorMsg))

	offer := &issuecredential.Offer{
		Header:            threadHeader(pltype.IssueCredentialOffer, rec.ThreadID),
		CredentialPreview: *preview("email", "x"),
		OffersAttach: issuecredential.NewAttach(issuecredential.OfferData{
			CredDefID: f.credDefID,
		}),
	}
	_, err = f.holder.mgr.ReceiveOffer(ctx, "conn-h", offer)
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainStale, pe.Explain)

	rec, err = f.holder.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
}

func TestPerformSend_Failure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	missing := psm.NewCredDefRecord(f.issuerDID+":3:CL:99:default", "S", f.issuerDID, "default")
	missing.State = psm.CredDefWritten
	require.NoError(t, psm.Save(ctx, f.issuer.store, missing))

	rec, err := f.issuer.mgr.PrepareSend(ctx, missing.CredDefID, "conn-i", preview("email", "x"))
	require.NoError(t, err)
	err = <-f.issuer.mgr.PerformSend(ctx, rec, f.issuer.mgr.sendTo("conn-i"))
	require.Error(t, err)

	rec, err = f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)

	pr, ok := f.issuer.out.last().(*common.ProblemReport)
	require.True(t, ok)
	assert.Equal(t, ExplainCredDefNotFound, pr.ExplainLongTxt)
	assert.Equal(t, rec.ThreadID, pr.ThreadID())
}

func TestPerformSend_Panic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.issuer.mgr.PrepareSend(ctx, f.credDefID, "conn-i", preview("email", "x"))
	require.NoError(t, err)

	var sent []didcomm.Message
	send := func(_ context.Context, msg didcomm.Message) error {
		if _, ok := msg.(*issuecredential.Offer); ok {
			panic("transport exploded")
		}
		sent = append(sent, msg)
		return nil
	}
	err = <-f.issuer.mgr.PerformSend(ctx, rec, send)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport exploded")

	rec, err = f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
	require.Len(t, sent, 1)
	pr := sent[0].(*common.ProblemReport)
	assert.Equal(t, ExplainIssueFailed, pr.ExplainLongTxt)
}

func TestPerformSend_ShieldedLedgerWrite(t *testing.T) {
	f := newFixture(t)
	bg := context.Background()

	schemaID := f.publishSchema(t, "phone")
	var seq uint64
	require.NoError(t, ledger.With(bg, f.ledger, func(h ledger.Handle) error {
		s, err := h.GetSchema(bg, schemaID)
		if err == nil {
			seq = s.SeqNo
		}
		return err
	}))
	cd := psm.NewCredDefRecord(ledger.CredDefID(f.issuerDID, seq, DefaultTag),
		schemaID, f.issuerDID, DefaultTag)
	require.NoError(t, psm.Save(bg, f.issuer.store, cd))

	rec, err := f.issuer.mgr.PrepareSend(bg, cd.CredDefID, "conn-i", preview("phone", "123"))
	require.NoError(t, err)

	// the caller goes away while the cred def is being published
	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	f.issuer.mgr.Ledger = &cancelingLedger{Ledger: f.ledger, cancel: cancel}
	err = <-f.issuer.mgr.PerformSend(ctx, rec, f.issuer.mgr.sendTo("conn-i"))
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)

	// the write was finished and recorded
	got, err := psm.Get[psm.CredDefRecord](bg, f.issuer.store, cd.CredDefID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredDefWritten, got.State)
	onLedger, err := f.issuer.mgr.GetCredDef(bg, cd.CredDefID)
	require.NoError(t, err)
	assert.Equal(t, schemaID, onLedger.SchemaID)

	// and the exchange isn't left in the middle
	rec, err = f.issuer.mgr.Get(bg, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.True(t, rec.State.Terminal())
	assert.Equal(t, 0, f.ledger.OpenHandles())
}

// offerSent stores the issuer's exchange waiting for the holder's request.
func (f *fixture) offerSent(t *testing.T, credDefID string) *psm.CredExchangeRecord {
	rec := psm.NewCredExchangeRecord(utils.UUID(), "conn-i", utils.UUID(),
		psm.InitiatorSelf, psm.RoleIssuer, psm.CredOfferSent)
	rec.CredentialDefinitionID = psm.Str(credDefID)
	rec.CredentialOffer = didcomm.Marshal(&issuecredential.Offer{
		Header:            threadHeader(pltype.IssueCredentialOffer, rec.ThreadID),
		CredentialPreview: *preview("email", "x"),
		OffersAttach: issuecredential.NewAttach(issuecredential.OfferData{
			CredDefID: credDefID,
		}),
	})
	require.NoError(t, psm.Save(context.Background(), f.issuer.store, rec))
	return rec
}

func credRequest(thid, credDefID string) *issuecredential.Request {
	return &issuecredential.Request{
		Header: threadHeader(pltype.IssueCredentialRequest, thid),
		RequestsAttach: issuecredential.NewAttach(issuecredential.RequestData{
			CredDefID: credDefID,
		}),
	}
}

func TestReceiveRequest_SigningFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	missing := f.issuerDID + ":3:CL:99:default"
	rec := f.offerSent(t, missing)

	_, err := f.issuer.mgr.ReceiveRequest(ctx, "conn-i", credRequest(rec.ThreadID, missing))
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainCredDefNotFound, pe.Explain)

	rec, err = f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
	assert.Nil(t, f.issuer.out.last())

	// the holder's retry gets the stale thread, not a second signing
	_, err = f.issuer.mgr.ReceiveRequest(ctx, "conn-i", credRequest(rec.ThreadID, missing))
	pe, ok = fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainStale, pe.Explain)
}

func TestReceiveRequest_SendFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := f.offerSent(t, f.credDefID)
	f.issuer.mgr.Sender = failingSender{err: errors.New("connection refused")}

	_, err := f.issuer.mgr.ReceiveRequest(ctx, "conn-i", credRequest(rec.ThreadID, f.credDefID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	rec, err = f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
	assert.Equal(t, "connection refused", psm.Val(rec.ErrorMsg))
}

func TestReceiveRequest_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := f.offerSent(t, f.credDefID)
	rec.State = psm.CredProposalReceived
	require.NoError(t, psm.Save(ctx, f.issuer.store, rec))

	_, err := f.issuer.mgr.ReceiveRequest(ctx, "conn-i", credRequest(rec.ThreadID, f.credDefID))
	assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))

	// a live exchange isn't abandoned by a message out of order
	rec, err = f.issuer.mgr.Get(ctx, rec.CredentialExchangeID)
	require.NoError(t, err)
	assert.Equal(t, psm.CredProposalReceived, rec.State)
}

func TestHolder_SendFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.holder.mgr.Sender = failingSender{err: errors.New("host unreachable")}

	_, err := f.holder.mgr.SendProposal(ctx, "conn-h", f.credDefID, preview("email", "x"), "")
	require.Error(t, err)
	rec := getExchange(t, f.holder, psm.RoleHolder)
	assert.Equal(t, psm.CredAbandoned, rec.State)

	offer := &issuecredential.Offer{
		Header:            threadHeader(pltype.IssueCredentialOffer, "offer-thread"),
		CredentialPreview: *preview("email", "x"),
		OffersAttach: issuecredential.NewAttach(issuecredential.OfferData{
			CredDefID: f.credDefID,
		}),
	}
	_, err = f.holder.mgr.ReceiveOffer(ctx, "conn-h", offer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host unreachable")

	recs, err := f.holder.mgr.List(ctx, ListFilter{State: string(psm.CredRequestSent)})
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, err = f.holder.mgr.List(ctx, ListFilter{State: string(psm.CredAbandoned)})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestReceiveCredential_BadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := psm.NewCredExchangeRecord("ex-1", "conn-h", "thread-1",
		psm.InitiatorSelf, psm.RoleHolder, psm.CredRequestSent)
	rec.CredentialDefinitionID = psm.Str(f.credDefID)
	require.NoError(t, psm.Save(ctx, f.holder.store, rec))

	forger, err := f.holder.wallet.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	cred := &issuecredential.Credential{
		CredDefID: f.credDefID,
		IssuerDID: f.issuerDID,
		Values:    map[string]string{"email": "mallory@example.com"},
	}
	sig, err := f.holder.wallet.Sign(ctx, forger.Verkey, cred.SigningPayload())
	require.NoError(t, err)
	cred.Signature = utils.EncodeB64(sig)

	_, err = f.holder.mgr.ReceiveCredential(ctx, "conn-h", &issuecredential.Issue{
		Header:            threadHeader(pltype.IssueCredentialIssue, "thread-1"),
		CredentialsAttach: issuecredential.NewAttach(cred),
	})
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainBadCredential, pe.Explain)

	rec, err = f.holder.mgr.Get(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, psm.CredAbandoned, rec.State)
	creds, err := f.holder.mgr.Credentials(ctx, CredentialFilter{})
	require.NoError(t, err)
	assert.Empty(t, creds)
	assert.Nil(t, f.holder.out.last())
}

func TestAbandonStale(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	m := NewManager(Config{Storage: store})

	old := time.Now().UTC().Add(-2 * time.Hour)
	for _, r := range []struct {
		id    string
		state psm.CredState
		at    time.Time
	}{
		{"old-offer", psm.CredOfferSent, old},
		{"old-stored", psm.CredStored, old},
		{"fresh", psm.CredRequestSent, time.Now().UTC()},
	} {
		rec := psm.NewCredExchangeRecord(r.id, "c", "t-"+r.id, psm.InitiatorSelf, psm.RoleIssuer, r.state)
		rec.UpdatedAt = r.at
		require.NoError(t, psm.Save(ctx, store, rec))
	}

	n, err := m.AbandonStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]psm.CredState{
		"old-offer":  psm.CredAbandoned,
		"old-stored": psm.CredStored,
		"fresh":      psm.CredRequestSent,
	} {
		rec, err := m.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, rec.State, id)
	}
	n, err = m.AbandonStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
