package connection

import (
	"context"
	"errors"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/dispatch"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/memstore"
	"github.com/findy-network/findy-agent-core/agent/trans"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/did"
	"github.com/findy-network/findy-agent-core/std/didexchange"
	"github.com/findy-network/findy-agent-core/std/didexchange/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	typeHello   = "https://example.org/hello/1.0/hello"
	waitTimeout = 5 * time.Second
)

type hello struct {
	didcomm.Header
}

func (h *hello) Validate() error { return nil }

// network routes the outbound messages to the test agents by the host of the
// endpoint. The recipient key is the last path segment like in the HTTP
// server.
type network struct {
	l      sync.Mutex
	agents map[string]*testAgent
}

func (n *network) Send(ctx context.Context, endpoint string, data []byte) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	n.l.Lock()
	a := n.agents[u.Host]
	n.l.Unlock()
	return a.disp.Handle(ctx, data, comm.Delivery{
		Origin:       comm.OriginNetwork,
		RecipientKey: path.Base(u.Path),
	})
}

type testAgent struct {
	name     string
	store    *memstore.Store
	wallet   *ssi.LocalWallet
	station  *bus.Station
	mgr      *Manager
	disp     *dispatch.Dispatcher
	out      *comm.Outbox
	messages *comm.Messenger
	hellos   chan *comm.RequestContext
}

func newNetwork(t *testing.T, names ...string) (*network, map[string]*testAgent) {
	n := &network{agents: make(map[string]*testAgent)}
	agents := make(map[string]*testAgent)
	for _, name := range names {
		a := &testAgent{
			name:    name,
			store:   memstore.New(),
			station: bus.New(),
			hellos:  make(chan *comm.RequestContext, 10),
		}
		a.wallet = ssi.NewLocalWallet(a.store)
		settings := &utils.Hub{}
		settings.SetLabel(name)
		settings.SetHostAddr("http://" + name)

		a.out = comm.NewOutbox(n, comm.OutboxConfig{
			Workers:         2,
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
		})
		a.out.Start()
		t.Cleanup(a.out.Close)
		a.messages = comm.NewMessenger(a.store, a.out)

		a.mgr = NewManager(Config{
			Storage:  a.store,
			Wallet:   a.wallet,
			Sender:   a.messages,
			Station:  a.station,
			Settings: settings,
		})
		reg := registry.New()
		require.NoError(t, Register(reg, a.mgr))
		require.NoError(t, reg.Register(registry.Descriptor{
			Type: typeHello,
			New:  func() didcomm.Message { return &hello{} },
			Handler: func(_ context.Context, rc *comm.RequestContext) error {
				a.hellos <- rc
				return nil
			},
		}))
		a.disp = dispatch.New(dispatch.Config{
			Registry: reg,
			Storage:  a.store,
			Wallet:   a.wallet,
			Sender:   a.messages,
			Station:  a.station,
			Settings: settings,
		})
		a.disp.AddHook(a.mgr.Activate)

		agents[name] = a
		n.agents[name] = a
	}
	return n, agents
}

func waitState(t *testing.T, a *testAgent, id string, state psm.ConnectionState) {
	t.Helper()
	rec, err := a.mgr.Get(context.Background(), id)
	require.NoError(t, err)
	if rec.State == state {
		return
	}
	_, ok := a.station.WaitState(id, waitTimeout, string(state))
	if !ok {
		rec, _ = a.mgr.Get(context.Background(), id)
		require.Equal(t, state, rec.State, "%s connection %s", a.name, id)
	}
}

func waitConnection(t *testing.T, a *testAgent, filter ListFilter) *psm.ConnectionRecord {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		recs, err := a.mgr.List(context.Background(), filter)
		require.NoError(t, err)
		if len(recs) > 0 {
			return recs[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: no connection for %+v", a.name, filter)
	return nil
}

func TestConnection_AutoAccept(t *testing.T) {
	ctx := context.Background()
	_, agents := newNetwork(t, "alice", "bob")
	alice, bob := agents["alice"], agents["bob"]

	aliceRec, inv, err := alice.mgr.CreateInvitation(ctx, InvitationOpts{Accept: psm.AcceptAuto})
	require.NoError(t, err)
	assert.Equal(t, psm.ConnInvitation, aliceRec.State)
	assert.Equal(t, psm.InitiatorSelf, aliceRec.Initiator)
	assert.Equal(t, inv.RecipientKey(), psm.Val(aliceRec.InvitationKey))
	assert.Equal(t, "alice", inv.Label)

	parsed, err := didexchange.ParseInvitation(inv.URL("http://alice"))
	require.NoError(t, err)

	bobRec, err := bob.mgr.ReceiveInvitation(ctx, parsed, psm.AcceptAuto)
	require.NoError(t, err)
	assert.Equal(t, psm.InitiatorExternal, bobRec.Initiator)
	assert.Equal(t, "alice", psm.Val(bobRec.TheirLabel))

	waitState(t, bob, bobRec.ConnectionID, psm.ConnActive)
	waitState(t, alice, aliceRec.ConnectionID, psm.ConnResponse)

	bobRec, err = bob.mgr.Get(ctx, bobRec.ConnectionID)
	require.NoError(t, err)
	aliceRec, err = alice.mgr.Get(ctx, aliceRec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, aliceRec.MyDID, psm.Val(bobRec.TheirDID))
	assert.Equal(t, bobRec.MyDID, psm.Val(aliceRec.TheirDID))
	assert.Equal(t, "bob", psm.Val(aliceRec.TheirLabel))

	// first message over the connection activates inviter's side
	require.NoError(t, bob.messages.Send(ctx, &hello{Header: didcomm.NewHeader(typeHello)},
		bobRec.ConnectionID))
	select {
	case rc := <-alice.hellos:
		require.NotNil(t, rc.Connection)
		assert.Equal(t, aliceRec.ConnectionID, rc.Connection.ConnectionID)
		assert.Equal(t, psm.ConnActive, rc.Connection.State)
	case <-time.After(waitTimeout):
		t.Fatal("hello not received")
	}
	waitState(t, alice, aliceRec.ConnectionID, psm.ConnActive)
}

func TestConnection_ManualAccept(t *testing.T) {
	ctx := context.Background()
	_, agents := newNetwork(t, "alice", "bob")
	alice, bob := agents["alice"], agents["bob"]

	aliceRec, inv, err := alice.mgr.CreateInvitation(ctx, InvitationOpts{
		Accept: psm.AcceptManual, TheirRole: "holder"})
	require.NoError(t, err)

	bobRec, err := bob.mgr.ReceiveInvitation(ctx, inv, psm.AcceptManual)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnInvitation, bobRec.State)

	bobRec, err = bob.mgr.AcceptInvitation(ctx, bobRec.ConnectionID, "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, psm.ConnRequest, bobRec.State)
	assert.NotNil(t, bobRec.RequestID)

	waitState(t, alice, aliceRec.ConnectionID, psm.ConnRequest)
	aliceRec, err = alice.mgr.Get(ctx, aliceRec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", psm.Val(aliceRec.TheirLabel))
	assert.Equal(t, "holder", psm.Val(aliceRec.TheirRole))
	assert.Equal(t, psm.Val(bobRec.RequestID), psm.Val(aliceRec.RequestID))

	_, err = alice.mgr.AcceptRequest(ctx, aliceRec.ConnectionID, "")
	require.NoError(t, err)
	waitState(t, bob, bobRec.ConnectionID, psm.ConnActive)

	_, err = alice.mgr.AcceptRequest(ctx, aliceRec.ConnectionID, "")
	assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))
}

func TestConnection_MultiUse(t *testing.T) {
	ctx := context.Background()
	_, agents := newNetwork(t, "alice", "bob", "carol")
	alice, bob, carol := agents["alice"], agents["bob"], agents["carol"]

	tmpl, inv, err := alice.mgr.CreateInvitation(ctx, InvitationOpts{
		Accept: psm.AcceptAuto, MultiUse: true})
	require.NoError(t, err)

	b, err := bob.mgr.ReceiveInvitation(ctx, inv, psm.AcceptAuto)
	require.NoError(t, err)
	c, err := carol.mgr.ReceiveInvitation(ctx, inv, psm.AcceptAuto)
	require.NoError(t, err)
	waitState(t, bob, b.ConnectionID, psm.ConnActive)
	waitState(t, carol, c.ConnectionID, psm.ConnActive)

	recs, err := alice.mgr.List(ctx, ListFilter{State: string(psm.ConnResponse)})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	tmpl, err = alice.mgr.Get(ctx, tmpl.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnInvitation, tmpl.State)
}

// recorder is a Sender which keeps the messages.
type recorder struct {
	l    sync.Mutex
	sent []didcomm.Message
}

func (r *recorder) Send(_ context.Context, msg didcomm.Message, _ string) error {
	r.l.Lock()
	defer r.l.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) last() didcomm.Message {
	r.l.Lock()
	defer r.l.Unlock()
	return r.sent[len(r.sent)-1]
}

func newLocal() (*Manager, *recorder) {
	store := memstore.New()
	rec := &recorder{}
	settings := &utils.Hub{}
	settings.SetHostAddr("http://local")
	return NewManager(Config{
		Storage:  store,
		Wallet:   ssi.NewLocalWallet(store),
		Sender:   rec,
		Station:  bus.New(),
		Settings: settings,
	}), rec
}

func newRequest(t *testing.T, w ssi.Wallet) *didexchange.Request {
	my, err := w.CreateLocalDID(context.Background(), "", nil)
	require.NoError(t, err)
	return &didexchange.Request{
		Header: didcomm.NewHeader(pltype.AriesConnectionRequest),
		Label:  "peer",
		Connection: &didexchange.Connection{
			DID:    my.DID,
			DIDDoc: did.NewDoc(my.DID, my.Verkey, "http://peer/a2a/"+my.Verkey, nil),
		},
	}
}

func TestReceiveRequest_Errors(t *testing.T) {
	ctx := context.Background()
	m, _ := newLocal()
	peer := ssi.NewLocalWallet(memstore.New())

	_, err := m.ReceiveRequest(ctx, newRequest(t, peer), "unknown-key")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))

	inviteRec, inv, err := m.CreateInvitation(ctx, InvitationOpts{Accept: psm.AcceptManual})
	require.NoError(t, err)

	req := newRequest(t, peer)
	rec, err := m.ReceiveRequest(ctx, req, inv.RecipientKey())
	require.NoError(t, err)
	assert.Equal(t, inviteRec.ConnectionID, rec.ConnectionID)
	assert.Equal(t, psm.ConnRequest, rec.State)

	// duplicate
	_, err = m.ReceiveRequest(ctx, req, inv.RecipientKey())
	assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))

	// once-used invitation
	_, err = m.ReceiveRequest(ctx, newRequest(t, peer), inv.RecipientKey())
	assert.Error(t, err)

	got, err := m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, psm.Val(got.RequestID))
	assert.Equal(t, psm.ConnRequest, got.State)
}

func TestReceiveResponse_BadSignature(t *testing.T) {
	ctx := context.Background()
	m, sent := newLocal()
	inviter := ssi.NewLocalWallet(memstore.New())

	invKey, err := inviter.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	inv := &didexchange.Invitation{
		Header:          didcomm.NewHeader(pltype.AriesConnectionInvitation),
		Label:           "inviter",
		RecipientKeys:   []string{invKey.Verkey},
		ServiceEndpoint: "http://inviter/a2a/" + invKey.Verkey,
	}
	rec, err := m.ReceiveInvitation(ctx, inv, psm.AcceptAuto)
	require.NoError(t, err)
	require.Equal(t, psm.ConnRequest, rec.State)
	req := sent.last().(*didexchange.Request)

	other, err := inviter.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	pw, err := inviter.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	resp := &didexchange.Response{
		Header: didcomm.NewReplyHeader(pltype.AriesConnectionResponse, &req.Header),
		Connection: &didexchange.Connection{
			DID:    pw.DID,
			DIDDoc: did.NewDoc(pw.DID, pw.Verkey, "http://inviter/a2a/"+pw.Verkey, nil),
		},
	}
	require.NoError(t, signature.Sign(ctx, resp, inviter, other.Verkey))

	rec, err = m.ReceiveResponse(ctx, resp)
	require.Error(t, err)
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainBadSign, pe.Explain)
	assert.Equal(t, fault.RetryNone, pe.WhoRetries)
	assert.Equal(t, psm.ConnError, rec.State)

	// correctly signed response cannot fix the failed connection
	require.NoError(t, signature.Sign(ctx, resp, inviter, invKey.Verkey))
	_, err = m.ReceiveResponse(ctx, resp)
	assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))
	got, err := m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnError, got.State)
	assert.Nil(t, got.TheirDID)
}

func TestManager_Admin(t *testing.T) {
	ctx := context.Background()
	m, _ := newLocal()

	static, my, err := m.CreateStatic(ctx, StaticOpts{
		Label:         "static peer",
		TheirDID:      "did:sov:Th7MpTaRZVRYnPiabds81Y",
		TheirVerkey:   "FYmoFw55GeQH7SRFa37dkx1d2dZ3zUF8ckg7wmL7ofN4",
		TheirEndpoint: "http://static/a2a",
	})
	require.NoError(t, err)
	assert.Equal(t, psm.ConnStatic, static.State)
	assert.Equal(t, my.DID, static.MyDID)
	assert.Equal(t, "Th7MpTaRZVRYnPiabds81Y", psm.Val(static.TheirDID))
	assert.Nil(t, static.TheirRole)

	_, _, err = m.CreateInvitation(ctx, InvitationOpts{})
	require.NoError(t, err)
	inv2, _, err := m.CreateInvitation(ctx, InvitationOpts{})
	require.NoError(t, err)
	_, err = m.Deactivate(ctx, inv2.ConnectionID)
	require.NoError(t, err)

	recs, err := m.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, psm.ConnStatic, recs[0].State)
	assert.Equal(t, psm.ConnInvitation, recs[1].State)
	assert.Equal(t, psm.ConnInactive, recs[2].State)

	recs, err = m.List(ctx, ListFilter{Initiator: psm.InitiatorSelf, State: string(psm.ConnInactive)})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	upd, err := m.Update(ctx, static.ConnectionID, "", "issuer")
	require.NoError(t, err)
	assert.Equal(t, "static peer", psm.Val(upd.TheirLabel))
	assert.Equal(t, "issuer", psm.Val(upd.TheirRole))

	_, err = m.EstablishInbound(ctx, static.ConnectionID, inv2.ConnectionID)
	assert.Equal(t, fault.CodeConnectionNotReady, fault.CodeOf(err))
	other, _, err := m.CreateStatic(ctx, StaticOpts{TheirDID: "D2", TheirVerkey: "K2"})
	require.NoError(t, err)
	inb, err := m.EstablishInbound(ctx, static.ConnectionID, other.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, other.ConnectionID, psm.Val(inb.InboundConnectionID))

	err = m.Delete(ctx, static.ConnectionID, static.ConnectionID)
	pe, ok := fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainCurrent, pe.Explain)

	require.NoError(t, m.Delete(ctx, static.ConnectionID, ""))
	err = m.Delete(ctx, static.ConnectionID, "")
	pe, ok = fault.AsProtocol(err)
	require.True(t, ok)
	assert.Equal(t, ExplainNotFound, pe.Explain)
	assert.Equal(t, fault.CodeNotFound, pe.Code)

	_, err = m.Update(ctx, "none", "x", "")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestCreateInvitation_Public(t *testing.T) {
	ctx := context.Background()
	m, _ := newLocal()

	_, _, err := m.CreateInvitation(ctx, InvitationOpts{Public: true})
	assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))

	pub, err := m.Wallet.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	_, err = m.Wallet.SetPublicDID(ctx, pub.DID)
	require.NoError(t, err)

	rec, inv, err := m.CreateInvitation(ctx, InvitationOpts{Public: true})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, did.URI(pub.DID), inv.DID)
	assert.NoError(t, inv.Validate())

	// requests to the public key get a record each
	peer := ssi.NewLocalWallet(memstore.New())
	r1, err := m.ReceiveRequest(ctx, newRequest(t, peer), pub.Verkey)
	require.NoError(t, err)
	r2, err := m.ReceiveRequest(ctx, newRequest(t, peer), pub.Verkey)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ConnectionID, r2.ConnectionID)
	assert.Equal(t, psm.ConnRequest, r1.State)
}

var _ trans.Transport = (*network)(nil)

func TestReceiveProblemReport(t *testing.T) {
	ctx := context.Background()
	m, sent := newLocal()
	inviter := ssi.NewLocalWallet(memstore.New())
	invKey, err := inviter.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)

	rec, err := m.ReceiveInvitation(ctx, &didexchange.Invitation{
		Header:          didcomm.NewHeader(pltype.AriesConnectionInvitation),
		RecipientKeys:   []string{invKey.Verkey},
		ServiceEndpoint: "http://inviter/a2a/" + invKey.Verkey,
	}, psm.AcceptAuto)
	require.NoError(t, err)
	req := sent.last().(*didexchange.Request)

	ok, err := m.ReceiveProblemReport(ctx, rec.ConnectionID, "other-thread", "no")
	require.NoError(t, err)
	assert.False(t, ok)

	// only the peer of the handshake can fail it
	for _, connID := range []string{"", "other-conn"} {
		ok, err = m.ReceiveProblemReport(ctx, connID, req.ThreadID(), "spoofed")
		require.NoError(t, err)
		assert.False(t, ok, connID)
	}
	got, err := m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnRequest, got.State)

	ok, err = m.ReceiveProblemReport(ctx, rec.ConnectionID, req.ThreadID(), "No invitation found.")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnError, got.State)
	assert.Equal(t, "No invitation found.", psm.Val(got.ErrorMsg))
}

type failingSender struct {
	err error
}

func (s failingSender) Send(context.Context, didcomm.Message, string) error {
	return s.err
}

func TestHandshake_SendFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newLocal()
	m.Sender = failingSender{err: errors.New("no route to host")}

	// invitee's request
	inviter := ssi.NewLocalWallet(memstore.New())
	invKey, err := inviter.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	rec, err := m.ReceiveInvitation(ctx, &didexchange.Invitation{
		Header:          didcomm.NewHeader(pltype.AriesConnectionInvitation),
		RecipientKeys:   []string{invKey.Verkey},
		ServiceEndpoint: "http://inviter/a2a/" + invKey.Verkey,
	}, psm.AcceptManual)
	require.NoError(t, err)
	_, err = m.AcceptInvitation(ctx, rec.ConnectionID, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route to host")

	got, err := m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnError, got.State)
	assert.Equal(t, "no route to host", psm.Val(got.ErrorMsg))

	// inviter's response
	_, inv, err := m.CreateInvitation(ctx, InvitationOpts{Accept: psm.AcceptManual})
	require.NoError(t, err)
	peer := ssi.NewLocalWallet(memstore.New())
	rec, err = m.ReceiveRequest(ctx, newRequest(t, peer), inv.RecipientKey())
	require.NoError(t, err)
	_, err = m.AcceptRequest(ctx, rec.ConnectionID, "")
	require.Error(t, err)

	got, err = m.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, psm.ConnError, got.State)
}
