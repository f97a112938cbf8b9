/*
Package connection implements the connections/1.0 protocol: the invitation,
request and response which establish the pairwise connection, and the
connection management of the admin surface.

Every state change goes through psm.ConnectionRecord.SetState which enforces
the transition table, and every read-modify-write of a record is made while
holding the record's lock.
*/
package connection

import (
	"context"
	"errors"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/did"
	"github.com/findy-network/findy-agent-core/std/didexchange"
	"github.com/findy-network/findy-agent-core/std/didexchange/signature"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	ExplainNotFound    = "Connection not found."
	ExplainCurrent     = "Current connection cannot be deleted."
	ExplainNoInvite    = "No invitation found for the recipient key."
	ExplainOutOfOrder  = "Connection is not in a state to accept the message."
	ExplainBadSign     = "Connection signature is not valid."
	ExplainNoPublicDID = "No public DID in the wallet."
)

type Config struct {
	Storage  api.Storage
	Wallet   ssi.Wallet
	Ledger   ledger.Ledger // for public invitations, optional
	Sender   comm.Sender
	Station  *bus.Station
	Settings *utils.Hub

	// OnActive is called when our invitation was accepted and the
	// connection became active on our side as the invitee.
	OnActive func(ctx context.Context, rec *psm.ConnectionRecord)
}

type Manager struct {
	Config
	locks psm.Locker
}

func NewManager(cfg Config) *Manager {
	if cfg.Settings == nil {
		cfg.Settings = utils.Settings
	}
	return &Manager{Config: cfg}
}

// InvitationOpts are the options of the new invitation.
type InvitationOpts struct {
	Label     string
	TheirRole string
	Accept    string
	Public    bool
	MultiUse  bool
}

// CreateInvitation creates the invitation and the connection record waiting
// the request. Public invitation uses our public DID and it doesn't have the
// record: the record is created when the request arrives.
func (m *Manager) CreateInvitation(ctx context.Context, opts InvitationOpts) (rec *psm.ConnectionRecord, inv *didexchange.Invitation, err error) {
	defer err2.Handle(&err, "create invitation")

	label := opts.Label
	if label == "" {
		label = m.Settings.Label()
	}
	inv = &didexchange.Invitation{
		Header: didcomm.NewHeader(pltype.AriesConnectionInvitation),
		Label:  label,
	}
	if opts.Public {
		pub := try.To1(m.Wallet.PublicDID(ctx))
		if pub == nil {
			return nil, nil, fault.Invalid(ExplainNoPublicDID)
		}
		inv.DID = did.URI(pub.DID)
		return nil, inv, nil
	}

	key := try.To1(m.Wallet.CreateLocalDID(ctx, "", map[string]string{"invitation": "true"}))
	inv.RecipientKeys = []string{key.Verkey}
	inv.ServiceEndpoint = m.Settings.Endpoint(key.Verkey)

	rec = psm.NewConnectionRecord(utils.UUID(), psm.InitiatorSelf, acceptOf(opts.Accept, m.Settings))
	rec.InvitationKey = psm.Str(key.Verkey)
	if opts.TheirRole != "" {
		rec.TheirRole = psm.Str(opts.TheirRole)
	}
	if opts.MultiUse {
		rec.InvitationMode = psm.InvitationMulti
	}
	try.To(rec.SetState(psm.ConnInvitation))
	try.To(m.save(ctx, rec))
	glog.V(1).Infoln("invitation created:", rec)
	return rec, inv, nil
}

// ReceiveInvitation stores the invitation and creates the record for it.
// With auto accept the request is sent right away.
func (m *Manager) ReceiveInvitation(ctx context.Context, inv *didexchange.Invitation, accept string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "receive invitation")

	if err := inv.Validate(); err != nil {
		return nil, fault.Wrap(fault.CodeInvalidRequest, "Invalid invitation.", err)
	}
	invRec := &psm.InvitationRecord{
		Label:           inv.Label,
		RecipientKeys:   inv.RecipientKeys,
		RoutingKeys:     inv.RoutingKeys,
		ServiceEndpoint: inv.ServiceEndpoint,
		DID:             inv.DID,
	}
	if inv.DID != "" {
		try.To(m.resolvePublic(ctx, invRec))
	}

	rec = psm.NewConnectionRecord(utils.UUID(), psm.InitiatorExternal, acceptOf(accept, m.Settings))
	rec.InvitationKey = psm.Str(invRec.RecipientKeys[0])
	if inv.Label != "" {
		rec.TheirLabel = psm.Str(inv.Label)
	}
	try.To(rec.SetState(psm.ConnInvitation))
	invRec.ConnectionID = rec.ConnectionID
	try.To(psm.Save(ctx, m.Storage, invRec))
	try.To(m.save(ctx, rec))
	glog.V(1).Infoln("invitation received:", rec)

	if rec.Accept == psm.AcceptAuto {
		return m.AcceptInvitation(ctx, rec.ConnectionID, "", "")
	}
	return rec, nil
}

// resolvePublic reads the verkey and the endpoint of the public DID from the
// ledger.
func (m *Manager) resolvePublic(ctx context.Context, invRec *psm.InvitationRecord) error {
	if m.Ledger == nil {
		return fault.Invalid("public invitations are not supported")
	}
	return ledger.With(ctx, m.Ledger, func(h ledger.Handle) error {
		nym, err := h.GetNym(ctx, did.Raw(invRec.DID))
		if ledger.IsNotFound(err) {
			return fault.NotFound("DID %s not found from ledger", invRec.DID)
		} else if err != nil {
			return fault.Infra("get nym", err)
		}
		if nym.Endpoint == "" {
			return fault.Invalid("DID %s has no endpoint", invRec.DID)
		}
		invRec.RecipientKeys = []string{nym.Verkey}
		invRec.ServiceEndpoint = nym.Endpoint
		return nil
	})
}

// AcceptInvitation creates our DID for the connection and sends the request
// to the inviter.
func (m *Manager) AcceptInvitation(ctx context.Context, connID, myLabel, myEndpoint string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "accept invitation")

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	if rec.Initiator != psm.InitiatorExternal || rec.State != psm.ConnInvitation {
		return nil, fault.Invalid(ExplainOutOfOrder)
	}
	my, doc := try.To2(m.newPairwiseDID(ctx, myEndpoint))
	if myLabel == "" {
		myLabel = m.Settings.Label()
	}
	req := &didexchange.Request{
		Header:     didcomm.NewHeader(pltype.AriesConnectionRequest),
		Label:      myLabel,
		Connection: &didexchange.Connection{DID: my.DID, DIDDoc: doc},
	}
	rec.MyDID = my.DID
	rec.RequestID = psm.Str(req.ID)
	try.To(rec.SetState(psm.ConnRequest))
	try.To(m.save(ctx, rec))

	if err := m.Sender.Send(ctx, req, connID); err != nil {
		return m.sendFailed(ctx, rec, err)
	}
	glog.V(1).Infoln("request sent:", rec)
	return rec, nil
}

// ReceiveRequest handles the request sent to our invitation key. The record
// of the invitation moves to request state; multi-use invitation spawns a new
// record for every request. With auto accept the response is sent right away.
func (m *Manager) ReceiveRequest(ctx context.Context, req *didexchange.Request, recipientKey string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "receive request")

	dups := try.To1(psm.Query[psm.ConnectionRecord](ctx, m.Storage,
		api.TagFilter{"request_id": req.ID}))
	if len(dups) > 0 {
		return dups[0], fault.Invalid(ExplainOutOfOrder)
	}
	tmpl := try.To1(m.invitationFor(ctx, recipientKey))

	rec, err = m.storeRequest(ctx, tmpl, req)
	if err != nil {
		return rec, err
	}
	glog.V(1).Infoln("request received:", rec)

	if rec.Accept == psm.AcceptAuto {
		return m.AcceptRequest(ctx, rec.ConnectionID, "")
	}
	return rec, nil
}

func (m *Manager) storeRequest(ctx context.Context, tmpl *psm.ConnectionRecord, req *didexchange.Request) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err)

	if tmpl.InvitationMode == psm.InvitationMulti {
		rec = psm.NewConnectionRecord(utils.UUID(), psm.InitiatorSelf, tmpl.Accept)
		rec.InvitationKey = tmpl.InvitationKey
		rec.TheirRole = tmpl.TheirRole
		try.To(rec.SetState(psm.ConnInvitation))
	} else {
		unlock := m.locks.Lock(tmpl.ConnectionID)
		defer unlock()
		rec = try.To1(m.get(ctx, tmpl.ConnectionID))
		if rec.State != psm.ConnInvitation {
			return rec, fault.Invalid(ExplainOutOfOrder)
		}
	}

	theirDID := did.Raw(req.Connection.DID)
	try.To(psm.Save(ctx, m.Storage, &psm.DIDDocRecord{DID: theirDID, Doc: req.Connection.DIDDoc}))
	rec.TheirDID = psm.Str(theirDID)
	rec.TheirLabel = psm.Str(req.Label)
	rec.RequestID = psm.Str(req.ID)
	try.To(rec.SetState(psm.ConnRequest))
	try.To(m.save(ctx, rec))
	return rec, nil
}

// invitationFor finds the record which waits the requests to the key. Public
// DID gets a new record for every request.
func (m *Manager) invitationFor(ctx context.Context, recipientKey string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err)

	if recipientKey != "" {
		recs := try.To1(psm.Query[psm.ConnectionRecord](ctx, m.Storage, api.TagFilter{
			"invitation_key": recipientKey,
			"initiator":      psm.InitiatorSelf,
			"state":          string(psm.ConnInvitation),
		}))
		for _, r := range recs {
			if r.InvitationMode == psm.InvitationMulti {
				return r, nil
			}
		}
		if len(recs) > 0 {
			return recs[0], nil
		}
		pub := try.To1(m.Wallet.PublicDID(ctx))
		if pub != nil && pub.Verkey == recipientKey {
			rec = psm.NewConnectionRecord("", psm.InitiatorSelf, acceptOf("", m.Settings))
			rec.InvitationKey = psm.Str(recipientKey)
			rec.InvitationMode = psm.InvitationMulti
			return rec, nil
		}
	}
	return nil, fault.NotFound(ExplainNoInvite)
}

// AcceptRequest creates our DID for the connection and sends the response
// signed with the invitation key.
func (m *Manager) AcceptRequest(ctx context.Context, connID, myEndpoint string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "accept request")

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	if rec.Initiator != psm.InitiatorSelf || rec.State != psm.ConnRequest {
		return nil, fault.Invalid(ExplainOutOfOrder)
	}
	my, doc := try.To2(m.newPairwiseDID(ctx, myEndpoint))
	resp := &didexchange.Response{
		Header: didcomm.NewReplyHeader(pltype.AriesConnectionResponse,
			&didcomm.Header{ID: psm.Val(rec.RequestID)}),
		Connection: &didexchange.Connection{DID: my.DID, DIDDoc: doc},
	}
	try.To(signature.Sign(ctx, resp, m.Wallet, psm.Val(rec.InvitationKey)))

	rec.MyDID = my.DID
	try.To(rec.SetState(psm.ConnResponse))
	try.To(m.save(ctx, rec))

	if err := m.Sender.Send(ctx, resp, connID); err != nil {
		return m.sendFailed(ctx, rec, err)
	}
	glog.V(1).Infoln("response sent:", rec)
	return rec, nil
}

// ReceiveResponse verifies the response against the invitation key and
// activates the connection. The record is returned with the protocol errors
// when it's known.
func (m *Manager) ReceiveResponse(ctx context.Context, resp *didexchange.Response) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "receive response")

	recs := try.To1(psm.Query[psm.ConnectionRecord](ctx, m.Storage, api.TagFilter{
		"request_id": resp.ThreadID(),
		"initiator":  psm.InitiatorExternal,
	}))
	if len(recs) == 0 {
		return nil, fault.NotFound(ExplainNotFound)
	}
	rec, err = m.completeResponse(ctx, recs[0].ConnectionID, resp)
	if err != nil {
		return rec, err
	}
	glog.V(1).Infoln("response received:", rec)

	if m.OnActive != nil {
		m.OnActive(ctx, rec)
	}
	return rec, nil
}

func (m *Manager) completeResponse(ctx context.Context, connID string, resp *didexchange.Response) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err)

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	if rec.State != psm.ConnRequest {
		return rec, fault.Invalid(ExplainOutOfOrder)
	}
	if verr := signature.Verify(resp, psm.Val(rec.InvitationKey)); verr != nil {
		glog.Warningln("connection response signature:", verr)
		rec.Fail(verr.Error())
		try.To(m.save(ctx, rec))
		return rec, fault.Wrap(fault.CodeInvalidRequest, ExplainBadSign, verr)
	}

	theirDID := did.Raw(resp.Connection.DID)
	try.To(psm.Save(ctx, m.Storage, &psm.DIDDocRecord{DID: theirDID, Doc: resp.Connection.DIDDoc}))
	rec.TheirDID = psm.Str(theirDID)
	try.To(rec.SetState(psm.ConnResponse))
	try.To(rec.SetState(psm.ConnActive))
	try.To(m.save(ctx, rec))
	return rec, nil
}

// Activate moves the connection in response state to active when the first
// message arrives over it.
func (m *Manager) Activate(ctx context.Context, rc *comm.RequestContext) (err error) {
	defer err2.Handle(&err, "activate")

	if rc.Connection == nil || rc.Connection.State != psm.ConnResponse || rc.Delivery.Local() {
		return nil
	}
	connID := rc.Connection.ConnectionID
	unlock := m.locks.Lock(connID)
	defer unlock()

	rec := try.To1(m.get(ctx, connID))
	if rec.State != psm.ConnResponse {
		return nil
	}
	try.To(rec.SetState(psm.ConnActive))
	try.To(m.save(ctx, rec))
	rc.Connection = rec
	glog.V(1).Infoln("activated:", rec)
	return nil
}

// StaticOpts are the peer's info for the static connection.
type StaticOpts struct {
	Label         string
	Role          string
	TheirDID      string
	TheirVerkey   string
	TheirEndpoint string
}

// CreateStatic creates the connection straight to the static state. Returned
// DID is ours for the peer.
func (m *Manager) CreateStatic(ctx context.Context, opts StaticOpts) (rec *psm.ConnectionRecord, my *ssi.DID, err error) {
	defer err2.Handle(&err, "create static connection")

	my = try.To1(m.Wallet.CreateLocalDID(ctx, "", nil))
	try.To(psm.Save(ctx, m.Storage, &psm.DIDDocRecord{
		DID: my.DID,
		Doc: did.NewDoc(my.DID, my.Verkey, m.Settings.Endpoint(my.Verkey), nil),
	}))
	theirDID := did.Raw(opts.TheirDID)
	try.To(psm.Save(ctx, m.Storage, &psm.DIDDocRecord{
		DID: theirDID,
		Doc: did.NewDoc(theirDID, opts.TheirVerkey, opts.TheirEndpoint, nil),
	}))

	rec = psm.NewConnectionRecord(utils.UUID(), psm.InitiatorSelf, psm.AcceptManual)
	rec.InvitationMode = psm.InvitationStatic
	rec.MyDID = my.DID
	rec.TheirDID = psm.Str(theirDID)
	rec.TheirLabel = psm.Str(opts.Label)
	if opts.Role != "" {
		rec.TheirRole = psm.Str(opts.Role)
	}
	try.To(rec.SetState(psm.ConnStatic))
	try.To(m.save(ctx, rec))
	return rec, my, nil
}

// Get returns the connection or the not found protocol error.
func (m *Manager) Get(ctx context.Context, connID string) (*psm.ConnectionRecord, error) {
	return m.get(ctx, connID)
}

// ListFilter selects the connections, empty fields match all.
type ListFilter struct {
	Initiator     string
	InvitationKey string
	MyDID         string
	State         string
	TheirDID      string
	TheirRole     string
}

func (f ListFilter) tags() api.TagFilter {
	tags := api.TagFilter{}
	for k, v := range map[string]string{
		"initiator":      f.Initiator,
		"invitation_key": f.InvitationKey,
		"my_did":         f.MyDID,
		"state":          f.State,
		"their_did":      f.TheirDID,
		"their_role":     f.TheirRole,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

// List returns the connections ordered by state priority and creation time.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*psm.ConnectionRecord, error) {
	recs, err := psm.Query[psm.ConnectionRecord](ctx, m.Storage, filter.tags())
	if err != nil {
		return nil, err
	}
	psm.SortConnections(recs)
	return recs, nil
}

// Delete removes the connection. The connection the admin message came over
// cannot be deleted.
func (m *Manager) Delete(ctx context.Context, connID, current string) (err error) {
	defer err2.Handle(&err, "delete connection")

	if connID == current {
		return fault.Invalid(ExplainCurrent)
	}
	unlock := m.locks.Lock(connID)
	defer unlock()

	rec := try.To1(m.get(ctx, connID))
	try.To(psm.Delete(ctx, m.Storage, rec))
	err = psm.Delete(ctx, m.Storage, &psm.InvitationRecord{ConnectionID: connID})
	if err != nil && !psm.IsNotFound(err) {
		return err
	}
	glog.V(1).Infoln("deleted connection", connID)
	return nil
}

// Update sets their label and role. Empty values keep the old ones.
func (m *Manager) Update(ctx context.Context, connID, label, role string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "update connection")

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	if label != "" {
		rec.TheirLabel = psm.Str(label)
	}
	if role != "" {
		rec.TheirRole = psm.Str(role)
	}
	rec.Touch()
	try.To(m.save(ctx, rec))
	return rec, nil
}

// EstablishInbound binds the connection to the ref connection which is used
// for the inbound messages, i.e. the ref connection routes to us.
func (m *Manager) EstablishInbound(ctx context.Context, connID, refID string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "establish inbound")

	ref := try.To1(m.get(ctx, refID))
	try.To(ref.CheckReady())

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	try.To(rec.CheckReady())
	rec.InboundConnectionID = psm.Str(refID)
	rec.Touch()
	try.To(m.save(ctx, rec))
	return rec, nil
}

// Deactivate moves the connection to inactive.
func (m *Manager) Deactivate(ctx context.Context, connID string) (rec *psm.ConnectionRecord, err error) {
	defer err2.Handle(&err, "deactivate")

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec = try.To1(m.get(ctx, connID))
	try.To(rec.SetState(psm.ConnInactive))
	try.To(m.save(ctx, rec))
	return rec, nil
}

// Fail moves the connection to error state, e.g. when the peer reports a
// problem during the handshake. Ready connections stay as they are.
func (m *Manager) Fail(ctx context.Context, connID, reason string) (err error) {
	defer err2.Handle(&err, "fail connection")

	unlock := m.locks.Lock(connID)
	defer unlock()

	rec := try.To1(m.get(ctx, connID))
	if rec.State.Ready() || rec.State == psm.ConnInactive {
		return nil
	}
	rec.Fail(reason)
	return m.save(ctx, rec)
}

// sendFailed moves the handshake to error when our message didn't reach the
// peer. The caller holds the connection lock.
func (m *Manager) sendFailed(ctx context.Context, rec *psm.ConnectionRecord, cause error) (*psm.ConnectionRecord, error) {
	rec.Fail(cause.Error())
	if err := m.save(context.WithoutCancel(ctx), rec); err != nil {
		glog.Errorln("save failed connection:", err)
	}
	glog.Warningln("connection", rec.ConnectionID, "failed:", cause)
	return rec, cause
}

func (m *Manager) newPairwiseDID(ctx context.Context, endpoint string) (my *ssi.DID, doc *did.Doc, err error) {
	defer err2.Handle(&err)

	my = try.To1(m.Wallet.CreateLocalDID(ctx, "", nil))
	if endpoint == "" {
		endpoint = m.Settings.Endpoint(my.Verkey)
	}
	doc = did.NewDoc(my.DID, my.Verkey, endpoint, nil)
	try.To(psm.Save(ctx, m.Storage, &psm.DIDDocRecord{DID: my.DID, Doc: doc}))
	return my, doc, nil
}

func (m *Manager) get(ctx context.Context, connID string) (*psm.ConnectionRecord, error) {
	rec, err := psm.Get[psm.ConnectionRecord](ctx, m.Storage, connID)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fault.NotFound(ExplainNotFound)
	}
	return rec, err
}

func (m *Manager) save(ctx context.Context, rec *psm.ConnectionRecord) error {
	if rec.ConnectionID == "" {
		rec.ConnectionID = utils.UUID()
	}
	if err := psm.Save(ctx, m.Storage, rec); err != nil {
		return err
	}
	if m.Station != nil {
		m.Station.Broadcast(bus.Notify{
			RecordType:   psm.TypeConnection,
			ID:           rec.ConnectionID,
			ConnectionID: rec.ConnectionID,
			State:        string(rec.State),
		})
	}
	return nil
}

func acceptOf(accept string, s *utils.Hub) string {
	switch accept {
	case psm.AcceptAuto:
		return psm.AcceptAuto
	case psm.AcceptManual, "none":
		return psm.AcceptManual
	}
	if s.AutoAccept() {
		return psm.AcceptAuto
	}
	return psm.AcceptManual
}

// ReceiveProblemReport fails the handshake which thread the report belongs
// to. It returns false if the thread isn't a handshake of ours with the
// sender.
func (m *Manager) ReceiveProblemReport(ctx context.Context, connID, thid, explain string) (ok bool, err error) {
	defer err2.Handle(&err, "connection problem report")

	if connID == "" {
		return false, nil
	}
	recs := try.To1(psm.Query[psm.ConnectionRecord](ctx, m.Storage,
		api.TagFilter{"request_id": thid}))
	if len(recs) == 0 || recs[0].ConnectionID != connID {
		return false, nil
	}
	try.To(m.Fail(ctx, recs[0].ConnectionID, explain))
	return true, nil
}
