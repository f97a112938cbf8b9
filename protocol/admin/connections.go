package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/protocol/connection"
	"github.com/findy-network/findy-agent-core/std/didexchange"
	"github.com/findy-network/findy-common-go/dto"
)

type ConnectionGetList struct {
	didcomm.Header
	Initiator     string `json:"initiator,omitempty"`
	InvitationKey string `json:"invitation_key,omitempty"`
	MyDID         string `json:"my_did,omitempty"`
	State         string `json:"state,omitempty"`
	TheirDID      string `json:"their_did,omitempty"`
	TheirRole     string `json:"their_role,omitempty"`
}

func (m *ConnectionGetList) Validate() error {
	return (&didcomm.Check{}).
		OneOf("initiator", m.Initiator, psm.InitiatorSelf, psm.InitiatorExternal).
		OneOf("state", m.State, psm.ConnectionStates()...).
		Err()
}

type ConnectionList struct {
	didcomm.Header
	Results []*psm.ConnectionRecord `json:"results"`
}

func (m *ConnectionList) Validate() error { return nil }

type ConnectionGet struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
}

func (m *ConnectionGet) Validate() error {
	return (&didcomm.Check{}).Required("connection_id", m.ConnectionID).Err()
}

type Connection struct {
	didcomm.Header
	Connection *psm.ConnectionRecord `json:"connection"`
}

func (m *Connection) Validate() error { return nil }

type CreateInvitation struct {
	didcomm.Header
	Label    string `json:"label,omitempty"`
	Role     string `json:"role,omitempty"`
	Accept   string `json:"accept,omitempty"`
	Public   bool   `json:"public,omitempty"`
	MultiUse bool   `json:"multi_use,omitempty"`
}

func (m *CreateInvitation) Validate() error {
	return (&didcomm.Check{}).OneOf("accept", m.Accept, "none", psm.AcceptAuto).Err()
}

type Invitation struct {
	didcomm.Header
	ConnectionID  string `json:"connection_id,omitempty"`
	Invitation    string `json:"invitation"`
	InvitationURL string `json:"invitation_url"`
}

func (m *Invitation) Validate() error { return nil }

type ReceiveInvitation struct {
	didcomm.Header
	Invitation string `json:"invitation"`
	Accept     string `json:"accept,omitempty"`
}

func (m *ReceiveInvitation) Validate() error {
	return (&didcomm.Check{}).
		Required("invitation", m.Invitation).
		OneOf("accept", m.Accept, "none", psm.AcceptAuto).
		Err()
}

type AcceptInvitation struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
	MyEndpoint   string `json:"my_endpoint,omitempty"`
	MyLabel      string `json:"my_label,omitempty"`
}

func (m *AcceptInvitation) Validate() error {
	return (&didcomm.Check{}).Required("connection_id", m.ConnectionID).Err()
}

type AcceptRequest struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
	MyEndpoint   string `json:"my_endpoint,omitempty"`
}

func (m *AcceptRequest) Validate() error {
	return (&didcomm.Check{}).Required("connection_id", m.ConnectionID).Err()
}

type EstablishInbound struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
	RefID        string `json:"ref_id"`
}

func (m *EstablishInbound) Validate() error {
	return (&didcomm.Check{}).
		Required("connection_id", m.ConnectionID).
		Required("ref_id", m.RefID).
		Err()
}

type DeleteConnection struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
}

func (m *DeleteConnection) Validate() error {
	return (&didcomm.Check{}).Required("connection_id", m.ConnectionID).Err()
}

type UpdateConnection struct {
	didcomm.Header
	ConnectionID string `json:"connection_id"`
	Label        string `json:"label,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (m *UpdateConnection) Validate() error {
	return (&didcomm.Check{}).Required("connection_id", m.ConnectionID).Err()
}

func (a *Admin) connectionTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminConnectionGetList,
			func() didcomm.Message { return &ConnectionGetList{} }, a.connectionGetList),
		adminOnly(pltype.AdminConnectionList,
			func() didcomm.Message { return &ConnectionList{} }, pass),
		adminOnly(pltype.AdminConnectionGet,
			func() didcomm.Message { return &ConnectionGet{} }, a.connectionGet),
		adminOnly(pltype.AdminConnection,
			func() didcomm.Message { return &Connection{} }, pass),
		adminOnly(pltype.AdminConnectionCreateInvitation,
			func() didcomm.Message { return &CreateInvitation{} }, a.createInvitation),
		adminOnly(pltype.AdminConnectionInvitation,
			func() didcomm.Message { return &Invitation{} }, pass),
		adminOnly(pltype.AdminConnectionReceiveInvitation,
			func() didcomm.Message { return &ReceiveInvitation{} }, a.receiveInvitation),
		adminOnly(pltype.AdminConnectionAcceptInvitation,
			func() didcomm.Message { return &AcceptInvitation{} }, a.acceptInvitation),
		adminOnly(pltype.AdminConnectionAcceptRequest,
			func() didcomm.Message { return &AcceptRequest{} }, a.acceptRequest),
		adminOnly(pltype.AdminConnectionEstablishInbound,
			func() didcomm.Message { return &EstablishInbound{} }, a.establishInbound),
		adminOnly(pltype.AdminConnectionDelete,
			func() didcomm.Message { return &DeleteConnection{} }, a.deleteConnection),
		adminOnly(pltype.AdminConnectionUpdate,
			func() didcomm.Message { return &UpdateConnection{} }, a.updateConnection),
		adminOnly(pltype.AdminConnectionAck,
			func() didcomm.Message { return &noReply{} }, pass),
	}
}

func (a *Admin) replyConnection(ctx context.Context, rc *comm.RequestContext, rec *psm.ConnectionRecord) error {
	return rc.Responder.SendReply(ctx, &Connection{
		Header:     replyHeader(pltype.AdminConnection, rc),
		Connection: rec,
	})
}

func (a *Admin) connectionGetList(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*ConnectionGetList)
	recs, err := a.Connections.List(ctx, connection.ListFilter{
		Initiator:     m.Initiator,
		InvitationKey: m.InvitationKey,
		MyDID:         m.MyDID,
		State:         m.State,
		TheirDID:      m.TheirDID,
		TheirRole:     m.TheirRole,
	})
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &ConnectionList{
		Header:  replyHeader(pltype.AdminConnectionList, rc),
		Results: recs,
	})
}

func (a *Admin) connectionGet(ctx context.Context, rc *comm.RequestContext) error {
	rec, err := a.Connections.Get(ctx, rc.Message.(*ConnectionGet).ConnectionID)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}

func (a *Admin) createInvitation(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*CreateInvitation)
	rec, inv, err := a.Connections.CreateInvitation(ctx, connection.InvitationOpts{
		Label:     m.Label,
		TheirRole: m.Role,
		Accept:    m.Accept,
		Public:    m.Public,
		MultiUse:  m.MultiUse,
	})
	if err != nil {
		return err
	}
	base := inv.ServiceEndpoint
	if base == "" {
		base = a.Settings.HostAddr()
	}
	reply := &Invitation{
		Header:        replyHeader(pltype.AdminConnectionInvitation, rc),
		Invitation:    string(dto.ToJSONBytes(inv)),
		InvitationURL: inv.URL(base),
	}
	if rec != nil {
		reply.ConnectionID = rec.ConnectionID
	}
	return rc.Responder.SendReply(ctx, reply)
}

func (a *Admin) receiveInvitation(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*ReceiveInvitation)
	inv, err := didexchange.ParseInvitation(m.Invitation)
	if err != nil {
		return fault.Wrap(fault.CodeInvalidRequest, "Invalid invitation.", err)
	}
	rec, err := a.Connections.ReceiveInvitation(ctx, inv, m.Accept)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}

func (a *Admin) acceptInvitation(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*AcceptInvitation)
	rec, err := a.Connections.AcceptInvitation(ctx, m.ConnectionID, m.MyLabel, m.MyEndpoint)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}

func (a *Admin) acceptRequest(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*AcceptRequest)
	rec, err := a.Connections.AcceptRequest(ctx, m.ConnectionID, m.MyEndpoint)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}

func (a *Admin) establishInbound(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*EstablishInbound)
	rec, err := a.Connections.EstablishInbound(ctx, m.ConnectionID, m.RefID)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}

func (a *Admin) deleteConnection(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*DeleteConnection)
	if err := a.Connections.Delete(ctx, m.ConnectionID, rc.ConnectionID()); err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &noReply{
		Header: replyHeader(pltype.AdminConnectionAck, rc),
	})
}

func (a *Admin) updateConnection(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*UpdateConnection)
	rec, err := a.Connections.Update(ctx, m.ConnectionID, m.Label, m.Role)
	if err != nil {
		return err
	}
	return a.replyConnection(ctx, rc, rec)
}
