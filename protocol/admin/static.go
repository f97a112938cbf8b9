package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/protocol/connection"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type CreateStaticConnection struct {
	didcomm.Header
	Label          string `json:"label"`
	Role           string `json:"role,omitempty"`
	StaticDID      string `json:"static_did"`
	StaticKey      string `json:"static_key"`
	StaticEndpoint string `json:"static_endpoint,omitempty"`
}

func (m *CreateStaticConnection) Validate() error {
	return (&didcomm.Check{}).
		Required("label", m.Label).
		Required("static_did", m.StaticDID).
		Required("static_key", m.StaticKey).
		Err()
}

type StaticConnectionInfo struct {
	didcomm.Header
	DID      string `json:"did"`
	Key      string `json:"key"`
	Endpoint string `json:"endpoint"`
}

func (m *StaticConnectionInfo) Validate() error { return nil }

type StaticConnectionGetList struct {
	didcomm.Header
	Initiator     string `json:"initiator,omitempty"`
	InvitationKey string `json:"invitation_key,omitempty"`
	MyDID         string `json:"my_did,omitempty"`
	TheirDID      string `json:"their_did,omitempty"`
	TheirRole     string `json:"their_role,omitempty"`
}

func (m *StaticConnectionGetList) Validate() error {
	return (&didcomm.Check{}).
		OneOf("initiator", m.Initiator, psm.InitiatorSelf, psm.InitiatorExternal).
		Err()
}

// PeerInfo is the one end of the static connection.
type PeerInfo struct {
	Label    string `json:"label,omitempty"`
	DID      string `json:"did"`
	VK       string `json:"vk"`
	Endpoint string `json:"endpoint"`
}

type StaticConnection struct {
	ConnectionID string   `json:"connection_id"`
	TheirInfo    PeerInfo `json:"their_info"`
	MyInfo       PeerInfo `json:"my_info"`
}

type StaticConnectionList struct {
	didcomm.Header
	Results []StaticConnection `json:"results"`
}

func (m *StaticConnectionList) Validate() error { return nil }

func (a *Admin) staticTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminStaticConnectionCreate,
			func() didcomm.Message { return &CreateStaticConnection{} }, a.createStatic),
		adminOnly(pltype.AdminStaticConnectionInfo,
			func() didcomm.Message { return &StaticConnectionInfo{} }, pass),
		adminOnly(pltype.AdminStaticConnectionGetList,
			func() didcomm.Message { return &StaticConnectionGetList{} }, a.staticGetList),
		adminOnly(pltype.AdminStaticConnectionList,
			func() didcomm.Message { return &StaticConnectionList{} }, pass),
	}
}

func (a *Admin) createStatic(ctx context.Context, rc *comm.RequestContext) error {
	m := rc.Message.(*CreateStaticConnection)
	_, my, err := a.Connections.CreateStatic(ctx, connection.StaticOpts{
		Label:         m.Label,
		Role:          m.Role,
		TheirDID:      m.StaticDID,
		TheirVerkey:   m.StaticKey,
		TheirEndpoint: m.StaticEndpoint,
	})
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &StaticConnectionInfo{
		Header:   replyHeader(pltype.AdminStaticConnectionInfo, rc),
		DID:      my.DID,
		Key:      my.Verkey,
		Endpoint: a.Settings.Endpoint(my.Verkey),
	})
}

func (a *Admin) staticGetList(ctx context.Context, rc *comm.RequestContext) (err error) {
	defer err2.Handle(&err, "static connection list")

	m := rc.Message.(*StaticConnectionGetList)
	recs := try.To1(a.Connections.List(ctx, connection.ListFilter{
		Initiator:     m.Initiator,
		InvitationKey: m.InvitationKey,
		MyDID:         m.MyDID,
		State:         string(psm.ConnStatic),
		TheirDID:      m.TheirDID,
		TheirRole:     m.TheirRole,
	}))
	results := make([]StaticConnection, 0, len(recs))
	for _, rec := range recs {
		sc := StaticConnection{
			ConnectionID: rec.ConnectionID,
			TheirInfo: PeerInfo{
				Label: psm.Val(rec.TheirLabel),
				DID:   psm.Val(rec.TheirDID),
			},
			MyInfo: PeerInfo{DID: rec.MyDID},
		}
		doc, err := psm.Get[psm.DIDDocRecord](ctx, rc.Storage, psm.Val(rec.TheirDID))
		switch {
		case err == nil && doc.Doc != nil:
			sc.TheirInfo.VK = doc.Doc.RecipientKey()
			sc.TheirInfo.Endpoint = doc.Doc.Endpoint()
		case err != nil && !psm.IsNotFound(err):
			return err
		default:
			glog.Warningln("no DID doc for static connection", rec.ConnectionID)
		}
		my := try.To1(a.Wallet.GetLocalDID(ctx, rec.MyDID))
		sc.MyInfo.VK = my.Verkey
		sc.MyInfo.Endpoint = a.Settings.Endpoint(my.Verkey)
		results = append(results, sc)
	}
	return rc.Responder.SendReply(ctx, &StaticConnectionList{
		Header:  replyHeader(pltype.AdminStaticConnectionList, rc),
		Results: results,
	})
}
