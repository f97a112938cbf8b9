package admin

import (
	"context"
	"errors"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/std/did"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// DIDInfo is the DID in the admin replies. Endpoint is filled only from the
// ledger.
type DIDInfo struct {
	DID      string `json:"did"`
	Verkey   string `json:"verkey"`
	Public   bool   `json:"public"`
	Endpoint string `json:"endpoint,omitempty"`
}

func infoOf(d *ssi.DID) *DIDInfo {
	if d == nil {
		return nil
	}
	return &DIDInfo{DID: d.DID, Verkey: d.Verkey, Public: d.Public}
}

type GetListDids struct {
	didcomm.Header
	DID    string `json:"did,omitempty"`
	Verkey string `json:"verkey,omitempty"`
	Public *bool  `json:"public,omitempty"`
}

func (m *GetListDids) Validate() error { return nil }

type ListDids struct {
	didcomm.Header
	Results []*DIDInfo `json:"results"`
}

func (m *ListDids) Validate() error { return nil }

type CreateDid struct {
	didcomm.Header
	Seed string `json:"seed,omitempty"`
}

func (m *CreateDid) Validate() error {
	return (&didcomm.Check{}).That(m.Seed == "" || len(m.Seed) == 32,
		"seed must be 32 characters").Err()
}

type Did struct {
	didcomm.Header
	DID *DIDInfo `json:"did,omitempty"`
}

func (m *Did) Validate() error { return nil }

type GetPublicDid struct {
	didcomm.Header
}

func (m *GetPublicDid) Validate() error { return nil }

// DIDRequest is the request which names the DID: set-public-did,
// get-did-verkey and get-did-endpoint.
type DIDRequest struct {
	didcomm.Header
	DID string `json:"did"`
}

func (m *DIDRequest) Validate() error {
	return (&didcomm.Check{}).Required("did", m.DID).Err()
}

type RegisterDid struct {
	didcomm.Header
	DID      string `json:"did"`
	Verkey   string `json:"verkey"`
	Alias    string `json:"alias,omitempty"`
	Role     string `json:"role,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

func (m *RegisterDid) Validate() error {
	return (&didcomm.Check{}).
		Required("did", m.DID).
		Required("verkey", m.Verkey).
		Err()
}

func (a *Admin) didTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminDIDGetList,
			func() didcomm.Message { return &GetListDids{} }, a.listDIDs),
		adminOnly(pltype.AdminDIDList,
			func() didcomm.Message { return &ListDids{} }, pass),
		adminOnly(pltype.AdminDIDCreate,
			func() didcomm.Message { return &CreateDid{} }, a.createDID),
		adminOnly(pltype.AdminDID,
			func() didcomm.Message { return &Did{} }, pass),
		adminOnly(pltype.AdminDIDGetPublic,
			func() didcomm.Message { return &GetPublicDid{} }, a.getPublicDID),
		adminOnly(pltype.AdminDIDSetPublic,
			func() didcomm.Message { return &DIDRequest{} }, a.setPublicDID),
		adminOnly(pltype.AdminDIDRegister,
			func() didcomm.Message { return &RegisterDid{} }, a.registerDID),
		adminOnly(pltype.AdminDIDGetVerkey,
			func() didcomm.Message { return &DIDRequest{} }, a.ledgerDID),
		adminOnly(pltype.AdminDIDGetEndpoint,
			func() didcomm.Message { return &DIDRequest{} }, a.ledgerDID),
	}
}

func (a *Admin) replyDID(ctx context.Context, rc *comm.RequestContext, d *DIDInfo) error {
	return rc.Responder.SendReply(ctx, &Did{
		Header: replyHeader(pltype.AdminDID, rc),
		DID:    d,
	})
}

// listDIDs lists our DIDs. The DID or the verkey selects the one DID, and
// unknown one gives the empty list.
func (a *Admin) listDIDs(ctx context.Context, rc *comm.RequestContext) (err error) {
	defer err2.Handle(&err, "list DIDs")

	m := rc.Message.(*GetListDids)
	var dids []*ssi.DID
	switch {
	case m.DID != "":
		d, err := a.Wallet.GetLocalDID(ctx, m.DID)
		if err != nil && !errors.Is(err, ssi.ErrUnknownDID) {
			return err
		}
		dids = appendDID(dids, d)
	case m.Verkey != "":
		d, err := a.Wallet.GetLocalDIDForVerkey(ctx, m.Verkey)
		if err != nil && !errors.Is(err, ssi.ErrUnknownDID) {
			return err
		}
		dids = appendDID(dids, d)
	default:
		dids = try.To1(a.Wallet.GetLocalDIDs(ctx))
	}
	results := make([]*DIDInfo, 0, len(dids))
	for _, d := range dids {
		if m.Public != nil && d.Public != *m.Public {
			continue
		}
		results = append(results, infoOf(d))
	}
	return rc.Responder.SendReply(ctx, &ListDids{
		Header:  replyHeader(pltype.AdminDIDList, rc),
		Results: results,
	})
}

func appendDID(dids []*ssi.DID, d *ssi.DID) []*ssi.DID {
	if d == nil {
		return dids
	}
	return append(dids, d)
}

func (a *Admin) createDID(ctx context.Context, rc *comm.RequestContext) error {
	d, err := a.Wallet.CreateLocalDID(ctx, rc.Message.(*CreateDid).Seed, nil)
	if err != nil {
		return err
	}
	return a.replyDID(ctx, rc, infoOf(d))
}

func (a *Admin) getPublicDID(ctx context.Context, rc *comm.RequestContext) error {
	d, err := a.Wallet.PublicDID(ctx)
	if err != nil {
		return err
	}
	return a.replyDID(ctx, rc, infoOf(d))
}

func (a *Admin) setPublicDID(ctx context.Context, rc *comm.RequestContext) error {
	name := did.Raw(rc.Message.(*DIDRequest).DID)
	d, err := a.Wallet.SetPublicDID(ctx, name)
	if errors.Is(err, ssi.ErrUnknownDID) {
		return fault.NotFound("DID %s not found.", name)
	} else if err != nil {
		return err
	}
	return a.replyDID(ctx, rc, infoOf(d))
}

// registerDID writes the nym to the ledger, and its endpoint if given. The
// writes aren't cancelled with the request.
func (a *Admin) registerDID(ctx context.Context, rc *comm.RequestContext) (err error) {
	defer err2.Handle(&err, "register DID")

	m := rc.Message.(*RegisterDid)
	nym := ledger.Nym{DID: did.Raw(m.DID), Verkey: m.Verkey, Role: m.Role}
	try.To(ledger.Shield(ctx, func(ctx context.Context) error {
		return a.withLedger(ctx, func(h ledger.Handle) error {
			if err := h.RegisterNym(ctx, nym); err != nil {
				return fault.Infra("register nym", err)
			}
			if m.Endpoint == "" {
				return nil
			}
			return fault.Infra("set endpoint", h.SetEndpoint(ctx, nym.DID, m.Endpoint))
		})
	}))
	return a.replyDID(ctx, rc, &DIDInfo{DID: nym.DID, Verkey: nym.Verkey, Endpoint: m.Endpoint})
}

// ledgerDID answers get-did-verkey and get-did-endpoint from the ledger.
func (a *Admin) ledgerDID(ctx context.Context, rc *comm.RequestContext) error {
	name := did.Raw(rc.Message.(*DIDRequest).DID)
	var nym *ledger.Nym
	err := a.withLedger(ctx, func(h ledger.Handle) (err error) {
		nym, err = h.GetNym(ctx, name)
		if ledger.IsNotFound(err) {
			return fault.NotFound("DID %s not found from ledger.", name)
		}
		return fault.Infra("get nym", err)
	})
	if err != nil {
		return err
	}
	info := &DIDInfo{DID: nym.DID, Verkey: nym.Verkey}
	if rc.Message.Hdr().Type == pltype.AdminDIDGetEndpoint {
		info.Endpoint = nym.Endpoint
	}
	return a.replyDID(ctx, rc, info)
}
