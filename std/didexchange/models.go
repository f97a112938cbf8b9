// Package didexchange includes the messages of the connections/1.0 protocol:
// invitation, request and response with its connection signature.
package didexchange

import (
	"errors"
	"net/url"
	"strings"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/did"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Invitation defines the connection invitation message. Public invitation
// carries only the DID, others the keys and the endpoint.
type Invitation struct {
	didcomm.Header
	Label           string   `json:"label,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	DID             string   `json:"did,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint,omitempty"`
}

func (i *Invitation) Validate() error {
	c := &didcomm.Check{}
	if i.DID != "" {
		return c.That(len(i.RecipientKeys) == 0 && i.ServiceEndpoint == "",
			"public invitation cannot have keys or endpoint").Err()
	}
	return c.That(len(i.RecipientKeys) > 0, "recipientKeys is required").
		Required("serviceEndpoint", i.ServiceEndpoint).
		Err()
}

// RecipientKey returns the first recipient key.
func (i *Invitation) RecipientKey() string {
	if len(i.RecipientKeys) == 0 {
		return ""
	}
	return i.RecipientKeys[0]
}

// URL returns the invitation in the URL form where the invitation is base64
// encoded to the c_i query parameter.
func (i *Invitation) URL(base string) string {
	return base + "?c_i=" + utils.EncodeB64(dto.ToJSONBytes(i))
}

// ParseInvitation reads the invitation from the URL form or plain JSON.
func ParseInvitation(s string) (inv *Invitation, err error) {
	defer err2.Handle(&err, "parse invitation")

	s = strings.TrimSpace(s)
	data := []byte(s)
	if !strings.HasPrefix(s, "{") {
		u := try.To1(url.Parse(s))
		ci := u.Query().Get("c_i")
		if ci == "" {
			return nil, errors.New("c_i parameter missing")
		}
		data = try.To1(utils.DecodeB64(ci))
	}
	inv = &Invitation{}
	try.To(didcomm.Unmarshal(data, inv))
	if inv.Type != pltype.AriesConnectionInvitation {
		return nil, errors.New("not a connection invitation: " + inv.Type)
	}
	try.To(inv.Validate())
	return inv, nil
}

// Connection is the DID and its doc sent in the request and signed in the
// response.
type Connection struct {
	DID    string   `json:"DID"`
	DIDDoc *did.Doc `json:"DIDDoc"`
}

func (c *Connection) check(chk *didcomm.Check) *didcomm.Check {
	return chk.Required("connection.DID", c.DID).
		That(c.DIDDoc != nil, "connection.DIDDoc is required").
		That(c.DIDDoc == nil || c.DIDDoc.RecipientKey() != "",
			"connection.DIDDoc has no recipient key")
}

// Request is the connection request.
type Request struct {
	didcomm.Header
	Label      string      `json:"label"`
	Connection *Connection `json:"connection"`
}

func (r *Request) Validate() error {
	c := (&didcomm.Check{}).Required("label", r.Label)
	if r.Connection == nil {
		return c.That(false, "connection is required").Err()
	}
	return r.Connection.check(c).Err()
}

// Response is the connection response. The connection is transferred only
// inside the signature.
type Response struct {
	didcomm.Header
	ConnectionSignature *ConnectionSignature `json:"connection~sig"`

	Connection *Connection `json:"-"` // Actual data, to be signed or verified
}

func (r *Response) Validate() error {
	c := &didcomm.Check{}
	if r.ConnectionSignature == nil {
		return c.That(false, "connection~sig is required").Err()
	}
	return c.Required("connection~sig.signature", r.ConnectionSignature.Signature).
		Required("connection~sig.sig_data", r.ConnectionSignature.SignedData).
		Required("connection~sig.signer", r.ConnectionSignature.SignVerKey).
		Err()
}

// ConnectionSignature is the signature decorator of the response.
type ConnectionSignature struct {
	Type       string `json:"@type,omitempty"`
	Signature  string `json:"signature"`
	SignedData string `json:"sig_data"`
	SignVerKey string `json:"signer"`
}
