/*
Package issuecredential includes the messages of the issue-credential/1.0
protocol. The credential formats are carried in the attachments: the offer has
OfferData, the request RequestData and the issue the signed Credential.
*/
package issuecredential

import (
	"errors"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/std/decorator"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	attachID = "libindy-cred-offer-0"
	mimeJSON = "application/json"
)

// Propose is an optional message sent by the potential Holder to the Issuer
// to initiate the protocol.
type Propose struct {
	didcomm.Header
	Comment            string   `json:"comment,omitempty"`
	CredentialProposal *Preview `json:"credential_proposal,omitempty"`
	SchemaIssuerDid    string   `json:"schema_issuer_did,omitempty"`
	SchemaID           string   `json:"schema_id,omitempty"`
	SchemaName         string   `json:"schema_name,omitempty"`
	SchemaVersion      string   `json:"schema_version,omitempty"`
	CredDefID          string   `json:"cred_def_id,omitempty"`
	IssuerDid          string   `json:"issuer_did,omitempty"`
}

func (p *Propose) Validate() error {
	c := &didcomm.Check{}
	return c.Required("cred_def_id", p.CredDefID).
		That(p.CredentialProposal == nil || p.CredentialProposal.valid(),
			"credential_proposal attributes must have names").
		Err()
}

// Offer is a message sent by the Issuer to the potential Holder.
type Offer struct {
	didcomm.Header
	Comment           string                 `json:"comment,omitempty"`
	CredentialPreview Preview                `json:"credential_preview"`
	OffersAttach      []decorator.Attachment `json:"offers~attach"`
}

func (o *Offer) Validate() error {
	c := &didcomm.Check{}
	return c.That(len(o.OffersAttach) > 0, "offers~attach is required").
		That(o.CredentialPreview.valid(), "credential_preview attributes must have names").
		Err()
}

// Request is a message sent by the potential Holder to the Issuer.
type Request struct {
	didcomm.Header
	Comment        string                 `json:"comment,omitempty"`
	RequestsAttach []decorator.Attachment `json:"requests~attach"`
}

func (r *Request) Validate() error {
	c := &didcomm.Check{}
	return c.That(len(r.RequestsAttach) > 0, "requests~attach is required").Err()
}

// Issue contains as attached payload the credentials being issued.
type Issue struct {
	didcomm.Header
	Comment           string                 `json:"comment,omitempty"`
	CredentialsAttach []decorator.Attachment `json:"credentials~attach"`
}

func (i *Issue) Validate() error {
	c := &didcomm.Check{}
	return c.That(len(i.CredentialsAttach) > 0, "credentials~attach is required").Err()
}

// Preview is used to construct a preview of the data for the credential that
// is to be issued.
type Preview struct {
	Type       string      `json:"@type,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute describes an attribute for a Preview Credential
type Attribute struct {
	Name     string `json:"name"`
	MimeType string `json:"mime-type,omitempty"`
	Value    string `json:"value"`
}

// NewPreview returns preview of the attribute values.
func NewPreview(attrs []Attribute) *Preview {
	return &Preview{
		Type:       pltype.IssueCredentialCredentialPreview,
		Attributes: attrs,
	}
}

func (p *Preview) valid() bool {
	for _, a := range p.Attributes {
		if a.Name == "" {
			return false
		}
	}
	return true
}

// Values returns the attributes as name value map.
func (p *Preview) Values() map[string]string {
	values := make(map[string]string, len(p.Attributes))
	for _, a := range p.Attributes {
		values[a.Name] = a.Value
	}
	return values
}

// OfferData is the offer attachment.
type OfferData struct {
	SchemaID  string `json:"schema_id"`
	CredDefID string `json:"cred_def_id"`
	Nonce     string `json:"nonce"`
}

// RequestData is the request attachment.
type RequestData struct {
	ProverDID string `json:"prover_did"`
	CredDefID string `json:"cred_def_id"`
	Nonce     string `json:"nonce"`
}

// Credential is the issued credential. Signature is made by the issuer key
// of the credential definition over the SigningPayload.
type Credential struct {
	SchemaID  string            `json:"schema_id"`
	CredDefID string            `json:"cred_def_id"`
	IssuerDID string            `json:"issuer_did"`
	Values    map[string]string `json:"values"`
	Signature string            `json:"signature"`
}

// SigningPayload returns the signed bytes. Map keys are marshaled in sorted
// order which makes the payload stable.
func (c *Credential) SigningPayload() []byte {
	return dto.ToJSONBytes(struct {
		SchemaID  string            `json:"schema_id"`
		CredDefID string            `json:"cred_def_id"`
		IssuerDID string            `json:"issuer_did"`
		Values    map[string]string `json:"values"`
	}{c.SchemaID, c.CredDefID, c.IssuerDID, c.Values})
}

// NewAttach returns the JSON attachment of the v.
func NewAttach(v any) []decorator.Attachment {
	return []decorator.Attachment{
		decorator.NewAttachment(attachID, mimeJSON, dto.ToJSONBytes(v)),
	}
}

// ReadAttach reads the first attachment to v.
func ReadAttach(attachs []decorator.Attachment, v any) (err error) {
	defer err2.Handle(&err, "read attachment")

	if len(attachs) == 0 {
		return errors.New("no attachments")
	}
	data := try.To1(attachs[0].Bytes())
	dto.FromJSON(data, v)
	return nil
}
