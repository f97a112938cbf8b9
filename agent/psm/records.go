package psm

import (
	"time"

	"github.com/findy-network/findy-agent-core/std/did"
)

// DIDDocRecord is the DID doc of the pairwise peer or our own. Saving
// replaces the whole document.
type DIDDocRecord struct {
	DID string   `json:"did"`
	Doc *did.Doc `json:"doc"`
}

func (r *DIDDocRecord) RecordType() string {
	return TypeDIDDoc
}

func (r *DIDDocRecord) RecordID() string {
	return r.DID
}

func (r *DIDDocRecord) Tags() map[string]string {
	tags := map[string]string{}
	if r.Doc != nil {
		if vk := r.Doc.RecipientKey(); vk != "" {
			tags["verkey"] = vk
		}
	}
	return tags
}

// InvitationRecord is the invitation of the connection. It's needed until we
// know their DID doc.
type InvitationRecord struct {
	ConnectionID    string   `json:"connection_id"`
	Label           string   `json:"label,omitempty"`
	RecipientKeys   []string `json:"recipient_keys"`
	RoutingKeys     []string `json:"routing_keys,omitempty"`
	ServiceEndpoint string   `json:"service_endpoint,omitempty"`
	DID             string   `json:"did,omitempty"`
	InvitationURL   string   `json:"invitation_url,omitempty"`
}

func (r *InvitationRecord) RecordType() string {
	return TypeInvitation
}

func (r *InvitationRecord) RecordID() string {
	return r.ConnectionID
}

func (r *InvitationRecord) Tags() map[string]string {
	return map[string]string{}
}

const (
	CredDefUnwritten = "unwritten"
	CredDefWritten   = "written"
)

// CredDefRecord tracks the credential definition writes of the issuer.
type CredDefRecord struct {
	CredDefID string    `json:"credential_definition_id"`
	SchemaID  string    `json:"schema_id"`
	IssuerDID string    `json:"issuer_did"`
	Tag       string    `json:"tag"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func NewCredDefRecord(id, schemaID, issuerDID, tag string) *CredDefRecord {
	return &CredDefRecord{
		CredDefID: id,
		SchemaID:  schemaID,
		IssuerDID: issuerDID,
		Tag:       tag,
		State:     CredDefUnwritten,
		CreatedAt: now(),
	}
}

func (r *CredDefRecord) RecordType() string {
	return TypeCredDef
}

func (r *CredDefRecord) RecordID() string {
	return r.CredDefID
}

func (r *CredDefRecord) Tags() map[string]string {
	return map[string]string{
		"schema_id": r.SchemaID,
		"state":     r.State,
	}
}

// CredentialRecord is a credential stored by the holder.
type CredentialRecord struct {
	CredentialID string            `json:"credential_id"`
	CredDefID    string            `json:"cred_def_id"`
	SchemaID     string            `json:"schema_id"`
	ConnectionID string            `json:"connection_id"`
	IssuerDID    string            `json:"issuer_did"`
	Attrs        map[string]string `json:"attrs"`
	Signature    string            `json:"signature"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (r *CredentialRecord) RecordType() string {
	return TypeCredential
}

func (r *CredentialRecord) RecordID() string {
	return r.CredentialID
}

func (r *CredentialRecord) Tags() map[string]string {
	return map[string]string{
		"cred_def_id":   r.CredDefID,
		"schema_id":     r.SchemaID,
		"connection_id": r.ConnectionID,
	}
}
