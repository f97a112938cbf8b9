// Package did includes the DID document model the connection protocol
// exchanges.
package did

import (
	"strings"
)

const (
	Context     = "https://w3id.org/did/v1"
	KeyType     = "Ed25519VerificationKey2018"
	AuthType    = "Ed25519SignatureAuthentication2018"
	ServiceType = "IndyAgent"
	sovPrefix   = "did:sov:"
)

// Doc DID Document definition
type Doc struct {
	Context        string               `json:"@context,omitempty"`
	ID             string               `json:"id,omitempty"`
	PublicKey      []PublicKey          `json:"publicKey,omitempty"`
	Service        []Service            `json:"service,omitempty"`
	Authentication []VerificationMethod `json:"authentication,omitempty"`
}

// PublicKey DID doc public key
type PublicKey struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type,omitempty"`
	Controller      string `json:"controller,omitempty"`
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`
}

// Service DID doc service
type Service struct {
	ID              string   `json:"id,omitempty"`
	Type            string   `json:"type,omitempty"`
	Priority        uint     `json:"priority,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
}

// VerificationMethod authentication verification method
type VerificationMethod struct {
	Type      string `json:"type,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
}

// NewDoc returns the DID doc for the DID, its verkey and our endpoint.
func NewDoc(did, verkey, endpoint string, routingKeys []string) *Doc {
	didURI := URI(did)
	didURIRef := didURI + "#1"
	return &Doc{
		Context: Context,
		ID:      didURI,
		PublicKey: []PublicKey{{
			ID:              didURIRef,
			Type:            KeyType,
			Controller:      didURI,
			PublicKeyBase58: verkey,
		}},
		Service: []Service{{
			ID:              didURI + ";indy",
			Type:            ServiceType,
			RecipientKeys:   []string{verkey},
			RoutingKeys:     routingKeys,
			ServiceEndpoint: endpoint,
		}},
		Authentication: []VerificationMethod{{
			Type:      AuthType,
			PublicKey: didURIRef,
		}},
	}
}

// URI returns the did:sov form of the DID.
func URI(did string) string {
	if strings.HasPrefix(did, "did:") {
		return did
	}
	return sovPrefix + did
}

// Raw returns the DID without the did:sov prefix.
func Raw(did string) string {
	return strings.TrimPrefix(did, sovPrefix)
}

// DID returns the DID of the doc without the method prefix.
func (d *Doc) DID() string {
	return Raw(d.ID)
}

// RecipientKey returns the first recipient key of the first service, or the
// first public key if there is no service.
func (d *Doc) RecipientKey() string {
	if len(d.Service) > 0 && len(d.Service[0].RecipientKeys) > 0 {
		return d.Service[0].RecipientKeys[0]
	}
	if len(d.PublicKey) > 0 {
		return d.PublicKey[0].PublicKeyBase58
	}
	return ""
}

// Endpoint returns the service endpoint of the first service.
func (d *Doc) Endpoint() string {
	if len(d.Service) == 0 {
		return ""
	}
	return d.Service[0].ServiceEndpoint
}

// RoutingKeys returns the routing keys of the first service.
func (d *Doc) RoutingKeys() []string {
	if len(d.Service) == 0 {
		return nil
	}
	return d.Service[0].RoutingKeys
}
