package ssi

import "github.com/findy-network/findy-agent-core/std/did"

// DID is a local DID of the wallet. The private key never leaves the wallet.
type DID struct {
	DID      string            `json:"did"`
	Verkey   string            `json:"verkey"`
	Public   bool              `json:"public"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewDid(didStr, verkey string) *DID {
	return &DID{DID: didStr, Verkey: verkey}
}

func (d *DID) Did() string {
	return d.DID
}

func (d *DID) URI() string {
	return did.URI(d.DID)
}

func (d *DID) VerKey() string {
	return d.Verkey
}
