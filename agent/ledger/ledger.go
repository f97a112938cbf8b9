/*
Package ledger is the ledger collaborator of the agent. It's used through
scoped handles: a handle is opened for the work and it must be closed on every
exit path, which With takes care of.

Ledger writes are shielded from the caller's cancellation with Shield. The
write itself finishes even if the caller gives up, and the cancellation is
reported after it.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found from ledger")
	ErrClosed   = errors.New("ledger handle closed")
)

// Schema is a credential schema written to the ledger.
type Schema struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Attrs     []string `json:"attrNames"`
	IssuerDID string   `json:"issuer_did"`
	SeqNo     uint64   `json:"seqNo"`
}

// CredDef is a credential definition. IssuerVerkey is the key the issued
// credentials are signed with.
type CredDef struct {
	ID           string `json:"id"`
	SchemaID     string `json:"schemaId"`
	IssuerDID    string `json:"issuer_did"`
	IssuerVerkey string `json:"issuer_verkey"`
	Tag          string `json:"tag"`
	SeqNo        uint64 `json:"seqNo"`
}

// Nym is a DID registered to the ledger.
type Nym struct {
	DID      string `json:"did"`
	Verkey   string `json:"verkey"`
	Role     string `json:"role,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Ledger opens handles to the ledger.
type Ledger interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is an open ledger connection.
type Handle interface {
	PublishSchema(ctx context.Context, issuerDID, name, version string, attrs []string) (*Schema, error)
	GetSchema(ctx context.Context, id string) (*Schema, error)
	PublishCredDef(ctx context.Context, issuerDID, issuerVerkey, schemaID, tag string) (*CredDef, error)
	GetCredDef(ctx context.Context, id string) (*CredDef, error)
	RegisterNym(ctx context.Context, nym Nym) error
	GetNym(ctx context.Context, did string) (*Nym, error)
	SetEndpoint(ctx context.Context, did, endpoint string) error
	Close() error
}

// With opens a handle, calls fn with it and closes the handle whatever fn
// does, panics included.
func With(ctx context.Context, l Ledger, fn func(h Handle) error) (err error) {
	h, err := l.Open(ctx)
	if err != nil {
		return fmt.Errorf("ledger open: %w", err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("ledger close: %w", cerr)
		}
	}()
	return fn(h)
}

// Shield runs fn with a context which isn't cancelled with the ctx. After fn
// the cancellation of the ctx is returned if there was no other error.
func Shield(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	return ctx.Err()
}

// SchemaID builds the schema ID: <did>:2:<name>:<version>.
func SchemaID(issuerDID, name, version string) string {
	return issuerDID + ":2:" + name + ":" + version
}

// CredDefID builds the cred def ID: <did>:3:CL:<schema seq>:<tag>.
func CredDefID(issuerDID string, schemaSeqNo uint64, tag string) string {
	return fmt.Sprintf("%s:3:CL:%d:%s", issuerDID, schemaSeqNo, tag)
}

// IssuerOf returns the issuer DID part of the schema or cred def ID.
func IssuerOf(id string) string {
	did, _, _ := strings.Cut(id, ":")
	return did
}
