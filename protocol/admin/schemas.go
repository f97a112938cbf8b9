package admin

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type SendSchema struct {
	didcomm.Header
	SchemaName    string   `json:"schema_name"`
	SchemaVersion string   `json:"schema_version"`
	Attributes    []string `json:"attributes"`
}

func (m *SendSchema) Validate() error {
	return (&didcomm.Check{}).
		Required("schema_name", m.SchemaName).
		Required("schema_version", m.SchemaVersion).
		That(len(m.Attributes) > 0, "attributes are required").
		Err()
}

type SchemaID struct {
	didcomm.Header
	SchemaID string `json:"schema_id"`
}

func (m *SchemaID) Validate() error { return nil }

type SchemaGet struct {
	didcomm.Header
	SchemaID string `json:"schema_id"`
}

func (m *SchemaGet) Validate() error {
	return (&didcomm.Check{}).Required("schema_id", m.SchemaID).Err()
}

type Schema struct {
	didcomm.Header
	Schema *ledger.Schema `json:"schema"`
}

func (m *Schema) Validate() error { return nil }

func (a *Admin) schemaTypes() []registry.Descriptor {
	return []registry.Descriptor{
		adminOnly(pltype.AdminSchemaSend,
			func() didcomm.Message { return &SendSchema{} }, a.sendSchema),
		adminOnly(pltype.AdminSchemaID,
			func() didcomm.Message { return &SchemaID{} }, pass),
		adminOnly(pltype.AdminSchemaGet,
			func() didcomm.Message { return &SchemaGet{} }, a.schemaGet),
		adminOnly(pltype.AdminSchema,
			func() didcomm.Message { return &Schema{} }, pass),
	}
}

// sendSchema writes the schema with our public DID. The write isn't cancelled
// with the request.
func (a *Admin) sendSchema(ctx context.Context, rc *comm.RequestContext) (err error) {
	defer err2.Handle(&err, "send schema")

	m := rc.Message.(*SendSchema)
	pub := try.To1(a.Wallet.PublicDID(ctx))
	if pub == nil {
		return fault.Invalid("No public DID in the wallet.")
	}
	var s *ledger.Schema
	try.To(ledger.Shield(ctx, func(ctx context.Context) error {
		return a.withLedger(ctx, func(h ledger.Handle) (err error) {
			s, err = h.PublishSchema(ctx, pub.DID, m.SchemaName, m.SchemaVersion, m.Attributes)
			return fault.Infra("publish schema", err)
		})
	}))
	glog.V(1).Infoln("schema written:", s.ID)
	return rc.Responder.SendReply(ctx, &SchemaID{
		Header:   replyHeader(pltype.AdminSchemaID, rc),
		SchemaID: s.ID,
	})
}

func (a *Admin) schemaGet(ctx context.Context, rc *comm.RequestContext) error {
	id := rc.Message.(*SchemaGet).SchemaID
	var s *ledger.Schema
	err := a.withLedger(ctx, func(h ledger.Handle) (err error) {
		s, err = h.GetSchema(ctx, id)
		if ledger.IsNotFound(err) {
			return fault.NotFound("Schema %s not found.", id)
		}
		return fault.Infra("get schema", err)
	})
	if err != nil {
		return err
	}
	return rc.Responder.SendReply(ctx, &Schema{
		Header: replyHeader(pltype.AdminSchema, rc),
		Schema: s,
	})
}
