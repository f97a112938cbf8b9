package issuecredential

import (
	"context"
	"errors"
	"sort"

	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// DefaultTag is the tag of the credential definitions we create.
const DefaultTag = "default"

// CreateCredDef creates the credential definition of the schema for our
// public DID and writes it to the ledger. The record is saved unwritten
// before the ledger write and marked written after it. The write is shielded
// from the cancellation of the ctx.
func (m *Manager) CreateCredDef(ctx context.Context, schemaID, tag string) (rec *psm.CredDefRecord, err error) {
	defer err2.Handle(&err, "create cred def")

	if tag == "" {
		tag = DefaultTag
	}
	pub := try.To1(m.Wallet.PublicDID(ctx))
	if pub == nil {
		return nil, fault.Invalid("No public DID in the wallet.")
	}
	if m.Ledger == nil {
		return nil, fault.Infra("ledger", errors.New("not configured"))
	}
	var schema *ledger.Schema
	try.To(ledger.With(ctx, m.Ledger, func(h ledger.Handle) (err error) {
		schema, err = h.GetSchema(ctx, schemaID)
		if ledger.IsNotFound(err) {
			return fault.NotFound("Schema %s not found.", schemaID)
		}
		return fault.Infra("get schema", err)
	}))

	id := ledger.CredDefID(pub.DID, schema.SeqNo, tag)
	unlock := m.locks.Lock(credDefLock(id))
	defer unlock()

	rec, err = psm.Get[psm.CredDefRecord](ctx, m.Storage, id)
	switch {
	case err == nil && rec.State == psm.CredDefWritten:
		return rec, nil
	case err != nil && !psm.IsNotFound(err):
		return nil, err
	case err != nil:
		rec = psm.NewCredDefRecord(id, schemaID, pub.DID, tag)
		try.To(psm.Save(ctx, m.Storage, rec))
	}
	try.To1(m.writeCredDef(ctx, rec))
	return rec, nil
}

// ensureCredDef returns the cred def from the ledger and writes it first if
// our record is still unwritten.
func (m *Manager) ensureCredDef(ctx context.Context, id string) (cd *ledger.CredDef, err error) {
	defer err2.Handle(&err, "ensure cred def")

	if m.Ledger == nil {
		return nil, fault.Infra("ledger", errors.New("not configured"))
	}
	unlock := m.locks.Lock(credDefLock(id))
	defer unlock()

	rec, err := psm.Get[psm.CredDefRecord](ctx, m.Storage, id)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fault.NotFound(ExplainCredDefNotFound)
	}
	try.To(err)
	if rec.State == psm.CredDefUnwritten {
		return m.writeCredDef(ctx, rec)
	}
	return m.credDefFromLedger(ctx, id)
}

// writeCredDef publishes the cred def and marks the record written. The
// caller holds the cred def lock.
func (m *Manager) writeCredDef(ctx context.Context, rec *psm.CredDefRecord) (cd *ledger.CredDef, err error) {
	defer err2.Handle(&err, "write cred def")

	issuer := try.To1(m.Wallet.GetLocalDID(ctx, rec.IssuerDID))
	try.To(ledger.Shield(ctx, func(ctx context.Context) error {
		return ledger.With(ctx, m.Ledger, func(h ledger.Handle) (err error) {
			cd, err = h.PublishCredDef(ctx, rec.IssuerDID, issuer.Verkey, rec.SchemaID, rec.Tag)
			if err != nil {
				return fault.Infra("publish cred def", err)
			}
			rec.State = psm.CredDefWritten
			return psm.Save(ctx, m.Storage, rec)
		})
	}))
	glog.V(1).Infoln("cred def written:", rec.CredDefID)
	return cd, nil
}

func (m *Manager) credDefFromLedger(ctx context.Context, id string) (cd *ledger.CredDef, err error) {
	if m.Ledger == nil {
		return nil, fault.Infra("ledger", errors.New("not configured"))
	}
	err = ledger.With(ctx, m.Ledger, func(h ledger.Handle) (err error) {
		cd, err = h.GetCredDef(ctx, id)
		if ledger.IsNotFound(err) {
			return fault.NotFound(ExplainCredDefNotFound)
		}
		return fault.Infra("get cred def", err)
	})
	return cd, err
}

// GetCredDef returns the cred def from the ledger.
func (m *Manager) GetCredDef(ctx context.Context, id string) (*ledger.CredDef, error) {
	return m.credDefFromLedger(ctx, id)
}

// CredDefs returns our cred def records in creation order.
func (m *Manager) CredDefs(ctx context.Context, schemaID string) ([]*psm.CredDefRecord, error) {
	tags := api.TagFilter{}
	if schemaID != "" {
		tags["schema_id"] = schemaID
	}
	recs, err := psm.Query[psm.CredDefRecord](ctx, m.Storage, tags)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func credDefLock(id string) string {
	return "creddef:" + id
}
