/*
Package issuecredential implements the issue-credential/1.0 protocol for both
roles. The holder and the issuer keep their own record of the shared thread,
and the records move only forward in their state machine.

The issuer's offer is built by PerformSend which runs in its own goroutine.
Its failures abandon the exchange and are reported to the holder with the
problem report, so no exchange is left waiting silently.
*/
package issuecredential

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	ExplainConnNotFound    = "Connection not found."
	ExplainStale           = "stale thread"
	ExplainUnknownThread   = "unknown thread"
	ExplainCredDefNotFound = "Credential definition not found."
	ExplainBadCredential   = "Credential signature is not valid."
	ExplainIssueFailed     = "Credential issuance failed."
	ExplainTimeout         = "Credential exchange timed out."
)

// SendFunc sends the message of the exchange to the counterparty.
type SendFunc func(ctx context.Context, msg didcomm.Message) error

type Config struct {
	Storage  api.Storage
	Wallet   ssi.Wallet
	Ledger   ledger.Ledger
	Sender   comm.Sender
	Station  *bus.Station
	Settings *utils.Hub
}

type Manager struct {
	Config
	locks psm.Locker
	wg    sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.Settings == nil {
		cfg.Settings = utils.Settings
	}
	return &Manager{Config: cfg}
}

// Wait waits the running PerformSend goroutines.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Get returns the exchange record.
func (m *Manager) Get(ctx context.Context, id string) (*psm.CredExchangeRecord, error) {
	rec, err := psm.Get[psm.CredExchangeRecord](ctx, m.Storage, id)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fault.NotFound("Credential exchange %s not found.", id)
	}
	return rec, err
}

// ListFilter selects the exchange records, empty fields match all.
type ListFilter struct {
	ConnectionID string
	CredDefID    string
	SchemaID     string
	Role         string
	State        string
}

// List returns the exchanges in creation order.
func (m *Manager) List(ctx context.Context, f ListFilter) ([]*psm.CredExchangeRecord, error) {
	tags := api.TagFilter{}
	for k, v := range map[string]string{
		"connection_id":            f.ConnectionID,
		"credential_definition_id": f.CredDefID,
		"schema_id":                f.SchemaID,
		"role":                     f.Role,
		"state":                    f.State,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	recs, err := psm.Query[psm.CredExchangeRecord](ctx, m.Storage, tags)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

// ReceiveProblemReport abandons the exchange of the thread. It returns false
// if we don't have the thread on the connection.
func (m *Manager) ReceiveProblemReport(ctx context.Context, connID, thid, explain string) (ok bool, err error) {
	defer err2.Handle(&err, "credential exchange problem report")

	if connID == "" {
		return false, nil
	}
	recs := try.To1(psm.Query[psm.CredExchangeRecord](ctx, m.Storage,
		api.TagFilter{"thread_id": thid, "connection_id": connID}))
	if len(recs) == 0 {
		return false, nil
	}
	for _, r := range recs {
		try.To(m.abandon(ctx, r.CredentialExchangeID, explain))
	}
	return true, nil
}

// AbandonStale abandons the unfinished exchanges which haven't moved during
// the olderThan. It returns the number of abandoned exchanges.
func (m *Manager) AbandonStale(ctx context.Context, olderThan time.Duration) (n int, err error) {
	defer err2.Handle(&err, "abandon stale exchanges")

	limit := time.Now().UTC().Add(-olderThan)
	recs := try.To1(psm.Query[psm.CredExchangeRecord](ctx, m.Storage, nil))
	for _, r := range recs {
		if r.State.Terminal() || r.UpdatedAt.After(limit) {
			continue
		}
		try.To(m.abandon(ctx, r.CredentialExchangeID, ExplainTimeout))
		n++
	}
	if n > 0 {
		glog.V(1).Infoln("abandoned", n, "stale credential exchanges")
	}
	return n, nil
}

// abandon marks the exchange abandoned. Finished exchanges stay as they are.
func (m *Manager) abandon(ctx context.Context, id, reason string) (err error) {
	defer err2.Handle(&err)

	unlock := m.locks.Lock(id)
	defer unlock()

	rec := try.To1(m.Get(ctx, id))
	if !rec.Abandon(reason) {
		glog.V(2).Infoln("exchange", id, "already", rec.State)
		return nil
	}
	glog.Warningln("credential exchange", id, "abandoned:", reason)
	return m.save(ctx, rec)
}

// exchangeFailed abandons the exchange after we couldn't answer the peer.
// The cause is returned with the fresh record.
func (m *Manager) exchangeFailed(ctx context.Context, id string, cause error) (*psm.CredExchangeRecord, error) {
	ctx = context.WithoutCancel(ctx)
	if err := m.abandon(ctx, id, cause.Error()); err != nil {
		glog.Errorln("abandon exchange:", err)
	}
	rec, err := m.Get(ctx, id)
	if err != nil {
		glog.Errorln("exchange", id, "not found after abandon:", err)
	}
	return rec, cause
}

// thread returns our record of the thread in the role. The records of the
// finished exchanges are stale and they return protocol error.
func (m *Manager) thread(ctx context.Context, thid, role string) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err)

	recs := try.To1(psm.Query[psm.CredExchangeRecord](ctx, m.Storage,
		api.TagFilter{"thread_id": thid, "role": role}))
	if len(recs) == 0 {
		return nil, nil
	}
	rec = recs[0]
	if rec.State.Terminal() {
		return rec, fault.Invalid(ExplainStale)
	}
	return rec, nil
}

// transit runs fn for the locked and fresh copy of the record and saves it.
func (m *Manager) transit(ctx context.Context, id string, fn func(rec *psm.CredExchangeRecord) error) (rec *psm.CredExchangeRecord, err error) {
	defer err2.Handle(&err)

	unlock := m.locks.Lock(id)
	defer unlock()

	rec = try.To1(m.Get(ctx, id))
	if rec.State.Terminal() {
		return rec, fault.Invalid(ExplainStale)
	}
	try.To(fn(rec))
	try.To(m.save(ctx, rec))
	return rec, nil
}

func (m *Manager) save(ctx context.Context, rec *psm.CredExchangeRecord) error {
	if err := psm.Save(ctx, m.Storage, rec); err != nil {
		return err
	}
	if m.Station != nil {
		m.Station.Broadcast(bus.Notify{
			RecordType:   psm.TypeCredExchange,
			ID:           rec.CredentialExchangeID,
			ConnectionID: rec.ConnectionID,
			ThreadID:     rec.ThreadID,
			State:        string(rec.State),
		})
	}
	return nil
}

// readyConnection returns the connection if messages can be sent over it.
func (m *Manager) readyConnection(ctx context.Context, connID string) (conn *psm.ConnectionRecord, err error) {
	conn, err = psm.Get[psm.ConnectionRecord](ctx, m.Storage, connID)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fault.NotFound(ExplainConnNotFound)
	} else if err != nil {
		return nil, err
	}
	return conn, conn.CheckReady()
}

// sendTo returns SendFunc for the connection.
func (m *Manager) sendTo(connID string) SendFunc {
	return func(ctx context.Context, msg didcomm.Message) error {
		return m.Sender.Send(ctx, msg, connID)
	}
}

func threadHeader(t, thid string) didcomm.Header {
	return didcomm.NewReplyHeader(t, &didcomm.Header{ID: thid})
}
