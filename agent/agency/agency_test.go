package agency

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/protocol/admin"
	"github.com/findy-network/findy-agent-core/protocol/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(label, host string) *utils.Hub {
	hub := &utils.Hub{}
	hub.SetLabel(label)
	hub.SetHostAddr(host)
	hub.SetTimeout(5 * time.Second)
	hub.SetLocalTestMode(true)
	return hub
}

// newAgent starts the agent with the HTTP endpoint which passes the messages
// to the Inbound.
func newAgent(t *testing.T, label string) *Agency {
	t.Helper()

	var a *Agency
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := a.Inbound(r.Context(), path.Base(r.URL.Path), data); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	a, err := New(context.Background(), Config{
		Storage:  StorageMemory,
		DataPath: t.TempDir(),
		Settings: newHub(label, srv.URL),
		Outbox: comm.OutboxConfig{
			Workers:         2,
			MaxRetries:      2,
			InitialInterval: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(a.Close)
	return a
}

func adminCall(t *testing.T, a *Agency, in, out didcomm.Message) {
	t.Helper()

	replies, err := a.Admin(context.Background(), didcomm.Marshal(in))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.NoError(t, didcomm.Unmarshal(replies[0], out))
	assert.Equal(t, in.Hdr().ThreadID(), out.Hdr().ThreadID())
}

func waitActive(t *testing.T, a *Agency, connID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		rec, err := a.Connections.Get(context.Background(), connID)
		return err == nil && rec.State == psm.ConnActive
	}, 5*time.Second, 20*time.Millisecond, "connection %s not active", connID)
}

func TestNew_Registry(t *testing.T) {
	a := newAgent(t, "alice")

	for _, family := range []string{
		pltype.AriesConnection,
		pltype.IssueCredential,
		pltype.Notification,
		pltype.TrustPing,
		pltype.DiscoverFeatures,
		pltype.AdminConnections,
		pltype.AdminIssuer,
	} {
		assert.NotEmpty(t, a.Registry.FindProtocol(family), family)
	}
	assert.True(t, a.Registry.Public(pltype.IssueCredential))
	assert.False(t, a.Registry.Public(pltype.AdminDIDs))
}

func TestNew_UnknownStorage(t *testing.T) {
	_, err := New(context.Background(), Config{
		Storage:  "redis",
		DataPath: t.TempDir(),
		Settings: newHub("x", "http://localhost"),
	})
	assert.True(t, errors.Is(err, ErrUnknownStorage))
}

func TestNew_BoltStorage(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Storage:    StorageBolt,
		StorageKey: "15308490f1e4026284594dd08d31291bc8ef2aeac730d0daf6ff87bb92d4336c",
		DataPath:   dir,
		Settings:   newHub("bolt", "http://localhost:8080"),
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	did := &admin.Did{}
	adminCall(t, a, &admin.CreateDid{Header: didcomm.NewHeader(pltype.AdminDIDCreate)}, did)
	require.NotNil(t, did.DID)
	a.Close()
	a.Close()

	a, err = New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	dids, err := a.Wallet.GetLocalDIDs(context.Background())
	require.NoError(t, err)
	require.Len(t, dids, 1)
	assert.Equal(t, did.DID.DID, dids[0].DID)
}

func TestInbound_UnknownEndpoint(t *testing.T) {
	a := newAgent(t, "alice")

	err := a.Inbound(context.Background(), "4SeNk7bzQ6fJBe9PTgQAKU9fRhgnmrUUpWkDm2j8S8pu", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownEndpoint))

	my, err := a.Wallet.CreateLocalDID(context.Background(), "", nil)
	require.NoError(t, err)
	ours, err := a.IsOurEndpoint(context.Background(), my.Verkey)
	require.NoError(t, err)
	assert.True(t, ours)
	assert.True(t, a.keys.has(my.Verkey))
}

func TestInbound_AdminFromNetwork(t *testing.T) {
	a := newAgent(t, "alice")
	my, err := a.Wallet.CreateLocalDID(context.Background(), "", nil)
	require.NoError(t, err)

	err = a.Inbound(context.Background(), my.Verkey,
		didcomm.Marshal(&admin.CreateDid{Header: didcomm.NewHeader(pltype.AdminDIDCreate)}))
	assert.Error(t, err)

	dids, err := a.Wallet.GetLocalDIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, dids, 1)
}

func TestConnectAndDiscover(t *testing.T) {
	alice := newAgent(t, "alice")
	bob := newAgent(t, "bob")

	inv := &admin.Invitation{}
	adminCall(t, alice, &admin.CreateInvitation{
		Header: didcomm.NewHeader(pltype.AdminConnectionCreateInvitation),
		Accept: "auto",
	}, inv)
	require.NotEmpty(t, inv.ConnectionID)
	assert.True(t, strings.HasPrefix(inv.InvitationURL, alice.Settings.HostAddr()))

	conn := &admin.Connection{}
	adminCall(t, bob, &admin.ReceiveInvitation{
		Header:     didcomm.NewHeader(pltype.AdminConnectionReceiveInvitation),
		Invitation: inv.InvitationURL,
		Accept:     "auto",
	}, conn)
	require.NotNil(t, conn.Connection)

	waitActive(t, bob, conn.Connection.ConnectionID)
	waitActive(t, alice, inv.ConnectionID)

	disclosed := make(chan *discovery.Disclose, 1)
	bob.Discoverer.Disclosed = func(_ string, d *discovery.Disclose) {
		disclosed <- d
	}
	_, err := bob.Discoverer.Query(context.Background(), conn.Connection.ConnectionID, "*")
	require.NoError(t, err)

	select {
	case d := <-disclosed:
		pids := make([]string, 0, len(d.Protocols))
		for _, p := range d.Protocols {
			pids = append(pids, p.PID)
		}
		assert.Contains(t, pids, pltype.IssueCredential)
		assert.Contains(t, pids, pltype.TrustPing)
		for _, pid := range pids {
			assert.NotContains(t, pid, "admin-")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no disclose")
	}
}

func TestSweepInterval(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{name: "zero ttl means no sweep", ttl: 0, want: 0},
		{name: "negative", ttl: -time.Second, want: 0},
		{name: "short ttl gets the minimum", ttl: time.Minute, want: minSweep},
		{name: "quarter of ttl", ttl: 2 * time.Hour, want: 30 * time.Minute},
		{name: "long ttl gets the maximum", ttl: 24 * time.Hour, want: maxSweep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sweepInterval(tt.ttl))
		})
	}
}

func TestScheduleJobs(t *testing.T) {
	a := newAgent(t, "alice")

	s, err := a.scheduleJobs()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	a.Settings.SetExchangeTTL(time.Hour)
	a.cfg.BackupPath = t.TempDir()
	s, err = a.scheduleJobs()
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	a.cfg.BackupTime = "25:61"
	_, err = a.scheduleJobs()
	assert.Error(t, err)
}

func TestBackup(t *testing.T) {
	a := newAgent(t, "alice")
	a.cfg.BackupPath = filepath.Join(t.TempDir(), "backups")
	ctx := context.Background()

	err := ledger.With(ctx, a.Ledger, func(h ledger.Handle) error {
		_, err := h.PublishSchema(ctx, "Th7MpTaRZVRYnPiabds81Y", "email", "1.0", []string{"email"})
		return err
	})
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.Backup(now))
	_, err = os.Stat(filepath.Join(a.cfg.BackupPath, "ledger_2024-03-01.bolt"))
	assert.NoError(t, err)
}

func TestBackupName(t *testing.T) {
	now := time.Date(2024, 12, 24, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("bak", "ledger_2024-12-24.bolt"),
		backupName("bak", "/data/ledger.bolt", now))
	assert.Equal(t, filepath.Join("bak", "ledger_2024-12-24"),
		backupName("bak", "ledger", now))
}
