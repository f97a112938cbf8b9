/*
Package agency builds the running agent from its parts. New opens the storage,
wallet and ledger collaborators, starts the outbound queue and registers every
protocol family to the registry the dispatcher uses.

The package has no protocol logic of its own. The HTTP and NATS servers call
Agency.Inbound for the messages from other agents and Agency.Admin for the
messages of the local admin surface.
*/
package agency

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/dispatch"
	"github.com/findy-network/findy-agent-core/agent/ledger"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-agent-core/agent/storage/memstore"
	"github.com/findy-network/findy-agent-core/agent/storage/pgstore"
	"github.com/findy-network/findy-agent-core/agent/storage/wrapper"
	"github.com/findy-network/findy-agent-core/agent/trans"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/protocol/connection"
	"github.com/findy-network/findy-agent-core/protocol/discovery"
	"github.com/findy-network/findy-agent-core/protocol/issuecredential"
	"github.com/findy-network/findy-agent-core/protocol/trustping"
	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/nats-io/nats.go"
)

const (
	ProtocolPath = "a2a" // default URL path for the DIDComm messages

	StorageBolt     = "bolt"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

var ErrUnknownStorage = errors.New("unknown storage backend")

type Config struct {
	Storage    string // StorageBolt (default), StoragePostgres or StorageMemory
	StorageKey string // hex encoded key of the bolt storage, empty is no encryption
	DataPath   string // directory of the bolt files
	LedgerFile string // empty means <DataPath>/ledger.bolt

	NATSURL string // NATS outbound transport and inbound subscription when set

	Outbox comm.OutboxConfig

	BackupPath string // ledger backup directory, empty is no backups
	BackupTime string // hh:mm of the daily backup

	Settings *utils.Hub
}

func (c *Config) defaults() {
	if c.Storage == "" {
		c.Storage = StorageBolt
	}
	if c.DataPath == "" {
		c.DataPath = "."
	}
	if c.LedgerFile == "" {
		c.LedgerFile = filepath.Join(c.DataPath, "ledger.bolt")
	}
	if c.BackupTime == "" {
		c.BackupTime = "04:30"
	}
	if c.Settings == nil {
		c.Settings = utils.Settings
	}
}

// Agency is the running agent.
type Agency struct {
	cfg Config

	Storage  api.Storage
	Wallet   *ssi.LocalWallet
	Ledger   *ledger.Bolt
	Station  *bus.Station
	Settings *utils.Hub

	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Messenger  *comm.Messenger

	Connections *connection.Manager
	Credentials *issuecredential.Manager
	Pinger      *trustping.Pinger
	Discoverer  *discovery.Discoverer

	NATS *nats.Conn // nil when NATS isn't configured

	outbox *comm.Outbox
	cron   *gocron.Scheduler
	keys   keyCache

	closeOnce sync.Once
}

// New builds the agent. The outbound queue and the scheduled jobs aren't
// running before Start.
func New(ctx context.Context, cfg Config) (a *Agency, err error) {
	defer err2.Handle(&err, "new agency")

	cfg.defaults()
	store := try.To1(openStorage(ctx, &cfg))
	a = &Agency{
		cfg:      cfg,
		Storage:  store,
		Wallet:   ssi.NewLocalWallet(store),
		Ledger:   ledger.NewBolt(cfg.LedgerFile),
		Station:  bus.New(),
		Settings: cfg.Settings,
		Registry: registry.New(),
		keys:     newKeyCache(),
	}
	defer err2.Handle(&err, func(err error) error {
		a.Close()
		return err
	})

	httpTr := trans.NewHTTP(cfg.Settings.Timeout())
	router := trans.NewRouter().Handle("http", httpTr).Handle("https", httpTr)
	if cfg.NATSURL != "" {
		a.NATS = try.To1(trans.Connect(cfg.NATSURL, cfg.Settings.Label()))
		router.Handle(trans.NATSScheme, trans.NewNATS(a.NATS))
	}
	if cfg.Outbox.OnResult == nil {
		cfg.Outbox.OnResult = logDelivery
	}
	a.outbox = comm.NewOutbox(router, cfg.Outbox)
	a.Messenger = comm.NewMessenger(store, a.outbox)

	try.To(a.register())
	glog.V(1).Infof("agency built: %d message types, storage %s",
		a.Registry.Len(), cfg.Storage)
	return a, nil
}

func openStorage(ctx context.Context, cfg *Config) (s api.Storage, err error) {
	defer err2.Handle(&err, "open storage")

	switch cfg.Storage {
	case StorageBolt:
		try.To(os.MkdirAll(cfg.DataPath, 0o700))
		w := wrapper.New(wrapper.Config{
			Key:      cfg.StorageKey,
			FileName: "agent",
			FilePath: cfg.DataPath,
			Types:    append(psm.RecordTypes(), ssi.TypeKey),
		})
		try.To(w.Open())
		return w, nil
	case StoragePostgres:
		pgCfg := try.To1(pgstore.LoadConfig())
		return pgstore.New(ctx, *pgCfg)
	case StorageMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
}

func logDelivery(endpoint string, err error) {
	if err != nil {
		glog.Warningln("delivery to", endpoint, "failed:", err)
		return
	}
	glog.V(5).Infoln("delivered to", endpoint)
}

// Start starts the outbound queue and the scheduled jobs.
func (a *Agency) Start() (err error) {
	defer err2.Handle(&err, "start agency")

	a.outbox.Start()
	a.cron = try.To1(a.scheduleJobs())
	a.cron.StartAsync()
	return nil
}

// Close stops the jobs and the queue and closes the collaborators. It can be
// called many times.
func (a *Agency) Close() {
	a.closeOnce.Do(func() {
		if a.cron != nil {
			a.cron.Stop()
		}
		if a.Credentials != nil {
			a.Credentials.Wait()
		}
		if a.outbox != nil {
			a.outbox.Close()
		}
		if a.NATS != nil {
			a.NATS.Close()
		}
		if err := a.Ledger.Close(); err != nil {
			glog.Warningln("ledger close:", err)
		}
		if err := a.Storage.Close(); err != nil {
			glog.Warningln("storage close:", err)
		}
		glog.V(1).Infoln("agency closed")
	})
}
