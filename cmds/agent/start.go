// Package agent has the commands which run the agent and talk to a running
// one.
package agent

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/findy-network/findy-agent-core/agent/agency"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/cmds"
	"github.com/findy-network/findy-agent-core/server"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type StartCmd struct {
	Label        string
	HostScheme   string
	HostAddr     string
	HostPort     uint
	ServerPort   uint
	ProtocolPath string

	Storage    string
	StorageKey string
	DataPath   string
	LedgerFile string

	NATSURL     string
	NATSSubject string

	AutoAccept  bool
	Timeout     time.Duration
	ExchangeTTL time.Duration

	BackupPath string
	BackupTime string

	VersionInfo string
}

var DefaultValues = StartCmd{
	HostScheme:   "http",
	HostAddr:     "localhost",
	HostPort:     8080,
	ServerPort:   8080,
	ProtocolPath: agency.ProtocolPath,
	Storage:      agency.StorageBolt,
	DataPath:     ".",
	Timeout:      utils.HTTPReqTimeout,
	ExchangeTTL:  24 * time.Hour,
	BackupTime:   "04:30",
}

func (c *StartCmd) Validate() error {
	if c.HostAddr == "" {
		return errors.New("host address cannot be empty")
	}
	if c.ServerPort == 0 {
		return errors.New("server port cannot be zero")
	}
	if c.ProtocolPath == "" || strings.Contains(c.ProtocolPath, "/") {
		return errors.New("protocol path must be a single path segment")
	}
	switch c.Storage {
	case agency.StorageBolt, agency.StoragePostgres, agency.StorageMemory:
	default:
		return errors.New("storage must be bolt, postgres or memory")
	}
	if err := cmds.ValidateKey(c.StorageKey); err != nil {
		return err
	}
	if c.NATSSubject != "" && c.NATSURL == "" {
		return errors.New("NATS subject needs NATS URL")
	}
	if c.BackupPath != "" {
		if err := cmds.ValidateTime(c.BackupTime); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs the agent until it gets SIGINT or SIGTERM.
func (c *StartCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "start agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, s := try.To2(c.Setup(ctx))
	defer a.Close()

	go func() {
		<-ctx.Done()
		glog.V(1).Infoln("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutCtx); err != nil {
			glog.Warningln("server shutdown:", err)
		}
	}()

	cmds.Fprintln(w, "agent started, endpoint:", a.Settings.Endpoint("<verkey>"))
	try.To(s.StartHTTPServer(c.ServerPort))
	return nil, nil
}

// Setup writes the runtime settings and builds the running agent and its
// server.
func (c *StartCmd) Setup(ctx context.Context) (a *agency.Agency, s *server.Server, err error) {
	defer err2.Handle(&err, "setup")

	c.setRuntimeSettings()
	a = try.To1(agency.New(ctx, agency.Config{
		Storage:    c.Storage,
		StorageKey: c.StorageKey,
		DataPath:   c.DataPath,
		LedgerFile: c.LedgerFile,
		NATSURL:    c.NATSURL,
		BackupPath: c.BackupPath,
		BackupTime: c.BackupTime,
		Settings:   utils.Settings,
	}))
	defer err2.Handle(&err, func(err error) error {
		a.Close()
		return err
	})
	try.To(a.Start())

	s = server.New(a)
	if c.NATSSubject != "" {
		try.To(s.SubscribeNATS())
	}
	return a, s, nil
}

func (c *StartCmd) setRuntimeSettings() {
	hostPort := c.HostPort
	if hostPort == 0 {
		hostPort = c.ServerPort
	}
	server.BuildHostAddr(utils.Settings, c.HostScheme, c.HostAddr, hostPort)
	utils.Settings.SetLabel(c.Label)
	utils.Settings.SetProtocolPath(c.ProtocolPath)
	utils.Settings.SetNATSSubject(c.NATSSubject)
	utils.Settings.SetAutoAccept(c.AutoAccept)
	utils.Settings.SetTimeout(c.Timeout)
	utils.Settings.SetExchangeTTL(c.ExchangeTTL)
	utils.Settings.SetVersionInfo(c.VersionInfo)
	utils.Settings.LogSettings()
}

// ParseLoggingArgs sets the glog flags from the string like
// "-logtostderr=true -v=2".
func ParseLoggingArgs(s string) {
	args := make([]string, 1, 12)
	args[0] = os.Args[0]
	args = append(args, strings.Fields(s)...)
	orgArgs := os.Args
	os.Args = args
	flag.Parse()
	os.Args = orgArgs
}
