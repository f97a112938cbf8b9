package cmd

import (
	"log"

	"github.com/findy-network/findy-agent-core/cmds/agent"
	"github.com/lainio/err2"
	"github.com/spf13/cobra"
)

// AgentCmd represents the agent command
var AgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Parent command for starting and pinging agent",
	Long: `
Parent command for starting and pinging agent
	`,
	Run: func(cmd *cobra.Command, args []string) {
		SubCmdNeeded(cmd)
	},
}

var agentStartEnvs = map[string]string{
	"label":         "LABEL",
	"host-scheme":   "HOST_SCHEME",
	"host-address":  "HOST_ADDRESS",
	"host-port":     "HOST_PORT",
	"server-port":   "SERVER_PORT",
	"protocol-path": "PROTOCOL_PATH",
	"storage":       "STORAGE",
	"storage-key":   "STORAGE_KEY",
	"data-path":     "DATA_PATH",
	"ledger-file":   "LEDGER_FILE",
	"nats-url":      "NATS_URL",
	"nats-subject":  "NATS_SUBJECT",
	"auto-accept":   "AUTO_ACCEPT",
	"timeout":       "TIMEOUT",
	"exchange-ttl":  "EXCHANGE_TTL",
	"backup-path":   "BACKUP_PATH",
	"backup-time":   "BACKUP_TIME",
}

// startAgentCmd represents the agent start subcommand
var startAgentCmd = &cobra.Command{
	Use:   "start",
	Short: "Command for starting agent",
	Long: `
Starts the agent and its HTTP server. The agent runs until it gets SIGINT or
SIGTERM.

Example
	findy-agent-core agent start \
		--label alice \
		--host-address agent.example.org \
		--storage-key 15308490f1e4026284594dd08d31291bc8ef2aeac730d0daf6ff87bb92d4336c \
		--auto-accept
	`,
	PreRunE: func(cmd *cobra.Command, args []string) (err error) {
		return BindEnvs(agentStartEnvs, "AGENT")
	},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		return run(cmd, &aCmd)
	},
}

var agentPingEnvs = map[string]string{
	"base-address": "PING_BASE_ADDRESS",
	"wait":         "PING_WAIT",
}

// pingAgentCmd represents the agent ping subcommand
var pingAgentCmd = &cobra.Command{
	Use:   "ping",
	Short: "Command for pinging agent",
	Long: `
Pings agent. If agent works fine, ping ok with its version is printed.

Example
	findy-agent-core agent ping \
		--base-address http://localhost:8080
	`,
	PreRunE: func(cmd *cobra.Command, args []string) (err error) {
		return BindEnvs(agentPingEnvs, "AGENT")
	},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		return run(cmd, paCmd)
	},
}

var (
	aCmd  = agent.DefaultValues
	paCmd = &agent.PingCmd{}
)

func init() {
	defer err2.Catch(func(err error) error {
		log.Println(err)
		return err
	})

	aCmd.VersionInfo = "findy-agent-core v. " + rootCmd.Version

	name := AgentCmd.Name()
	flags := startAgentCmd.Flags()
	flags.StringVar(&aCmd.Label, "label", "", flagInfo("label of the agent in invitations", name, agentStartEnvs["label"]))
	flags.StringVar(&aCmd.HostScheme, "host-scheme", aCmd.HostScheme, flagInfo("scheme of the agent's host address", name, agentStartEnvs["host-scheme"]))
	flags.StringVar(&aCmd.HostAddr, "host-address", aCmd.HostAddr, flagInfo("host address", name, agentStartEnvs["host-address"]))
	flags.UintVar(&aCmd.HostPort, "host-port", aCmd.HostPort, flagInfo("host port", name, agentStartEnvs["host-port"]))
	flags.UintVar(&aCmd.ServerPort, "server-port", aCmd.ServerPort, flagInfo("server port", name, agentStartEnvs["server-port"]))
	flags.StringVar(&aCmd.ProtocolPath, "protocol-path", aCmd.ProtocolPath, flagInfo("URL path for agent to agent protocols", name, agentStartEnvs["protocol-path"]))
	flags.StringVar(&aCmd.Storage, "storage", aCmd.Storage, flagInfo("storage: bolt, postgres or memory", name, agentStartEnvs["storage"]))
	flags.StringVar(&aCmd.StorageKey, "storage-key", "", flagInfo("bolt storage key, 32 bytes in hex", name, agentStartEnvs["storage-key"]))
	flags.StringVar(&aCmd.DataPath, "data-path", aCmd.DataPath, flagInfo("directory of the data files", name, agentStartEnvs["data-path"]))
	flags.StringVar(&aCmd.LedgerFile, "ledger-file", "", flagInfo("ledger file name", name, agentStartEnvs["ledger-file"]))
	flags.StringVar(&aCmd.NATSURL, "nats-url", "", flagInfo("NATS server URL", name, agentStartEnvs["nats-url"]))
	flags.StringVar(&aCmd.NATSSubject, "nats-subject", "", flagInfo("NATS subject of the inbound messages", name, agentStartEnvs["nats-subject"]))
	flags.BoolVar(&aCmd.AutoAccept, "auto-accept", false, flagInfo("accept connection requests automatically", name, agentStartEnvs["auto-accept"]))
	flags.DurationVar(&aCmd.Timeout, "timeout", aCmd.Timeout, flagInfo("outbound request timeout", name, agentStartEnvs["timeout"]))
	flags.DurationVar(&aCmd.ExchangeTTL, "exchange-ttl", aCmd.ExchangeTTL, flagInfo("time to live of unfinished exchanges, 0 is forever", name, agentStartEnvs["exchange-ttl"]))
	flags.StringVar(&aCmd.BackupPath, "backup-path", "", flagInfo("directory for daily ledger backups", name, agentStartEnvs["backup-path"]))
	flags.StringVar(&aCmd.BackupTime, "backup-time", aCmd.BackupTime, flagInfo("time of the backup in HH:MM[:SS]", name, agentStartEnvs["backup-time"]))

	p := pingAgentCmd.Flags()
	p.StringVar(&paCmd.BaseAddr, "base-address", "http://localhost:8080", flagInfo("base address of agent", name, agentPingEnvs["base-address"]))
	p.DurationVar(&paCmd.Wait, "wait", 0, flagInfo("retry until agent answers or time is up", name, agentPingEnvs["wait"]))

	rootCmd.AddCommand(AgentCmd)
	AgentCmd.AddCommand(startAgentCmd)
	AgentCmd.AddCommand(pingAgentCmd)
}
