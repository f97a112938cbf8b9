package cmd

import (
	"log"

	"github.com/findy-network/findy-agent-core/cmds/admin"
	"github.com/lainio/err2"
	"github.com/spf13/cobra"
)

// AdminCmd represents the admin command
var AdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Parent command for the agent's admin messages",
	Long: `
Parent command for the agent's admin messages
	`,
	Run: func(cmd *cobra.Command, args []string) {
		SubCmdNeeded(cmd)
	},
}

var adminSendEnvs = map[string]string{
	"base-address": "BASE_ADDRESS",
	"timeout":      "TIMEOUT",
}

// sendAdminCmd represents the admin send subcommand
var sendAdminCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Command for sending an admin message to agent",
	Long: `
Sends the admin message to the agent running in the same host and prints the
replies. The message is JSON or @file which has it.

Example
	findy-agent-core admin send \
		--base-address http://localhost:8080 \
		'{"@type": "https://didcomm.org/admin-connections/1.0/create-invitation"}'
	`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) (err error) {
		return BindEnvs(adminSendEnvs, "ADMIN")
	},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		sCmd.Message = args[0]
		return run(cmd, sCmd)
	},
}

var sCmd = &admin.SendCmd{}

func init() {
	defer err2.Catch(func(err error) error {
		log.Println(err)
		return err
	})

	name := AdminCmd.Name()
	f := sendAdminCmd.Flags()
	f.StringVar(&sCmd.BaseAddr, "base-address", "http://localhost:8080", flagInfo("base address of agent", name, adminSendEnvs["base-address"]))
	f.DurationVar(&sCmd.Timeout, "timeout", 0, flagInfo("timeout of the request", name, adminSendEnvs["timeout"]))

	rootCmd.AddCommand(AdminCmd)
	AdminCmd.AddCommand(sendAdminCmd)
}
