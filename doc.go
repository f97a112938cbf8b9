/*
Package main is the application package of the DIDComm agent. The agent runs
the connection, issue-credential, trust ping and discover-features protocols
with other agents, and the local controller drives it with the admin messages.

# CLI

The agent is started and controlled with the cobra commands of the cmd
package:

	findy-agent-core agent start --label alice --auto-accept
	findy-agent-core agent ping --base-address http://localhost:8080
	findy-agent-core admin send @create-invitation.json
	findy-agent-core version

Every flag can be given as the environment variable as well, e.g.
FCLI_AGENT_STORAGE=memory, or in the config file given with --config.

# Packages

The agent/agency package wires the agent together. The inbound messages go
to the agent/dispatch package, which finds the handler of the message family
from the registry. The protocol packages implement the families and reply
through the agent/comm responder. The state of the protocols is kept in the
agent/psm storage, which can be bolt, Postgres or memory.
*/
package main
