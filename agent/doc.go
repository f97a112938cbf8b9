/*
Package agent holds the packages of the agent runtime. The package is empty
itself, all the functionality is inside sub-packages:

	agency     wires the agent together and owns its lifetime
	bus        notification bus for the protocol state changes
	comm       responder, outbox and the messenger for outbound messages
	didcomm    message header, envelope decoding and type helpers
	dispatch   routes the inbound messages to the registered handlers
	fault      protocol error kinds and their problem report codes
	ledger     the ledger collaborator, bolt based
	pltype     message type URIs of the supported families
	psm        persistent records of the protocol state machines
	registry   message family registry
	ssi        local wallet: DIDs, keys, signatures
	storage    record storage: bolt, Postgres and memory
	trans      transports: HTTP and NATS
	utils      settings, ids and version
*/
package agent
