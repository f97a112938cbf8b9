/*
Package protocol is the parent of the message family implementations. Every
family package registers its handlers to the registry, and the state of the
stateful ones is kept in agent/psm. The message models are in the std
package.

	connection       connections/1.0 invitation, request and response
	issuecredential  issue-credential/1.0 for the issuer and the holder
	trustping        trust_ping/1.0
	discovery        discover-features/1.0
	notification     notification/1.0 ack and problem-report
	admin            admin-* families for the local controller
*/
package protocol
