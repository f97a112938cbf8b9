// Package pltype includes the message type URI constants of the protocols the
// agent speaks. A type URI is built from the prefix, protocol family, version
// and message name: <prefix>/<family>/<version>/<name>.
package pltype

// Prefix constants
const (
	Aries     = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec" // This will be for all Aries protocols
	DIDOrg    = "https://didcomm.org"                 // the newer prefix, accepted inbound
	Terminate = ""
)

// DID exchange aka Connection related constants
const (
	AriesProtocolConnection   = "connections"
	Invitation                = "invitation"
	HandlerRequest            = "request"
	HandlerResponse           = "response"
	AriesConnection           = Aries + "/" + AriesProtocolConnection + "/1.0"
	AriesConnectionInvitation = AriesConnection + "/" + Invitation
	AriesConnectionRequest    = AriesConnection + "/" + HandlerRequest
	AriesConnectionResponse   = AriesConnection + "/" + HandlerResponse

	ConnectionSignature = Aries + "/signature/1.0/ed25519Sha512_single"
)

// Issue Credential protocol constants
const (
	ProtocolIssueCredential          = "issue-credential"
	HandlerIssueCredentialPropose    = "propose-credential"
	HandlerIssueCredentialOffer      = "offer-credential"
	HandlerIssueCredentialRequest    = "request-credential"
	HandlerIssueCredentialIssue      = "issue-credential"
	HandlerIssueCredentialACK        = "ack"
	ObjectTypeCredentialPreview      = "credential-preview"
	IssueCredential                  = Aries + "/" + ProtocolIssueCredential + "/1.0"
	IssueCredentialPropose           = IssueCredential + "/" + HandlerIssueCredentialPropose
	IssueCredentialOffer             = IssueCredential + "/" + HandlerIssueCredentialOffer
	IssueCredentialRequest           = IssueCredential + "/" + HandlerIssueCredentialRequest
	IssueCredentialIssue             = IssueCredential + "/" + HandlerIssueCredentialIssue
	IssueCredentialACK               = IssueCredential + "/" + HandlerIssueCredentialACK
	IssueCredentialCredentialPreview = IssueCredential + "/" + ObjectTypeCredentialPreview
)

// Notification protocol constants
const (
	ProtocolNotification      = "notification"
	HandlerProblemReport      = "problem-report"
	HandlerAck                = "ack"
	Notification              = Aries + "/" + ProtocolNotification + "/1.0"
	NotificationProblemReport = Notification + "/" + HandlerProblemReport
	NotificationAck           = Notification + "/" + HandlerAck
)

// Trust Ping protocol constants
const (
	ProtocolTrustPing   = "trust_ping"
	HandlerPing         = "ping"
	HandlerPingResponse = "ping_response"
	TrustPing           = Aries + "/" + ProtocolTrustPing + "/1.0"
	TrustPingPing       = TrustPing + "/" + HandlerPing
	TrustPingResponse   = TrustPing + "/" + HandlerPingResponse
)

// Discover Features protocol constants
const (
	ProtocolDiscoverFeatures = "discover-features"
	DiscoverFeatures         = Aries + "/" + ProtocolDiscoverFeatures + "/1.0"
	DiscoverFeaturesQuery    = DiscoverFeatures + "/query"
	DiscoverFeaturesDisclose = DiscoverFeatures + "/disclose"
)

// Admin connections family
const (
	AdminConnections                 = Aries + "/admin-connections/1.0"
	AdminConnectionGetList           = AdminConnections + "/connection-get-list"
	AdminConnectionList              = AdminConnections + "/connection-list"
	AdminConnectionGet               = AdminConnections + "/connection-get"
	AdminConnection                  = AdminConnections + "/connection"
	AdminConnectionCreateInvitation  = AdminConnections + "/create-invitation"
	AdminConnectionInvitation        = AdminConnections + "/invitation"
	AdminConnectionReceiveInvitation = AdminConnections + "/receive-invitation"
	AdminConnectionAcceptInvitation  = AdminConnections + "/accept-invitation"
	AdminConnectionAcceptRequest     = AdminConnections + "/accept-request"
	AdminConnectionEstablishInbound  = AdminConnections + "/establish-inbound"
	AdminConnectionDelete            = AdminConnections + "/delete"
	AdminConnectionUpdate            = AdminConnections + "/update"
	AdminConnectionAck               = AdminConnections + "/ack"
)

// Admin static connections family
const (
	AdminStaticConnections       = Aries + "/admin-static-connections/1.0"
	AdminStaticConnectionCreate  = AdminStaticConnections + "/create-static-connection"
	AdminStaticConnectionInfo    = AdminStaticConnections + "/static-connection-info"
	AdminStaticConnectionGetList = AdminStaticConnections + "/static-connection-get-list"
	AdminStaticConnectionList    = AdminStaticConnections + "/static-connection-list"
)

// Admin schemas family
const (
	AdminSchemas    = Aries + "/admin-schemas/1.0"
	AdminSchemaSend = AdminSchemas + "/send-schema"
	AdminSchemaID   = AdminSchemas + "/schema-id"
	AdminSchemaGet  = AdminSchemas + "/schema-get"
	AdminSchema     = AdminSchemas + "/schema"
)

// Admin credential definitions family
const (
	AdminCredDefs       = Aries + "/admin-credential-definitions/1.0"
	AdminCredDefSend    = AdminCredDefs + "/send-credential-definition"
	AdminCredDefID      = AdminCredDefs + "/credential-definition-id"
	AdminCredDefGet     = AdminCredDefs + "/credential-definition-get"
	AdminCredDef        = AdminCredDefs + "/credential-definition"
	AdminCredDefGetList = AdminCredDefs + "/credential-definition-get-list"
	AdminCredDefList    = AdminCredDefs + "/credential-definition-list"
)

// Admin DIDs family
const (
	AdminDIDs           = Aries + "/admin-dids/1.0"
	AdminDIDGetList     = AdminDIDs + "/get-list-dids"
	AdminDIDList        = AdminDIDs + "/list-dids"
	AdminDIDCreate      = AdminDIDs + "/create-did"
	AdminDID            = AdminDIDs + "/did"
	AdminDIDGetPublic   = AdminDIDs + "/get-public-did"
	AdminDIDSetPublic   = AdminDIDs + "/set-public-did"
	AdminDIDRegister    = AdminDIDs + "/register-did"
	AdminDIDGetVerkey   = AdminDIDs + "/get-did-verkey"
	AdminDIDGetEndpoint = AdminDIDs + "/get-did-endpoint"
)

// Admin holder family
const (
	AdminHolder                   = Aries + "/admin-holder/1.0"
	AdminHolderSendProposal       = AdminHolder + "/send-proposal"
	AdminHolderCredExchange       = AdminHolder + "/credential-exchange"
	AdminHolderCredentialsGetList = AdminHolder + "/credentials-get-list"
	AdminHolderCredentialsList    = AdminHolder + "/credentials-list"
)

// Admin issuer family
const (
	AdminIssuer                   = Aries + "/admin-issuer/1.0"
	AdminIssuerSend               = AdminIssuer + "/send"
	AdminIssuerCredExchange       = AdminIssuer + "/credential-exchange"
	AdminIssuerCredentialsGetList = AdminIssuer + "/credentials-get-list"
	AdminIssuerCredentialsList    = AdminIssuer + "/credentials-list"
)
