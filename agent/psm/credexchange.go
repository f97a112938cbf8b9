package psm

import (
	"encoding/json"
	"time"

	"github.com/findy-network/findy-agent-core/agent/fault"
)

// CredState is the state of the credential exchange protocol.
type CredState string

const (
	CredProposalSent       CredState = "proposal_sent"
	CredProposalReceived   CredState = "proposal_received"
	CredOfferSent          CredState = "offer_sent"
	CredOfferReceived      CredState = "offer_received"
	CredRequestSent        CredState = "request_sent"
	CredRequestReceived    CredState = "request_received"
	CredCredentialIssued   CredState = "credential_issued"
	CredCredentialReceived CredState = "credential_received"
	CredStored             CredState = "stored"
	CredAbandoned          CredState = "abandoned"
)

const (
	RoleHolder = "holder"
	RoleIssuer = "issuer"
)

var credTransitions = map[CredState]CredState{
	CredProposalSent:       CredOfferReceived,
	CredProposalReceived:   CredOfferSent,
	CredOfferSent:          CredRequestReceived,
	CredOfferReceived:      CredRequestSent,
	CredRequestSent:        CredCredentialReceived,
	CredRequestReceived:    CredCredentialIssued,
	CredCredentialReceived: CredStored,
}

// Terminal tells if the exchange is finished. Issuer side finishes when the
// credential is issued.
func (s CredState) Terminal() bool {
	return s == CredStored || s == CredCredentialIssued || s == CredAbandoned
}

// CanTransitTo tells if the state change is allowed. Exchange moves only
// forward and every unfinished exchange can be abandoned.
func (s CredState) CanTransitTo(next CredState) bool {
	if s.Terminal() {
		return false
	}
	if next == CredAbandoned {
		return true
	}
	return credTransitions[s] == next
}

// CredExchangeRecord is the persisted credential exchange.
type CredExchangeRecord struct {
	CredentialExchangeID   string          `json:"credential_exchange_id"`
	ConnectionID           string          `json:"connection_id"`
	ThreadID               string          `json:"thread_id"`
	Initiator              string          `json:"initiator"`
	Role                   string          `json:"role"`
	State                  CredState       `json:"state"`
	SchemaID               *string         `json:"schema_id,omitempty"`
	CredentialDefinitionID *string         `json:"credential_definition_id,omitempty"`
	CredentialProposal     json.RawMessage `json:"credential_proposal,omitempty"`
	CredentialOffer        json.RawMessage `json:"credential_offer,omitempty"`
	CredentialRequest      json.RawMessage `json:"credential_request,omitempty"`
	Credential             json.RawMessage `json:"credential,omitempty"`
	CredentialID           *string         `json:"credential_id,omitempty"`
	ErrorMsg               *string         `json:"error_msg,omitempty"`
	AutoIssue              bool            `json:"auto_issue"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// NewCredExchangeRecord returns a record in the given start state.
func NewCredExchangeRecord(id, connID, threadID, initiator, role string, state CredState) *CredExchangeRecord {
	t := now()
	return &CredExchangeRecord{
		CredentialExchangeID: id,
		ConnectionID:         connID,
		ThreadID:             threadID,
		Initiator:            initiator,
		Role:                 role,
		State:                state,
		CreatedAt:            t,
		UpdatedAt:            t,
	}
}

func (r *CredExchangeRecord) RecordType() string {
	return TypeCredExchange
}

func (r *CredExchangeRecord) RecordID() string {
	return r.CredentialExchangeID
}

func (r *CredExchangeRecord) Tags() map[string]string {
	tags := map[string]string{
		"connection_id": r.ConnectionID,
		"thread_id":     r.ThreadID,
		"role":          r.Role,
		"state":         string(r.State),
	}
	addTag(tags, "credential_definition_id", r.CredentialDefinitionID)
	addTag(tags, "schema_id", r.SchemaID)
	return tags
}

// SetState moves the exchange forward if the transition is allowed.
func (r *CredExchangeRecord) SetState(next CredState) error {
	if !r.State.CanTransitTo(next) {
		return fault.Invalid("credential exchange %s cannot move from %s to %s",
			r.CredentialExchangeID, r.State, next)
	}
	r.State = next
	r.UpdatedAt = now()
	return nil
}

// Abandon marks the exchange abandoned with the reason. Finished exchanges
// aren't touched and false is returned.
func (r *CredExchangeRecord) Abandon(reason string) bool {
	if !r.State.CanTransitTo(CredAbandoned) {
		return false
	}
	r.State = CredAbandoned
	r.ErrorMsg = Str(reason)
	r.UpdatedAt = now()
	return true
}
