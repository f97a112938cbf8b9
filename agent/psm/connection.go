package psm

import (
	"fmt"
	"sort"
	"time"

	"github.com/findy-network/findy-agent-core/agent/fault"
)

// ConnectionState is the state of the connection protocol.
type ConnectionState string

const (
	ConnInit       ConnectionState = "init"
	ConnInvitation ConnectionState = "invitation"
	ConnRequest    ConnectionState = "request"
	ConnResponse   ConnectionState = "response"
	ConnActive     ConnectionState = "active"
	ConnStatic     ConnectionState = "static"
	ConnError      ConnectionState = "error"
	ConnInactive   ConnectionState = "inactive"
)

// ConnectionStates returns the states which can be used in the list filter.
func ConnectionStates() []string {
	return []string{
		string(ConnInit), string(ConnInvitation), string(ConnRequest),
		string(ConnResponse), string(ConnActive), string(ConnError),
		string(ConnInactive),
	}
}

var connTransitions = map[ConnectionState][]ConnectionState{
	ConnInit:       {ConnInvitation, ConnStatic},
	ConnInvitation: {ConnRequest},
	ConnRequest:    {ConnResponse},
	ConnResponse:   {ConnActive},
}

// CanTransitTo tells if the state change is allowed. Every state can go to
// error, error included, and every state can be deactivated by the admin.
func (s ConnectionState) CanTransitTo(next ConnectionState) bool {
	switch next {
	case ConnInactive:
		return s != ConnInactive
	case ConnError:
		return true
	}
	for _, allowed := range connTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Ready tells if messages can be sent over the connection.
func (s ConnectionState) Ready() bool {
	return s == ConnActive || s == ConnStatic
}

// priority is the primary sort key of the connection lists.
func (s ConnectionState) priority() int {
	switch s {
	case ConnInvitation:
		return 1
	case ConnInactive:
		return 2
	}
	return 0
}

const (
	InitiatorSelf     = "self"
	InitiatorExternal = "external"

	AcceptManual = "manual"
	AcceptAuto   = "auto"

	InvitationOnce   = "once"
	InvitationMulti  = "multi"
	InvitationStatic = "static"
)

// ConnectionRecord is the persisted pairwise connection.
type ConnectionRecord struct {
	ConnectionID        string          `json:"connection_id"`
	Initiator           string          `json:"initiator"`
	InvitationMode      string          `json:"invitation_mode"`
	MyDID               string          `json:"my_did,omitempty"`
	TheirDID            *string         `json:"their_did,omitempty"`
	TheirLabel          *string         `json:"their_label,omitempty"`
	TheirRole           *string         `json:"their_role,omitempty"`
	State               ConnectionState `json:"state"`
	InvitationKey       *string         `json:"invitation_key,omitempty"`
	RequestID           *string         `json:"request_id,omitempty"`
	Accept              string          `json:"accept"`
	InboundConnectionID *string         `json:"inbound_connection_id,omitempty"`
	ErrorMsg            *string         `json:"error_msg,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewConnectionRecord returns a record in the init state.
func NewConnectionRecord(id, initiator, accept string) *ConnectionRecord {
	t := now()
	return &ConnectionRecord{
		ConnectionID:   id,
		Initiator:      initiator,
		InvitationMode: InvitationOnce,
		State:          ConnInit,
		Accept:         accept,
		CreatedAt:      t,
		UpdatedAt:      t,
	}
}

func (r *ConnectionRecord) RecordType() string {
	return TypeConnection
}

func (r *ConnectionRecord) RecordID() string {
	return r.ConnectionID
}

func (r *ConnectionRecord) Tags() map[string]string {
	tags := map[string]string{
		"initiator": r.Initiator,
		"state":     string(r.State),
	}
	addTag(tags, "my_did", Str(r.MyDID))
	addTag(tags, "their_did", r.TheirDID)
	addTag(tags, "their_role", r.TheirRole)
	addTag(tags, "invitation_key", r.InvitationKey)
	addTag(tags, "request_id", r.RequestID)
	return tags
}

func addTag(tags map[string]string, name string, value *string) {
	if value != nil && *value != "" {
		tags[name] = *value
	}
}

// SetState moves the record to the next state if the transition is allowed.
func (r *ConnectionRecord) SetState(next ConnectionState) error {
	if !r.State.CanTransitTo(next) {
		return fault.Invalid("connection %s cannot move from %s to %s",
			r.ConnectionID, r.State, next)
	}
	r.State = next
	r.UpdatedAt = now()
	return nil
}

// Touch updates the modification time.
func (r *ConnectionRecord) Touch() {
	r.UpdatedAt = now()
}

// Fail moves the record to error state with the reason.
func (r *ConnectionRecord) Fail(reason string) {
	r.State = ConnError
	r.ErrorMsg = Str(reason)
	r.UpdatedAt = now()
}

// CheckReady returns ConnectionNotReadyError if the connection cannot be used.
func (r *ConnectionRecord) CheckReady() error {
	if !r.State.Ready() {
		return &fault.ConnectionNotReadyError{
			ConnectionID: r.ConnectionID,
			State:        string(r.State),
		}
	}
	return nil
}

func (r *ConnectionRecord) String() string {
	return fmt.Sprintf("connection %s [%s]", r.ConnectionID, r.State)
}

// SortConnections orders the list by state priority and then by creation
// time: active and others first, then invitations, and inactive last.
func SortConnections(recs []*ConnectionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := recs[i].State.priority(), recs[j].State.priority()
		if pi != pj {
			return pi < pj
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
