/*
Package didcomm offers the common parts of the DIDComm messages: the header
every message carries, the typed message interface, the inbound envelope and
type URI helpers.

All protocol messages are plain structs which embed the Header. They implement
Message by having the Hdr from the Header and their own Validate.
*/
package didcomm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/decorator"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/lainio/err2"
)

// Header is the part every DIDComm message has.
type Header struct {
	Type   string            `json:"@type"`
	ID     string            `json:"@id"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}

// Message is the typed protocol message. Validate checks the required
// fields of the message type.
type Message interface {
	Hdr() *Header
	Validate() error
}

func (h *Header) Hdr() *Header {
	return h
}

// ThreadID returns the thread ID of the message. A message without the thread
// decorator starts a new thread, and its ID is the thread ID.
func (h *Header) ThreadID() string {
	if h.Thread != nil && h.Thread.ID != "" {
		return h.Thread.ID
	}
	return h.ID
}

// NewHeader returns a header for the message which starts a new thread.
func NewHeader(t string) Header {
	id := utils.UUID()
	return Header{Type: t, ID: id, Thread: &decorator.Thread{ID: id}}
}

// NewReplyHeader returns a header for the message which continues the thread
// of the in message.
func NewReplyHeader(t string, in *Header) Header {
	return Header{
		Type:   t,
		ID:     utils.UUID(),
		Thread: ReplyThread(in),
	}
}

// ReplyThread returns thread decorator for the reply of the in message.
func ReplyThread(in *Header) *decorator.Thread {
	pid := ""
	if in.Thread != nil {
		pid = in.Thread.PID
	}
	return &decorator.Thread{ID: in.ThreadID(), PID: pid}
}

// Envelope is a decoded inbound message which type isn't resolved yet.
type Envelope struct {
	Header
	Raw []byte
}

var ErrNoType = errors.New("message has no @type")

// Decode reads the header of the raw message. Missing @id is generated and
// missing thread is set to start a new one.
func Decode(data []byte) (e *Envelope, err error) {
	defer err2.Handle(&err, "decode envelope")

	e = &Envelope{Raw: data}
	if err := dtoFromJSON(data, &e.Header); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, ErrNoType
	}
	e.Type = Normalize(e.Type)
	if e.ID == "" {
		e.ID = utils.UUID()
	}
	e.Thread = decorator.CheckThread(e.Thread, e.ID)
	return e, nil
}

// dtoFromJSON is dto.FromJSON which returns the error instead of throwing it.
func dtoFromJSON(data []byte, v any) (err error) {
	defer err2.Handle(&err, "invalid JSON")
	dto.FromJSON(data, v)
	return nil
}

// Unmarshal reads the raw message to m and checks its thread.
func Unmarshal(data []byte, m Message) error {
	if err := dtoFromJSON(data, m); err != nil {
		return err
	}
	h := m.Hdr()
	h.Type = Normalize(h.Type)
	h.Thread = decorator.CheckThread(h.Thread, h.ID)
	return nil
}

// Marshal returns the wire format of the message.
func Marshal(m Message) []byte {
	return dto.ToJSONBytes(m)
}

// Normalize converts the didcomm.org prefix to the one we use internally.
func Normalize(t string) string {
	if strings.HasPrefix(t, pltype.DIDOrg+"/") {
		return pltype.Aries + strings.TrimPrefix(t, pltype.DIDOrg)
	}
	return t
}

// Family returns the protocol family and version part of the type URI, i.e.
// everything before the final path segment.
func Family(t string) string {
	i := strings.LastIndex(t, "/")
	if i < 0 {
		return ""
	}
	return t[:i]
}

// MsgType is a parsed message type URI.
type MsgType struct {
	Prefix  string
	Name    string // protocol name like connections
	Version string
	Msg     string // message name like request
}

// ParseType splits the type URI to its parts.
func ParseType(t string) (mt MsgType, err error) {
	t = Normalize(t)
	parts := strings.Split(t, "/")
	if len(parts) < 4 {
		return mt, fmt.Errorf("type URI %q is not valid", t)
	}
	n := len(parts)
	return MsgType{
		Prefix:  strings.Join(parts[:n-3], "/"),
		Name:    parts[n-3],
		Version: parts[n-2],
		Msg:     parts[n-1],
	}, nil
}

// Family returns the family URI of the type.
func (mt MsgType) Family() string {
	return mt.Prefix + "/" + mt.Name + "/" + mt.Version
}
