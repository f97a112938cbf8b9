// Package common includes the messages shared by the protocols: the problem
// report and the ack of the notification protocol.
package common

import (
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
)

// ProblemReport is the notification/1.0/problem-report message.
type ProblemReport struct {
	didcomm.Header
	Description    *Code  `json:"description,omitempty"`
	ExplainLongTxt string `json:"explain-ltxt"`
	WhoRetries     string `json:"who_retries,omitempty"`
}

// Code represents a problem report code
type Code struct {
	Code string `json:"code"`
	En   string `json:"en,omitempty"`
}

func (p *ProblemReport) Validate() error {
	c := &didcomm.Check{}
	return c.Required("explain-ltxt", p.ExplainLongTxt).
		OneOf("who_retries", p.WhoRetries,
			fault.RetryNone, fault.RetryMe, fault.RetryYou, fault.RetryBoth).
		Err()
}

// NewProblemReport returns problem report which is threaded to the in
// message.
func NewProblemReport(in *didcomm.Header, explain, whoRetries string) *ProblemReport {
	if whoRetries == "" {
		whoRetries = fault.RetryNone
	}
	return &ProblemReport{
		Header:         didcomm.NewReplyHeader(pltype.NotificationProblemReport, in),
		ExplainLongTxt: explain,
		WhoRetries:     whoRetries,
	}
}

// FromError builds the problem report from the protocol error.
func FromError(in *didcomm.Header, pe *fault.ProtocolError) *ProblemReport {
	pr := NewProblemReport(in, pe.Explain, pe.WhoRetries)
	pr.Description = &Code{Code: string(pe.Code), En: pe.Explain}
	return pr
}

// Ack acknowledgement struct
type Ack struct {
	didcomm.Header
	Status string `json:"status,omitempty"`
}

const (
	AckOK      = "OK"
	AckPending = "PENDING"
	AckFail    = "FAIL"
)

func (a *Ack) Validate() error {
	c := &didcomm.Check{}
	return c.OneOf("status", a.Status, AckOK, AckPending, AckFail).Err()
}

// NewAck returns ack of type t for the in message.
func NewAck(t string, in *didcomm.Header) *Ack {
	return &Ack{
		Header: didcomm.NewReplyHeader(t, in),
		Status: AckOK,
	}
}
