/*
Package notification handles the notification/1.0 messages. The problem
report is given to the protocol managers which own the thread: the credential
exchange is abandoned, or the connection handshake goes to the error state.
*/
package notification

import (
	"context"

	"github.com/findy-network/findy-agent-core/agent/bus"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/golang/glog"
)

// RecordType is the record type of the ack notifications.
const RecordType = "ack"

// ThreadOwner is the protocol manager which can own the thread of the
// problem report. The thread is owned only when it runs over the sender's
// connection.
type ThreadOwner interface {
	ReceiveProblemReport(ctx context.Context, connID, thid, explain string) (bool, error)
}

type Notifier struct {
	Owners  []ThreadOwner
	Station *bus.Station
}

// Register adds the notification messages to the registry.
func Register(reg *registry.Registry, n *Notifier) error {
	return reg.RegisterMany(
		registry.Descriptor{
			Type:    pltype.NotificationProblemReport,
			New:     func() didcomm.Message { return &common.ProblemReport{} },
			Handler: n.handleProblemReport,
		},
		registry.Descriptor{
			Type:    pltype.NotificationAck,
			New:     func() didcomm.Message { return &common.Ack{} },
			Handler: n.handleAck,
		},
	)
}

// problem reports are never answered with problem reports
func (n *Notifier) handleProblemReport(ctx context.Context, rc *comm.RequestContext) error {
	pr := rc.Message.(*common.ProblemReport)
	thid := pr.ThreadID()
	glog.Warningf("problem report (thread %s) from %s: %s", thid,
		rc.ConnectionID(), pr.ExplainLongTxt)

	for _, o := range n.Owners {
		ok, err := o.ReceiveProblemReport(ctx, rc.ConnectionID(), thid, pr.ExplainLongTxt)
		if err != nil {
			glog.Errorln("problem report handling:", err)
			return nil
		}
		if ok {
			return nil
		}
	}
	glog.V(1).Infoln("problem report for unknown thread", thid)
	return nil
}

func (n *Notifier) handleAck(_ context.Context, rc *comm.RequestContext) error {
	ack := rc.Message.(*common.Ack)
	glog.V(1).Infoln("ack", ack.Status, "thread:", ack.ThreadID())
	if n.Station != nil {
		n.Station.Broadcast(bus.Notify{
			RecordType:   RecordType,
			ID:           ack.ThreadID(),
			ConnectionID: rc.ConnectionID(),
			ThreadID:     ack.ThreadID(),
			State:        ack.Status,
		})
	}
	return nil
}
