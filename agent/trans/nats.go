package trans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"
)

// NATSScheme is the endpoint scheme of the NATS transport.
const NATSScheme = "nats"

// NATSFlushTimeout is the default time to wait the server to confirm the
// published message.
const NATSFlushTimeout = 5 * time.Second

// NATS publishes the messages to the subject of the nats:<subject> endpoint.
type NATS struct {
	nc           *nats.Conn
	flushTimeout time.Duration
}

func NewNATS(nc *nats.Conn) *NATS {
	return &NATS{nc: nc, flushTimeout: NATSFlushTimeout}
}

// Connect creates a NATS connection to the given URL.
func Connect(url, name string) (*nats.Conn, error) {
	glog.V(1).Infof("connecting to NATS at %s as %s", url, name)

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			glog.Warningln("NATS disconnected:", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			glog.V(1).Infoln("NATS reconnected to", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject of the NATS endpoint.
func Subject(endpoint string) (string, bool) {
	subj, ok := strings.CutPrefix(endpoint, NATSScheme+":")
	if !ok || subj == "" || strings.HasPrefix(subj, "//") {
		return "", false
	}
	return subj, true
}

// Send publishes the data and flushes the connection, which waits the server
// to have it. A failed flush is ErrUnconfirmed because the message may be
// delivered already.
func (n *NATS) Send(ctx context.Context, endpoint string, data []byte) error {
	subj, ok := Subject(endpoint)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoTransport, endpoint)
	}
	if err := n.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, n.flushTimeout)
	defer cancel()
	if err := n.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("%w: nats flush: %w", ErrUnconfirmed, err)
	}
	return nil
}
