package server

import (
	"context"
	"errors"
	"strings"

	"github.com/findy-network/findy-agent-core/agent/agency"
	"github.com/golang/glog"
	"github.com/nats-io/nats.go"
)

// ErrNoNATS is returned when the agent has no NATS connection.
var ErrNoNATS = errors.New("NATS isn't configured")

// SubscribeNATS starts to take the messages published to <subject>.<verkey>.
// Every message is handled in its own goroutine like the HTTP requests.
func (s *Server) SubscribeNATS() (err error) {
	if s.a.NATS == nil {
		return ErrNoNATS
	}
	subject := s.a.Settings.NATSSubject()
	if subject == "" {
		return errors.New("NATS subject isn't set")
	}
	s.sub, err = s.a.NATS.Subscribe(subject+".*", func(m *nats.Msg) {
		go s.natsTransport(subject, m)
	})
	if err != nil {
		return err
	}
	glog.V(1).Infoln("NATS subscription on", subject+".*")
	return s.a.NATS.Flush()
}

func (s *Server) natsTransport(subject string, m *nats.Msg) {
	verkey := strings.TrimPrefix(m.Subject, subject+".")
	glog.V(1).Infoln("===== NATS TRANSPORT =====", verkey)

	ctx, cancel := context.WithTimeout(context.Background(), s.a.Settings.Timeout())
	defer cancel()

	err := s.a.Inbound(ctx, verkey, m.Data)
	switch {
	case errors.Is(err, agency.ErrUnknownEndpoint):
		glog.V(3).Infoln("NATS message to unknown endpoint:", verkey)
	case err != nil:
		glog.Warningln("NATS inbound message:", err)
	}
}
