package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/findy-network/findy-agent-core/agent/agency"
	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// StartTestHTTPServer builds the in-memory agent behind a local test server.
// The agent's host address is the server's URL and its ledger file is in the
// dataPath.
func StartTestHTTPServer(label, dataPath string) (a *agency.Agency, srv *httptest.Server, err error) {
	defer err2.Handle(&err, "start test server")

	var s *Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Handler().ServeHTTP(w, r)
	}))
	defer err2.Handle(&err, func(err error) error {
		srv.Close()
		return err
	})

	hub := &utils.Hub{}
	hub.SetLabel(label)
	hub.SetHostAddr(srv.URL)
	hub.SetTimeout(5 * time.Second)
	hub.SetLocalTestMode(true)

	a = try.To1(agency.New(context.Background(), agency.Config{
		Storage:  agency.StorageMemory,
		DataPath: dataPath,
		Settings: hub,
		Outbox: comm.OutboxConfig{
			Workers:         2,
			MaxRetries:      2,
			InitialInterval: 10 * time.Millisecond,
		},
	}))
	defer err2.Handle(&err, func(err error) error {
		a.Close()
		return err
	})
	s = New(a)
	try.To(a.Start())
	return a, srv, nil
}
