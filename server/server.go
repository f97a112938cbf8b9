/*
Package server encapsulates the inbound entry points of the agent. The HTTP
server takes the DIDComm messages at /<protocol path>/<verkey>, the admin
messages at /admin and tells its version at /version. When NATS is
configured, the messages published to <subject>.<verkey> are handled the same
way as the HTTP ones.
*/
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/findy-network/findy-agent-core/agent/agency"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/nats-io/nats.go"
)

const (
	AdminPath   = "/admin"
	VersionPath = "/version"

	maxBodySize = 4 << 20
)

type Server struct {
	a   *agency.Agency
	mux *http.ServeMux

	srv *http.Server
	sub *nats.Subscription
}

func New(a *agency.Agency) *Server {
	s := &Server{a: a, mux: http.NewServeMux()}

	pattern := fmt.Sprintf("/%s/", a.Settings.ProtocolPath())
	s.mux.HandleFunc(pattern, s.protocolTransport)
	s.mux.HandleFunc(AdminPath, s.adminTransport)
	s.mux.HandleFunc(VersionPath, func(w http.ResponseWriter, _ *http.Request) {
		if glog.V(5) {
			glog.Info("/version requested")
		}
		_, _ = w.Write([]byte(utils.Version))
	})
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartHTTPServer starts the http server. The function blocks when it success.
func (s *Server) StartHTTPServer(serverPort uint) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%v", serverPort),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if glog.V(1) {
		glog.Info(s.a.Settings.VersionInfo())
		glog.Infof("HTTP Server on port: %v, endpoints %s",
			serverPort, s.a.Settings.Endpoint("<verkey>"))
	}
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the NATS subscription and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			glog.Warningln("NATS unsubscribe:", err)
		}
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// BuildHostAddr sets the host address as the world sees it.
func BuildHostAddr(hub *utils.Hub, scheme, host string, hostPort uint) {
	if hostPort != 80 && hostPort != 0 {
		hub.SetHostAddr(fmt.Sprintf("%s://%s:%v", scheme, host, hostPort))
	} else {
		hub.SetHostAddr(fmt.Sprintf("%s://%s", scheme, host))
	}
}

func errorResponse(w http.ResponseWriter, status int) {
	glog.V(2).Info("Returning ", status)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(http.StatusText(status)))
}

func (s *Server) protocolTransport(w http.ResponseWriter, r *http.Request) {
	defer err2.Catch(func(err error) error {
		glog.Error("error:", err)
		errorResponse(w, http.StatusInternalServerError)
		return err
	})

	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed)
		return
	}
	verkey := strings.TrimPrefix(r.URL.Path, "/"+s.a.Settings.ProtocolPath()+"/")
	if verkey == "" || strings.Contains(verkey, "/") {
		glog.V(3).Infoln("------ address isn't valid:", r.URL.Path)
		errorResponse(w, http.StatusNotFound)
		return
	}
	glog.V(1).Infoln("===== Aries TRANSPORT =====", r.Method, verkey)

	data := try.To1(io.ReadAll(io.LimitReader(r.Body, maxBodySize)))

	err := s.a.Inbound(r.Context(), verkey, data)
	if errors.Is(err, agency.ErrUnknownEndpoint) {
		errorResponse(w, http.StatusNotFound)
		return
	}
	if err != nil {
		glog.Warningln("inbound message:", err)
		errorResponse(w, fault.HTTPStatus(fault.CodeOf(err)))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// adminTransport handles one admin message and returns the replies as a JSON
// array. The callers must be on the same host.
func (s *Server) adminTransport(w http.ResponseWriter, r *http.Request) {
	defer err2.Catch(func(err error) error {
		glog.Error("admin error:", err)
		errorResponse(w, http.StatusInternalServerError)
		return err
	})

	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed)
		return
	}
	if !isLoopback(r.RemoteAddr) {
		glog.Warningln("admin request from", r.RemoteAddr, "refused")
		errorResponse(w, http.StatusForbidden)
		return
	}
	data := try.To1(io.ReadAll(io.LimitReader(r.Body, maxBodySize)))

	replies, err := s.a.Admin(r.Context(), data)
	status := fault.HTTPStatus(fault.CodeOf(err))
	if err != nil {
		glog.V(1).Infoln("admin message failed:", err)
	}

	var body []byte
	if len(replies) == 0 && err != nil {
		body = try.To1(json.Marshal(fault.DetailOf(err)))
	} else {
		msgs := make([]json.RawMessage, 0, len(replies))
		for _, reply := range replies {
			msgs = append(msgs, reply)
		}
		body = try.To1(json.Marshal(msgs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
