package utils

import (
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const HTTPReqTimeout = 1 * time.Minute

var Settings = &Hub{}

// Hub holds the process wide settings. It's written once at startup by the
// start command and read by the agent packages afterwards.
type Hub struct {
	l sync.RWMutex

	label         string        // label we use in invitations and requests
	hostAddr      string        // host address as seen from the internet incl. scheme and port
	protocolPath  string        // URL path for the inbound DIDComm messages
	natsSubject   string        // subject prefix for NATS inbound, empty if off
	versionInfo   string        // version info in free format
	timeout       time.Duration // timeout for outbound requests
	exchangeTTL   time.Duration // how long credential exchange can be in progress
	autoAccept    bool          // accept connection invitations and requests
	localTestMode bool          // tells if are running unit tests
}

func (h *Hub) Label() string {
	h.l.RLock()
	defer h.l.RUnlock()
	if h.label == "" {
		return "findy-agent-core"
	}
	return h.label
}

func (h *Hub) SetLabel(label string) {
	h.l.Lock()
	defer h.l.Unlock()
	h.label = label
}

// SetHostAddr sets current host name of this service agent. The host name is
// used in the URLs and endpoints.
func (h *Hub) SetHostAddr(addr string) {
	h.l.Lock()
	defer h.l.Unlock()
	h.hostAddr = strings.TrimSuffix(addr, "/")
}

func (h *Hub) HostAddr() string {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.hostAddr
}

func (h *Hub) SetProtocolPath(p string) {
	h.l.Lock()
	defer h.l.Unlock()
	h.protocolPath = strings.Trim(p, "/")
}

func (h *Hub) ProtocolPath() string {
	h.l.RLock()
	defer h.l.RUnlock()
	if h.protocolPath == "" {
		return "a2a"
	}
	return h.protocolPath
}

func (h *Hub) SetNATSSubject(s string) {
	h.l.Lock()
	defer h.l.Unlock()
	h.natsSubject = s
}

func (h *Hub) NATSSubject() string {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.natsSubject
}

// Endpoint returns the service endpoint for the verkey. When NATS inbound is
// on it is preferred.
func (h *Hub) Endpoint(verkey string) string {
	if subj := h.NATSSubject(); subj != "" {
		return "nats:" + subj + "." + verkey
	}
	return h.HostAddr() + "/" + h.ProtocolPath() + "/" + verkey
}

// SetVersionInfo sets current version info of this agent.
func (h *Hub) SetVersionInfo(info string) {
	h.l.Lock()
	defer h.l.Unlock()
	h.versionInfo = info
}

func (h *Hub) VersionInfo() string {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.versionInfo
}

// SetTimeout sets the default timeout for outbound requests.
func (h *Hub) SetTimeout(to time.Duration) {
	h.l.Lock()
	defer h.l.Unlock()
	h.timeout = to
}

func (h *Hub) Timeout() time.Duration {
	h.l.RLock()
	defer h.l.RUnlock()
	if h.timeout == 0 {
		return HTTPReqTimeout
	}
	return h.timeout
}

func (h *Hub) SetExchangeTTL(ttl time.Duration) {
	h.l.Lock()
	defer h.l.Unlock()
	h.exchangeTTL = ttl
}

// ExchangeTTL returns max age of the unfinished credential exchange. Zero means
// forever.
func (h *Hub) ExchangeTTL() time.Duration {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.exchangeTTL
}

func (h *Hub) SetAutoAccept(yes bool) {
	h.l.Lock()
	defer h.l.Unlock()
	h.autoAccept = yes
}

func (h *Hub) AutoAccept() bool {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.autoAccept
}

func (h *Hub) SetLocalTestMode(yes bool) {
	h.l.Lock()
	defer h.l.Unlock()
	h.localTestMode = yes
}

func (h *Hub) LocalTestMode() bool {
	h.l.RLock()
	defer h.l.RUnlock()
	return h.localTestMode
}

// LogSettings prints the current settings to the log.
func (h *Hub) LogSettings() {
	glog.V(1).Infoln("label:", h.Label())
	glog.V(1).Infoln("host address:", h.HostAddr())
	glog.V(1).Infoln("protocol path:", h.ProtocolPath())
	glog.V(1).Infoln("nats subject:", h.NATSSubject())
	glog.V(1).Infoln("auto accept:", h.AutoAccept())
}
