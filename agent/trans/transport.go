/*
Package trans is the transport collaborator of the agent. Outbound messages
are delivered to the endpoints of the other agents; the endpoint scheme
selects the transport: http(s) URLs are POSTed, nats:<subject> endpoints are
published to the NATS subject.
*/
package trans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

//go:generate mockgen -source=transport.go -destination=mock/transport_mock.go -package=mock

var (
	ErrNoTransport = errors.New("no transport for endpoint")

	// ErrUnconfirmed means the data was handed to the transport but the
	// delivery wasn't confirmed. Sending it again can duplicate the message.
	ErrUnconfirmed = errors.New("delivery not confirmed")
)

// Transport delivers the data to the endpoint.
type Transport interface {
	Send(ctx context.Context, endpoint string, data []byte) error
}

// Func is a function adapter for Transport.
type Func func(ctx context.Context, endpoint string, data []byte) error

func (f Func) Send(ctx context.Context, endpoint string, data []byte) error {
	return f(ctx, endpoint, data)
}

// Router selects the transport by the endpoint's scheme.
type Router struct {
	l       sync.RWMutex
	schemes map[string]Transport
}

func NewRouter() *Router {
	return &Router{schemes: make(map[string]Transport)}
}

// Handle sets the transport for the scheme, e.g. "http" or "nats".
func (r *Router) Handle(scheme string, t Transport) *Router {
	r.l.Lock()
	defer r.l.Unlock()
	r.schemes[scheme] = t
	return r
}

func (r *Router) Send(ctx context.Context, endpoint string, data []byte) error {
	scheme, _, found := strings.Cut(endpoint, ":")
	if !found {
		return fmt.Errorf("%w: %q", ErrNoTransport, endpoint)
	}
	r.l.RLock()
	t, ok := r.schemes[strings.ToLower(scheme)]
	r.l.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoTransport, endpoint)
	}
	return t.Send(ctx, endpoint, data)
}
