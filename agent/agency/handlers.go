package agency

import (
	"context"
	"errors"
	"sync"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/golang/glog"
)

var ErrUnknownEndpoint = errors.New("endpoint isn't served by this agent")

// keyCache holds the verkeys which we have found from our wallet. Keys are
// never removed from the wallet, so the cache needs no invalidation.
type keyCache struct {
	sync.RWMutex
	m map[string]struct{}
}

func newKeyCache() keyCache {
	return keyCache{m: make(map[string]struct{})}
}

func (k *keyCache) has(vk string) bool {
	k.RLock()
	defer k.RUnlock()
	_, ok := k.m[vk]
	return ok
}

func (k *keyCache) add(vk string) {
	k.Lock()
	defer k.Unlock()
	k.m[vk] = struct{}{}
}

// IsOurEndpoint tells if the verkey of the endpoint path belongs to us. This
// is called for every inbound message, and the wallet is queried only for the
// first message.
func (a *Agency) IsOurEndpoint(ctx context.Context, verkey string) (bool, error) {
	if a.keys.has(verkey) {
		return true, nil
	}
	_, err := a.Wallet.GetLocalDIDForVerkey(ctx, verkey)
	if errors.Is(err, ssi.ErrUnknownDID) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	a.keys.add(verkey)
	return true, nil
}

// Inbound handles the message another agent sent to our endpoint. The
// verkey is the last part of the endpoint; empty verkey is the shared
// endpoint where the recipient is found from the message.
func (a *Agency) Inbound(ctx context.Context, verkey string, data []byte) error {
	if verkey != "" {
		ours, err := a.IsOurEndpoint(ctx, verkey)
		if err != nil {
			return err
		}
		if !ours {
			glog.V(3).Infoln("message to unknown endpoint:", verkey)
			return ErrUnknownEndpoint
		}
	}
	return a.Dispatcher.Handle(ctx, data, comm.Delivery{
		Origin:       comm.OriginNetwork,
		RecipientKey: verkey,
	})
}

// Admin handles the admin message and returns the replies the handlers sent
// back to us, problem reports included.
func (a *Agency) Admin(ctx context.Context, data []byte) ([][]byte, error) {
	var c comm.Collector
	err := a.Dispatcher.Handle(ctx, data, comm.Delivery{
		Origin: comm.OriginLocal,
		Reply:  c.Reply,
	})
	return c.Replies(), err
}
