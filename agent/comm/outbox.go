package comm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/findy-network/findy-agent-core/agent/trans"
	"github.com/golang/glog"
	"github.com/lainio/err2"
)

var (
	ErrQueueFull    = errors.New("outbox queue full")
	ErrOutboxClosed = errors.New("outbox closed")
)

// OutboxConfig is the tuning of the Outbox. Zero values get the defaults.
type OutboxConfig struct {
	Workers         int
	QueueLen        int
	MaxRetries      uint64
	InitialInterval time.Duration

	// DrainTimeout is how long Close lets the workers deliver the queued
	// messages before the pending ones are given up.
	DrainTimeout time.Duration

	// OnResult is called after the delivery is finished or given up.
	OnResult func(endpoint string, err error)
}

func (c *OutboxConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueLen <= 0 {
		c.QueueLen = 256
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
}

type job struct {
	endpoint string
	data     []byte
}

// Outbox is the buffered outbound queue. The workers deliver the messages with
// the transport and retry the failed ones with exponential backoff.
type Outbox struct {
	cfg OutboxConfig
	t   trans.Transport

	l      sync.RWMutex
	closed bool
	jobs   chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutbox(t trans.Transport, cfg OutboxConfig) *Outbox {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		cfg:    cfg,
		t:      t,
		jobs:   make(chan job, cfg.QueueLen),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the workers.
func (o *Outbox) Start() {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.work()
	}
	glog.V(1).Infoln("outbox started with", o.cfg.Workers, "workers")
}

// Post queues the data. It never blocks: full queue is an error.
func (o *Outbox) Post(endpoint string, data []byte) error {
	o.l.RLock()
	defer o.l.RUnlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.jobs <- job{endpoint: endpoint, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops taking new messages and lets the workers deliver the queued ones.
// What isn't delivered in DrainTimeout is given up.
func (o *Outbox) Close() {
	o.l.Lock()
	if o.closed {
		o.l.Unlock()
		return
	}
	o.closed = true
	close(o.jobs)
	o.l.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.cfg.DrainTimeout):
		glog.Warningln("outbox drain timeout, giving up the pending messages")
		o.cancel()
		<-done
	}
	o.cancel()
}

func (o *Outbox) work() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.deliver(j)
	}
}

func (o *Outbox) deliver(j job) {
	var err error
	defer err2.Catch(func(err error) error {
		glog.Errorln("outbox delivery panic:", err)
		return err
	})
	defer func() {
		if o.cfg.OnResult != nil {
			o.cfg.OnResult(j.endpoint, err)
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, o.cfg.MaxRetries), o.ctx)

	err = backoff.RetryNotify(func() error {
		err := o.t.Send(o.ctx, j.endpoint, j.data)
		if errors.Is(err, trans.ErrNoTransport) || errors.Is(err, trans.ErrUnconfirmed) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, d time.Duration) {
		glog.Warningf("delivery to %s failed, retry in %v: %v", j.endpoint, d, err)
	})
	if err != nil {
		glog.Errorf("delivery to %s gave up: %v", j.endpoint, err)
	}
}
