/*
Package bus is the notification station of the record state changes. The
protocol managers broadcast every state change of the connection and
credential exchange records, and the listeners get them by record ID or all
of them with AllRecords.
*/
package bus

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// AllRecords is the listener key for all of the notifications.
const AllRecords = "*"

const listenerBuf = 32

// Notify tells the new state of the record.
type Notify struct {
	RecordType   string
	ID           string
	ConnectionID string
	ThreadID     string
	State        string
	Timestamp    int64
}

type StateChan chan Notify

type Station struct {
	lk        sync.Mutex
	listeners map[string][]StateChan
}

func New() *Station {
	return &Station{listeners: make(map[string][]StateChan)}
}

// AddListener returns a channel for the notifications of the key which is a
// record ID or AllRecords.
func (s *Station) AddListener(key string) StateChan {
	s.lk.Lock()
	defer s.lk.Unlock()

	c := make(StateChan, listenerBuf)
	s.listeners[key] = append(s.listeners[key], c)
	return c
}

// RmListener removes the listener channel.
func (s *Station) RmListener(key string, c StateChan) {
	s.lk.Lock()
	defer s.lk.Unlock()

	chans := s.listeners[key]
	for i, lc := range chans {
		if lc == c {
			s.listeners[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.listeners[key]) == 0 {
		delete(s.listeners, key)
	}
}

// Broadcast sends the notification to the listeners. It never blocks: a
// listener which doesn't keep up loses notifications.
func (s *Station) Broadcast(n Notify) {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixNano()
	}
	s.lk.Lock()
	targets := make([]StateChan, 0, 2)
	targets = append(targets, s.listeners[n.ID]...)
	targets = append(targets, s.listeners[AllRecords]...)
	s.lk.Unlock()

	for _, c := range targets {
		select {
		case c <- n:
		default:
			glog.Warningln("bus listener full, dropping", n.RecordType, n.ID, n.State)
		}
	}
}

// WaitState waits until the record reaches one of the states or the timeout.
func (s *Station) WaitState(id string, timeout time.Duration, states ...string) (Notify, bool) {
	c := s.AddListener(id)
	defer s.RmListener(id, c)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case n := <-c:
			for _, st := range states {
				if n.State == st {
					return n, true
				}
			}
		case <-timer.C:
			return Notify{}, false
		}
	}
}
