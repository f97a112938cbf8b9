package psm

import "sync"

// Locker offers mutual exclusion per record ID. Entries live only while
// somebody holds or waits the lock.
type Locker struct {
	l     sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

// Lock locks the id and returns the unlock function.
func (lk *Locker) Lock(id string) (unlock func()) {
	lk.l.Lock()
	if lk.locks == nil {
		lk.locks = make(map[string]*lockEntry)
	}
	e, ok := lk.locks[id]
	if !ok {
		e = &lockEntry{}
		lk.locks[id] = e
	}
	e.refs++
	lk.l.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		lk.l.Lock()
		e.refs--
		if e.refs == 0 {
			delete(lk.locks, id)
		}
		lk.l.Unlock()
	}
}

func (lk *Locker) size() int {
	lk.l.Lock()
	defer lk.l.Unlock()
	return len(lk.locks)
}
