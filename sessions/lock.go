package sessions

import "sync"

// Locker hands out one mutex per session id so requests on the same session
// run one at a time while different sessions proceed in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until id is free and returns the matching unlock function.
func (l *Locker) Lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &entry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of ids currently locked or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
