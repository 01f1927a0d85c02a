package settlement

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// roundLocks hands out one mutex per round id. Entries are dropped once no
// goroutine holds or waits on them.
type roundLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newRoundLocks() *roundLocks {
	return &roundLocks{entries: map[string]*lockEntry{}}
}

func (l *roundLocks) lock(id string) func() {
	l.mu.Lock()
	e := l.entries[id]
	if e == nil {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

func (l *roundLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
