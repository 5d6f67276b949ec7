package sequence

import "sync"

type pair struct {
	branchID   int64
	categoryID int64
}

// pairLocks serializes allocations per (branch, category) inside one process.
// Entries are reference counted and dropped when unused.
type pairLocks struct {
	mu sync.Mutex
	m  map[pair]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func (l *pairLocks) lock(p pair) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[pair]*pairLock)
	}
	pl, ok := l.m[p]
	if !ok {
		pl = &pairLock{}
		l.m[p] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, p)
		}
		l.mu.Unlock()
	}
}
