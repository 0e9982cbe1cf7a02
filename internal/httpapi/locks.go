package httpapi

import (
	"sync"

	"github.com/hamed0406/livemonitor/internal/domain"
)

// idLocks hands out one mutex per service id so a store write and the matching
// engine notification are never interleaved with another request for that id.
type idLocks struct {
	mu sync.Mutex
	m  map[domain.TargetID]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func (l *idLocks) lock(id domain.TargetID) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[domain.TargetID]*idLock)
	}
	k := l.m[id]
	if k == nil {
		k = &idLock{}
		l.m[id] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		if k.refs--; k.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
