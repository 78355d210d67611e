package usecase

import "sync"

// characterLocks hands out one mutex per character name. Save-bearing
// operations on the same character serialize on it; distinct characters
// proceed in parallel.
type characterLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCharacterLocks() *characterLocks {
	return &characterLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *characterLocks) get(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks[name] == nil {
		l.locks[name] = &sync.Mutex{}
	}
	return l.locks[name]
}
