package graph

import (
	"sync"
)

// nodeLocks provides per-node mutual exclusion. The lock table grows
// with the number of distinct node IDs touched; entries are never freed.
type nodeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNodeLocks() *nodeLocks {
	return &nodeLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// lock acquires the mutex for the given node ID and returns the unlock
// function.
func (l *nodeLocks) lock(id string) func() {
	l.mu.Lock()
	m, exists := l.locks[id]
	if !exists {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
