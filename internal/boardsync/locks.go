package boardsync

import (
	"sort"
	"sync"
)

// keyedLocks serializes holders of the same key in the order they called
// acquire. Holders of disjoint keys do not wait on each other.
type keyedLocks struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{tails: map[string]chan struct{}{}}
}

func (l *keyedLocks) acquire(keys []string) (release func()) {
	keys = dedupSorted(keys)
	mine := make([]chan struct{}, len(keys))
	prev := make([]chan struct{}, len(keys))

	l.mu.Lock()
	for i, k := range keys {
		mine[i] = make(chan struct{})
		prev[i] = l.tails[k]
		l.tails[k] = mine[i]
	}
	l.mu.Unlock()

	for _, p := range prev {
		if p != nil {
			<-p
		}
	}
	return func() {
		l.mu.Lock()
		for i, k := range keys {
			if l.tails[k] == mine[i] {
				delete(l.tails, k)
			}
			close(mine[i])
		}
		l.mu.Unlock()
	}
}

func dedupSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
