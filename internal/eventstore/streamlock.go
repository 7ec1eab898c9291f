package eventstore

import "sync"

// StreamLocks hands out one mutex per stream. Locks are never freed; the number
// of streams is bounded by players and applications.
type StreamLocks struct {
	mu    sync.Mutex
	locks map[StreamID]*sync.Mutex
}

func NewStreamLocks() *StreamLocks {
	return &StreamLocks{locks: make(map[StreamID]*sync.Mutex)}
}

// Lock acquires the stream's writer lock and returns its release func.
func (l *StreamLocks) Lock(stream StreamID) func() {
	l.mu.Lock()
	m, ok := l.locks[stream]
	if !ok {
		m = &sync.Mutex{}
		l.locks[stream] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
