// internal/keylock/keylock.go
package keylock

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired within the
// bounded wait. Callers surface it as a retryable conflict.
var ErrTimeout = errors.New("keylock: acquire timed out")

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker serializes mutating operations per key (artwork id, order id).
// Acquire blocks for at most the given wait and fails fast instead of
// deadlocking.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Acquire takes the lock for key, waiting up to wait. On success the
// returned release function must be called exactly once.
func (l *Locker) Acquire(key string, wait time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-e.ch
				l.put(key, e)
			})
		}
		return release, nil
	case <-timer.C:
		l.put(key, e)
		return nil, ErrTimeout
	}
}

func (l *Locker) put(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
