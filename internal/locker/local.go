// Package locker provides keyed mutual exclusion used to serialize writes to
// a single user's schedule. Local covers a single process; Redis covers a
// fleet sharing one Redis instance.
package locker

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotAcquired is returned when a lock could not be taken before the
	// wait deadline.
	ErrNotAcquired = errors.New("locker: lock not acquired")
	// ErrNotOwned is returned when releasing a lock held by someone else.
	ErrNotOwned = errors.New("locker: lock not owned")
)

// Unlock releases a held lock. Calling it more than once is safe.
type Unlock = func(ctx context.Context) error

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed lock. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	entry := l.retain(key)
	select {
	case entry.sem <- struct{}{}:
		return l.unlocker(key, entry), nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free right now.
func (l *Local) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	entry := l.retain(key)
	select {
	case entry.sem <- struct{}{}:
		return l.unlocker(key, entry), true, nil
	default:
		l.release(key, entry)
		return nil, false, nil
	}
}

func (l *Local) unlocker(key string, entry *localEntry) Unlock {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})
		return nil
	}
}

func (l *Local) retain(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*localEntry)
	}
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *Local) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// size reports the number of live entries.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
