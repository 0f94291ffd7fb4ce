package redisclient

import (
	"context"
	"sync"
	"time"
)

// localDayLocker is the single-process Locker used when LOCK_BACKEND=local.
// Each key is a one-slot semaphore so waiters can give up on timeout.
type localDayLocker struct {
	mu    sync.Mutex
	slots map[string]*daySlot
	wait  time.Duration
}

type daySlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalDayLocker(wait time.Duration) Locker {
	return &localDayLocker{
		slots: make(map[string]*daySlot),
		wait:  wait,
	}
}

func (l *localDayLocker) WithDayLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error {
	key := dayKey(doctorID, date)
	slot := l.ref(key)
	defer l.unref(key)

	if err := l.acquire(ctx, slot); err != nil {
		return err
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

// acquire always makes one attempt before the wait deadline is consulted,
// matching the redis locker's SETNX-then-check loop.
func (l *localDayLocker) acquire(ctx context.Context, slot *daySlot) error {
	select {
	case slot.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockNotAcquired
	}
}

func (l *localDayLocker) ref(key string) *daySlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &daySlot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *localDayLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
