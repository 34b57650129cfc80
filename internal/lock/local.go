package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, keys []string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, key := range keys {
		if entry, ok := l.entries[key]; ok && now.Before(entry.expiresAt) {
			return nil, ErrLockHeld
		}
	}

	token := uuid.NewString()
	for _, key := range keys {
		l.entries[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	}

	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()

		for _, key := range keys {
			if entry, ok := l.entries[key]; ok && entry.token == token {
				delete(l.entries, key)
			}
		}
	}, nil
}
