// Package lock provides short-lived mutual exclusion across dashboard
// instances for ticket resolution and scheduled jobs.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when another holder owns at least one key.
var ErrLockHeld = errors.New("lock is held by another holder")

// Release gives back a set of keys. It is safe to call more than once and
// never releases keys that were taken over after expiry.
type Release func(ctx context.Context)

// Locker acquires sets of keys all-or-nothing.
type Locker interface {
	// Acquire takes every key for ttl, or none of them.
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (Release, error)
}

// TicketKey names the lock guarding a block ticket's resolution.
func TicketKey(ticketID string) string {
	return "banflow:lock:ticket:" + ticketID
}

// JobKey names the lock guarding a scheduled job.
func JobKey(name string) string {
	return "banflow:lock:job:" + name
}
