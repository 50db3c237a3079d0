package locking

import (
	"context"
)

// DistributedLocker guards one watcher so that a single replica polls it.
type DistributedLocker interface {
	// AcquireLock tries to take the lock and returns its lease ID. An empty ID with a
	// nil error means another holder owns the lock.
	AcquireLock(ctx context.Context) (string, error)

	// RenewLock extends a held lock.
	RenewLock(ctx context.Context) error

	// ReleaseLock gives up a held lock.
	ReleaseLock(ctx context.Context) error

	// StartLockRenewal renews the lock in the background until ctx ends.
	StartLockRenewal(ctx context.Context)
}
