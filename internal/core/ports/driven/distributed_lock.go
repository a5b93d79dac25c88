package driven

import (
	"context"
	"time"
)

// DistributedLock serializes writers across processes.
// Ingestion holds "ingest:<collection>" for the length of a run.
type DistributedLock interface {
	// Acquire tries to take a named lock for ttl.
	// Returns false without error when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops a named lock. Releasing a lock that is not held is a no-op.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out by ttl.
	// Backends without expiry (PostgreSQL advisory locks) only check ownership.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
