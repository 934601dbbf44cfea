// Package sharedstore declares the SharedStore collaborator contract.
// SharedStore is explicitly out of scope per spec.md §1 — WriterElection
// and DaemonCore depend only on this interface. internal/sharedstore/postgres
// provides one concrete reference adapter; any embedder may supply another.
package sharedstore

import (
	"context"
	"time"
)

// SessionRecord is the shape persisted for a single transcript line when
// the daemon holds the writer lease.
type SessionRecord struct {
	SessionID   string
	ProjectPath string
	RecordJSON  []byte
	TimestampMS int64
}

// SharedStore is the write-side collaborator DaemonCore uses when it holds
// the writer lease, and the lease primitive WriterElection coordinates
// over.
type SharedStore interface {
	// TryBecomeWriter attempts to acquire the writer lease for this
	// process, identified by writerID. Returns (true, nil) on success.
	TryBecomeWriter(ctx context.Context, writerID string) (bool, error)

	// Heartbeat refreshes the lease for the current writer. Returns an
	// error if the lease is no longer held (e.g. it expired or was taken
	// over by another writer).
	Heartbeat(ctx context.Context, writerID string) error

	// ReleaseWriter gives up the lease, best-effort.
	ReleaseWriter(ctx context.Context, writerID string) error

	// TryTakeover forcibly takes the lease regardless of current holder.
	TryTakeover(ctx context.Context, writerID string) (bool, error)

	// UpsertSession ensures a session row exists for sessionID.
	UpsertSession(ctx context.Context, sessionID, projectPath string) error

	// InsertMessages appends parsed transcript records for a session.
	InsertMessages(ctx context.Context, records []SessionRecord) error
}

// HeartbeatInterval is the cadence WriterElection calls Heartbeat at while
// holding the lease, per spec.md §4.4.
const HeartbeatInterval = 10 * time.Second
