// Package writerelection implements WriterElection: an adapter over a
// SharedStore that coordinates at most one writer among cooperating host
// processes.
//
// Grounded on original_source/vlaude-core/daemon-logic/src/shared_db.rs's
// SharedDbAdapter: register() starts a 10s heartbeat only after becoming
// Writer, a failed heartbeat step demotes the role to Reader and exits the
// loop, and start_heartbeat always stops any prior heartbeat before
// launching a new one. The heartbeat-goroutine/cancel-channel shape is
// carried over from Go idiom rather than Rust's cancel-flag-plus-JoinHandle.
package writerelection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
)

// Role is the adapter's current relationship to the lease.
type Role int

const (
	Reader Role = iota
	Writer
)

func (r Role) String() string {
	if r == Writer {
		return "writer"
	}
	return "reader"
}

// Election adapts a SharedStore into a single-writer coordinator. The
// adapter's Role is monotonic per acquire/release cycle — it never
// silently flips to Writer without going through Register or TryTakeover —
// and at most one heartbeat goroutine is alive at a time.
type Election struct {
	store    sharedstore.SharedStore
	writerID string
	logger   *zap.Logger

	mu   sync.Mutex
	role Role
	stop chan struct{} // non-nil while a heartbeat goroutine is running
}

// New constructs an Election bound to store and identified by writerID
// (typically the daemon's device ID).
func New(store sharedstore.SharedStore, writerID string, logger *zap.Logger) *Election {
	return &Election{store: store, writerID: writerID, logger: logger, role: Reader}
}

// Role returns the adapter's current role.
func (e *Election) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

// Register asks SharedStore to try to become writer. On success, the
// adapter transitions to Writer and starts the heartbeat loop.
func (e *Election) Register(ctx context.Context) error {
	ok, err := e.store.TryBecomeWriter(ctx, e.writerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.role = Writer
	e.mu.Unlock()
	e.stopHeartbeat()
	e.startHeartbeat(ctx)
	return nil
}

// TryTakeover asks SharedStore to forcibly take the lease; on success the
// adapter becomes Writer and the heartbeat loop restarts.
func (e *Election) TryTakeover(ctx context.Context) error {
	ok, err := e.store.TryTakeover(ctx, e.writerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.role = Writer
	e.mu.Unlock()
	e.stopHeartbeat()
	e.startHeartbeat(ctx)
	return nil
}

// Release calls SharedStore.ReleaseWriter (best effort) and returns the
// adapter to Reader, stopping any running heartbeat.
func (e *Election) Release(ctx context.Context) {
	e.stopHeartbeat()

	e.mu.Lock()
	wasWriter := e.role == Writer
	e.role = Reader
	e.mu.Unlock()

	if !wasWriter {
		return
	}
	if err := e.store.ReleaseWriter(ctx, e.writerID); err != nil {
		e.logger.Warn("release writer lease failed", zap.Error(err))
	}
}

// Close stops the heartbeat goroutine without blocking, matching the
// "dropping the adapter must attempt to stop the heartbeat task without
// blocking" invariant in spec.md §4.4.
func (e *Election) Close() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()

	if stop != nil {
		select {
		case stop <- struct{}{}:
		default:
		}
	}
}

func (e *Election) startHeartbeat(ctx context.Context) {
	stop := make(chan struct{}, 1)

	e.mu.Lock()
	e.stop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(sharedstore.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := e.store.Heartbeat(ctx, e.writerID); err != nil {
					e.logger.Warn("writer heartbeat failed, stepping down to reader", zap.Error(err))
					e.mu.Lock()
					e.role = Reader
					e.stop = nil
					e.mu.Unlock()
					return
				}
			}
		}
	}()
}

func (e *Election) stopHeartbeat() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()

	if stop != nil {
		select {
		case stop <- struct{}{}:
		default:
		}
	}
}
