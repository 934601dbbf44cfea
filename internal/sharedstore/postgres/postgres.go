// Package postgres is a reference implementation of sharedstore.SharedStore
// backed by Postgres. SharedStore is an external collaborator per
// spec.md §1 — an embedder is free to swap this for another backend — but
// one concrete adapter is provided here so pgx and otelpgx, central to
// every teacher service's data layer, still have a home in this module.
//
// Grounded on apps/iam-service/cmd/api/main.go's
// pgxpool.ParseConfig + otelpgx.NewTracer() wiring, and on
// apps/discovery-service/internal/worker/scan_poller.go's
// transactional-upsert pattern for InsertMessages.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
)

// leaseTTL bounds how long a writer lease survives without a heartbeat.
// Chosen as 3x the 10s heartbeat interval WriterElection uses, so one or
// two missed ticks do not cause an unnecessary handoff.
const leaseTTL = 30 * time.Second

// Store is a pgx-backed sharedstore.SharedStore.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses pgURL, wires the otelpgx tracer, and connects.
func Open(ctx context.Context, pgURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("parse pg url: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// TryBecomeWriter inserts or claims the single writer_lease row if it is
// unheld or expired.
func (s *Store) TryBecomeWriter(ctx context.Context, writerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO writer_lease (id, holder, expires_at)
		VALUES (1, $1, now() + $2 * interval '1 second')
		ON CONFLICT (id) DO UPDATE
		SET holder = $1, expires_at = now() + $2 * interval '1 second'
		WHERE writer_lease.expires_at < now()
	`, writerID, leaseTTL.Seconds())
	if err != nil {
		return false, fmt.Errorf("try become writer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Heartbeat extends the lease, failing if this writerID no longer holds it.
func (s *Store) Heartbeat(ctx context.Context, writerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE writer_lease
		SET expires_at = now() + $2 * interval '1 second'
		WHERE id = 1 AND holder = $1 AND expires_at >= now()
	`, writerID, leaseTTL.Seconds())
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lease no longer held by %s", daemonerr.ErrWriterNotHeld, writerID)
	}
	return nil
}

// ReleaseWriter clears the lease if held by writerID.
func (s *Store) ReleaseWriter(ctx context.Context, writerID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE writer_lease SET expires_at = now() WHERE id = 1 AND holder = $1
	`, writerID)
	if err != nil {
		return fmt.Errorf("release writer: %w", err)
	}
	return nil
}

// TryTakeover unconditionally claims the lease regardless of current holder.
func (s *Store) TryTakeover(ctx context.Context, writerID string) (bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO writer_lease (id, holder, expires_at)
		VALUES (1, $1, now() + $2 * interval '1 second')
		ON CONFLICT (id) DO UPDATE
		SET holder = $1, expires_at = now() + $2 * interval '1 second'
	`, writerID, leaseTTL.Seconds())
	if err != nil {
		return false, fmt.Errorf("takeover: %w", err)
	}
	return true, nil
}

// UpsertSession ensures a session row exists.
func (s *Store) UpsertSession(ctx context.Context, sessionID, projectPath string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watched_sessions (session_id, project_path)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET project_path = $2
	`, sessionID, projectPath)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// InsertMessages appends parsed transcript records inside one transaction,
// matching scan_poller.go's all-or-nothing write pattern.
func (s *Store) InsertMessages(ctx context.Context, records []sharedstore.SessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_messages (session_id, project_path, record, timestamp_ms)
			VALUES ($1, $2, $3, $4)
		`, rec.SessionID, rec.ProjectPath, rec.RecordJSON, rec.TimestampMS); err != nil {
			return fmt.Errorf("insert message for session %s: %w", rec.SessionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
