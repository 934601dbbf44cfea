// Package journal provides EventJournal: a best-effort, durable local
// record of outbound wire frames, kept independent of the actual delivery
// path to the control server. DaemonCore records only the daemon:newMessage
// frames it emits successfully; other outbound frames are not journaled.
//
// This does not violate spec.md's "no persistence of unsent events across
// restarts" non-goal: losing the journal blocks nothing and retries
// nothing — it is an observability side-channel an operator can inspect
// after the fact, never a resend queue.
//
// Grounded on packages/go-core/natsclient/{client,stream}.go's
// connect + ProvisionStreams pattern and on
// apps/notification-service/internal/consumer/event_consumer.go's
// per-message dispatch shape, repurposed around a DAEMON_EVENTS subject
// namespace instead of DOMAIN_EVENTS.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamDaemonEvents is the durable JetStream stream recording
	// journaled outbound frames.
	StreamDaemonEvents = "DAEMON_EVENTS"
	// SubjectDaemonEvents is the wildcard subject the stream captures.
	SubjectDaemonEvents = "DAEMON_EVENTS.>"
)

// Entry is one journaled outbound frame.
type Entry struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Journal wraps a NATS connection and JetStream context.
type Journal struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Connect dials url and provisions the DAEMON_EVENTS stream idempotently.
// Failures here are never fatal to the caller — the journal is an
// optional accelerant, not a dependency of the daemon's core function.
func Connect(url string, logger *zap.Logger) (*Journal, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("init JetStream: %w", err)
	}

	j := &Journal{conn: nc, js: js, logger: logger}
	if err := j.provisionStream(); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("event journal connected", zap.String("url", url))
	return j, nil
}

func (j *Journal) provisionStream() error {
	_, err := j.js.StreamInfo(StreamDaemonEvents)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	_, err = j.js.AddStream(&nats.StreamConfig{
		Name:      StreamDaemonEvents,
		Subjects:  []string{SubjectDaemonEvents},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	j.logger.Info("event journal stream provisioned", zap.String("stream", StreamDaemonEvents))
	return nil
}

// Record journals one outbound frame, best-effort. Errors are logged and
// swallowed — a journal write failure must never block or fail the actual
// emit to the control server.
func (j *Journal) Record(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		j.logger.Debug("journal marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	entry := Entry{Event: event, Payload: data, Timestamp: time.Now().UnixMilli()}
	raw, err := json.Marshal(entry)
	if err != nil {
		j.logger.Debug("journal entry marshal failed", zap.Error(err))
		return
	}

	subject := "DAEMON_EVENTS." + event
	if _, err := j.js.Publish(subject, raw); err != nil {
		j.logger.Debug("journal publish failed", zap.String("event", event), zap.Error(err))
	}
}

// Close drains and closes the NATS connection, flushing pending publishes
// before disconnecting rather than dropping them — the same
// Drain()-over-Close() choice natsclient.Client.Close makes.
func (j *Journal) Close() {
	if j.conn == nil {
		return
	}
	if err := j.conn.Drain(); err != nil {
		j.conn.Close()
	}
}
