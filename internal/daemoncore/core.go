// Package daemoncore implements DaemonCore: the orchestrator that owns a
// SocketSession, a Tailer, an ApprovalRegistry, and (optionally) a
// WriterElection/SharedStore pair and a Directory handle, and drives the
// run loop described in spec.md §4.6.
//
// The loop shape is grounded on
// apps/discovery-service/internal/worker/scan_poller.go's Run(ctx)/ticker
// pattern: one goroutine, one select over ctx.Done()/ticker.C, no hidden
// fan-out.
package daemoncore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/approval"
	"github.com/vimo-ai/vlaude-daemon/internal/directory"
	"github.com/vimo-ai/vlaude-daemon/internal/journal"
	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
	"github.com/vimo-ai/vlaude-daemon/internal/socket"
	"github.com/vimo-ai/vlaude-daemon/internal/tailer"
	"github.com/vimo-ai/vlaude-daemon/internal/transcriptstore"
	"github.com/vimo-ai/vlaude-daemon/internal/writerelection"
)

// Config carries the daemon's own identity and file-layout assumptions.
type Config struct {
	DeviceID        string
	DeviceName      string
	Platform        string
	Version         string
	TranscriptsRoot string // base directory holding one subdirectory per encoded project path
	DirectoryTTL    time.Duration
	ApprovalTimeout time.Duration
	PollInterval    time.Duration
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 2 * time.Second
	}
	return c.PollInterval
}

func (c Config) approvalTimeout() time.Duration {
	if c.ApprovalTimeout <= 0 {
		return 5 * time.Minute
	}
	return c.ApprovalTimeout
}

func (c Config) directoryTTL() time.Duration {
	if c.DirectoryTTL <= 0 {
		return 30 * time.Second
	}
	return c.DirectoryTTL
}

// Callbacks are the six hook points spec.md §9 calls out as the
// project's existing callback-shaped extension points — narrow function
// values rather than an interface, since each hook takes a different
// argument shape and no implementation needs more than one of them.
type Callbacks struct {
	MobileViewing     func(sessionID string, isViewing bool)
	ResumeLocal       func(sessionID string)
	WatchNewSession   func(clientID, projectPath string)
	FindNewSession    func(clientID, projectPath string)
	SessionDiscovered func(projectPath, sessionID string)
	Command           func(command string, data json.RawMessage)
}

// Core is the daemon's orchestrator. Directory, WriterElection/SharedStore,
// and Journal are all optional collaborators — a Core can run with only a
// Session, Tailer, ApprovalRegistry, and TranscriptStore wired.
type Core struct {
	cfg         Config
	logger      *zap.Logger
	session     *socket.Session
	tailer      *tailer.Tailer
	approvals   *approval.Registry
	transcript  transcriptstore.TranscriptStore
	directory   *directory.Directory
	election    *writerelection.Election
	sharedStore sharedstore.SharedStore
	journal     *journal.Journal
	callbacks   Callbacks

	ctx              context.Context
	cancel           context.CancelFunc
	pendingReconnect bool
}

// New constructs a Core from its required collaborators. Optional ones are
// attached afterward with the With* setters.
func New(cfg Config, logger *zap.Logger, session *socket.Session, t *tailer.Tailer, approvals *approval.Registry, transcript transcriptstore.TranscriptStore) *Core {
	return &Core{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		tailer:     t,
		approvals:  approvals,
		transcript: transcript,
	}
}

// WithDirectory attaches a Directory handle used for discovery and
// session-roster publication.
func (c *Core) WithDirectory(d *directory.Directory) *Core {
	c.directory = d
	return c
}

// WithWriterElection attaches the Election/SharedStore pair used to gate
// incoming-message persistence to a single writer.
func (c *Core) WithWriterElection(e *writerelection.Election, store sharedstore.SharedStore) *Core {
	c.election = e
	c.sharedStore = store
	return c
}

// WithJournal attaches the best-effort outbound event journal.
func (c *Core) WithJournal(j *journal.Journal) *Core {
	c.journal = j
	return c
}

// WithCallbacks attaches the six hook points.
func (c *Core) WithCallbacks(cb Callbacks) *Core {
	c.callbacks = cb
	return c
}

func (c *Core) sessionFilePath(sessionID, projectPath string) string {
	encoded := transcriptstore.EncodeProjectPath(projectPath)
	return filepath.Join(c.cfg.TranscriptsRoot, encoded, sessionID+".jsonl")
}

// Start dials the control server (through discovery if a Directory is
// attached), announces identity, and registers for the writer lease if an
// Election is attached. It does not block on the run loop.
func (c *Core) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	info := directory.DaemonInfo{
		DeviceID:   c.cfg.DeviceID,
		DeviceName: c.cfg.DeviceName,
		Platform:   c.cfg.Platform,
		Version:    c.cfg.Version,
	}

	var err error
	if c.directory != nil {
		err = c.session.ConnectWithDiscovery(c.ctx, info, c.cfg.directoryTTL())
	} else {
		err = c.session.Connect(c.ctx)
	}
	if err != nil {
		return err
	}

	if err := c.session.Register(c.cfg.DeviceName, c.cfg.Platform, c.cfg.Version); err != nil {
		c.logger.Warn("register failed", zap.Error(err))
	}
	c.emit("daemon:etermOnline", func() error { return c.session.ReportOnline() })

	c.pushInitialData()

	if c.election != nil {
		if err := c.election.Register(c.ctx); err != nil {
			c.logger.Warn("writer election register failed", zap.Error(err))
		}
	}

	return nil
}

// initialProjectLimit and initialSessionLimit cap the first snapshot pushed
// on start, matching push_initial_data in
// original_source/.../daemon-logic/src/service.rs.
const (
	initialProjectLimit = 20
	initialSessionLimit = 50
)

// pushInitialData synthesises and pushes a first snapshot of at most
// initialProjectLimit projects and, for each, at most initialSessionLimit
// sessions, per spec.md §4.6 "start()". Push errors are logged and do not
// abort the remaining pushes.
func (c *Core) pushInitialData() {
	limit := initialProjectLimit
	projects, err := c.transcript.ListProjects(&limit)
	if err != nil {
		c.logger.Warn("initial list_projects failed", zap.Error(err))
		return
	}

	asAny := make([]interface{}, len(projects))
	for i, p := range projects {
		asAny[i] = p
	}
	if err := c.session.ReportProjectData(asAny, nil); err != nil {
		c.logger.Warn("failed to push initial projectData", zap.Error(err))
	}

	for _, p := range projects {
		sessions, err := c.transcript.ListSessions(&p.Path)
		if err != nil {
			c.logger.Warn("initial list_sessions failed", zap.String("project", p.Path), zap.Error(err))
			continue
		}
		if len(sessions) > initialSessionLimit {
			sessions = sessions[:initialSessionLimit]
		}

		sessionsAny := make([]interface{}, len(sessions))
		for i, s := range sessions {
			sessionsAny[i] = s
		}
		if err := c.session.ReportSessionMetadata(sessionsAny, &p.Path, nil); err != nil {
			c.logger.Warn("failed to push initial sessionMetadata", zap.String("project", p.Path), zap.Error(err))
		}
	}
}

// RunOnce drains currently-pending inbound events, polls the tailer once,
// and services a pending reconnect signal. It is the unit of work Run
// repeats on every tick, and is exported directly so tests can drive the
// loop deterministically without a ticker.
func (c *Core) RunOnce() {
	for {
		evt, ok := c.session.RecvEventTimeout(10 * time.Millisecond)
		if !ok {
			break
		}
		c.dispatch(evt)
	}

	for _, e := range c.tailer.Poll() {
		c.handleTailerEvent(e)
	}

	select {
	case <-c.session.ReconnectSignal():
		c.triggerReconnect()
	default:
	}

	if c.pendingReconnect {
		c.pendingReconnect = false
		c.triggerReconnect()
	}
}

func (c *Core) handleTailerEvent(e tailer.Event) {
	switch e.Kind {
	case tailer.EventNewMessage:
		var msg interface{} = e.Record
		if err := c.session.NotifyNewMessage(e.SessionKey, msg); err != nil {
			c.logger.Warn("failed to emit newMessage", zap.Error(err))
		} else {
			c.recordJournal("daemon:newMessage", map[string]interface{}{"sessionId": e.SessionKey, "message": e.Record})
		}
		c.persistIfWriter(e.SessionKey, e.ProjectPath, e.Record)
	case tailer.EventSessionDeleted:
		if err := c.session.NotifySessionDeleted(e.SessionKey, e.ProjectPath); err != nil {
			c.logger.Warn("failed to emit sessionDeleted", zap.Error(err))
		}
	case tailer.EventError:
		c.logger.Warn("tailer poll error", zap.String("session", e.SessionKey), zap.String("error", e.Text))
	}
}

func (c *Core) emit(label string, fn func() error) {
	if err := fn(); err != nil {
		c.logger.Warn("emit failed", zap.String("event", label), zap.Error(err))
	}
}

func (c *Core) recordJournal(event string, payload interface{}) {
	if c.journal != nil {
		c.journal.Record(event, payload)
	}
}

func (c *Core) triggerReconnect() {
	if c.session.IsConnected() {
		return
	}
	info := directory.DaemonInfo{
		DeviceID:   c.cfg.DeviceID,
		DeviceName: c.cfg.DeviceName,
		Platform:   c.cfg.Platform,
		Version:    c.cfg.Version,
	}
	if err := c.session.Reconnect(c.ctx, info, c.cfg.directoryTTL()); err != nil {
		c.logger.Warn("reconnect failed, will retry", zap.Error(err))
		return
	}
	if err := c.session.Register(c.cfg.DeviceName, c.cfg.Platform, c.cfg.Version); err != nil {
		c.logger.Warn("re-register after reconnect failed", zap.Error(err))
	}
	c.emit("daemon:etermOnline", func() error { return c.session.ReportOnline() })
}

// Connected reports whether the socket session currently has a live
// transport, for health-snapshot rendering.
func (c *Core) Connected() bool {
	return c.session.IsConnected()
}

// IsWriter reports whether this daemon currently holds the writer lease.
// Always false when no Election is attached.
func (c *Core) IsWriter() bool {
	if c.election == nil {
		return false
	}
	return c.election.Role() == writerelection.Writer
}

// WatchedCount returns the number of sessions the tailer currently polls.
func (c *Core) WatchedCount() int {
	return c.tailer.SessionCount()
}

// PendingApprovalCount returns the number of outstanding approval slots.
func (c *Core) PendingApprovalCount() int {
	return c.approvals.PendingCount()
}

// RequestApproval is the entrypoint external tool-execution code calls to
// request sign-off from the control server, delegating directly to the
// ApprovalRegistry.
func (c *Core) RequestApproval(ctx context.Context, sessionID, clientID, toolName string, input interface{}, toolUseID string) (approval.Result, error) {
	return c.approvals.RequestApproval(ctx, sessionID, clientID, toolName, input, toolUseID, c.cfg.approvalTimeout())
}

// Run drives RunOnce on a fixed interval until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// Stop announces offline, releases the writer lease, closes the transport
// and journal, and cancels the context passed to Start.
func (c *Core) Stop(ctx context.Context) {
	c.emit("daemon:etermOffline", func() error { return c.session.ReportOffline() })
	c.session.Disconnect()

	if c.election != nil {
		c.election.Release(ctx)
		c.election.Close()
	}

	if c.directory != nil {
		if err := c.directory.UnregisterDaemon(ctx, c.cfg.DeviceID); err != nil {
			c.logger.Warn("unregister daemon failed", zap.Error(err))
		}
	}

	if c.journal != nil {
		c.journal.Close()
	}

	if c.cancel != nil {
		c.cancel()
	}
}
