package daemoncore

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
	"github.com/vimo-ai/vlaude-daemon/internal/socket"
	"github.com/vimo-ai/vlaude-daemon/internal/transcriptstore"
	"github.com/vimo-ai/vlaude-daemon/internal/writerelection"
)

// dispatch routes one inbound Event to its handler, per the server-event
// dispatch table in spec.md §4.6. A handler error is logged and does not
// tear down the event loop or the socket — only the synthetic
// __disconnected event changes top-level state.
func (c *Core) dispatch(evt socket.Event) {
	switch evt.Name {
	case socket.Disconnected:
		c.pendingReconnect = true

	case "server:requestProjectData":
		c.handleRequestProjectData(evt.Payload)
	case "server:requestSessionMetadata":
		c.handleRequestSessionMetadata(evt.Payload)
	case "server:requestSessionMessages":
		c.handleRequestSessionMessages(evt.Payload)
	case "server:startWatching":
		c.handleStartWatching(evt.Payload)
	case "server:stopWatching":
		c.handleStopWatching(evt.Payload)
	case "server:mobileViewing":
		c.handleMobileViewing(evt.Payload)
	case "server:resumeLocal":
		c.handleResumeLocal(evt.Payload)
	case "server:watchNewSession":
		c.handleWatchNewSession(evt.Payload)
	case "server:findNewSession":
		c.handleFindNewSession(evt.Payload)
	case "server:sessionDiscovered":
		c.handleSessionDiscovered(evt.Payload)
	case "server:approvalResponse":
		c.handleApprovalResponse(evt.Payload)
	case "server:command":
		c.handleCommand(evt.Payload)
	case "server:createSession":
		c.handleCreateSession(evt.Payload)
	case "server:checkLoading":
		c.handleCheckLoading(evt.Payload)
	case "server:sendMessage":
		c.handleSendMessage(evt.Payload)
	case "server-shutdown":
		c.logger.Info("server requested shutdown")

	default:
		c.logger.Debug("ignoring unhandled server event", zap.String("event", evt.Name))
	}
}

type requestProjectDataPayload struct {
	Limit     *int    `json:"limit,omitempty"`
	RequestID *string `json:"requestId,omitempty"`
}

func (c *Core) handleRequestProjectData(raw json.RawMessage) {
	var req requestProjectDataPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed requestProjectData", zap.Error(err))
		return
	}

	projects, err := c.transcript.ListProjects(req.Limit)
	if err != nil {
		c.logger.Warn("list_projects failed", zap.Error(err))
		return
	}

	asAny := make([]interface{}, len(projects))
	for i, p := range projects {
		asAny[i] = p
	}
	if err := c.session.ReportProjectData(asAny, req.RequestID); err != nil {
		c.logger.Warn("failed to emit projectData", zap.Error(err))
	}
}

type requestSessionMetadataPayload struct {
	ProjectPath *string `json:"projectPath,omitempty"`
	RequestID   *string `json:"requestId,omitempty"`
}

func (c *Core) handleRequestSessionMetadata(raw json.RawMessage) {
	var req requestSessionMetadataPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed requestSessionMetadata", zap.Error(err))
		return
	}

	sessions, err := c.transcript.ListSessions(req.ProjectPath)
	if err != nil {
		c.logger.Warn("list_sessions failed", zap.Error(err))
		return
	}

	asAny := make([]interface{}, len(sessions))
	for i, s := range sessions {
		asAny[i] = s
	}
	if err := c.session.ReportSessionMetadata(asAny, req.ProjectPath, req.RequestID); err != nil {
		c.logger.Warn("failed to emit sessionMetadata", zap.Error(err))
	}
}

type requestSessionMessagesPayload struct {
	SessionID   string  `json:"sessionId"`
	ProjectPath string  `json:"projectPath"`
	Limit       int     `json:"limit"`
	Offset      int     `json:"offset"`
	Order       string  `json:"order"`
	RequestID   *string `json:"requestId,omitempty"`
}

func (c *Core) handleRequestSessionMessages(raw json.RawMessage) {
	var req requestSessionMessagesPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed requestSessionMessages", zap.Error(err))
		return
	}
	if err := validatePathSegment(req.SessionID); err != nil {
		c.logger.Warn("rejecting requestSessionMessages", zap.Error(err))
		return
	}

	order := transcriptstore.OrderAsc
	if req.Order == string(transcriptstore.OrderDesc) {
		order = transcriptstore.OrderDesc
	}

	path := c.sessionFilePath(req.SessionID, req.ProjectPath)
	result, err := c.transcript.ReadWindowRaw(path, req.Limit, req.Offset, order)
	if err != nil {
		c.logger.Warn("read_window_raw failed", zap.Error(err))
		return
	}

	asAny := make([]interface{}, len(result.Messages))
	for i, m := range result.Messages {
		asAny[i] = m
	}
	if err := c.session.ReportSessionMessages(req.SessionID, req.ProjectPath, asAny, result.Total, result.HasMore, req.RequestID); err != nil {
		c.logger.Warn("failed to emit sessionMessages", zap.Error(err))
	}
}

type startWatchingPayload struct {
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
}

func (c *Core) handleStartWatching(raw json.RawMessage) {
	var req startWatchingPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed startWatching", zap.Error(err))
		return
	}
	if err := validatePathSegment(req.SessionID); err != nil {
		c.logger.Warn("rejecting startWatching", zap.Error(err))
		return
	}

	path := c.sessionFilePath(req.SessionID, req.ProjectPath)
	c.tailer.Watch(req.SessionID, path, req.ProjectPath)
}

type stopWatchingPayload struct {
	SessionID string `json:"sessionId"`
}

func (c *Core) handleStopWatching(raw json.RawMessage) {
	var req stopWatchingPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed stopWatching", zap.Error(err))
		return
	}
	c.tailer.Unwatch(req.SessionID)
}

type mobileViewingPayload struct {
	SessionID string `json:"sessionId"`
	IsViewing bool   `json:"isViewing"`
}

func (c *Core) handleMobileViewing(raw json.RawMessage) {
	var req mobileViewingPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed mobileViewing", zap.Error(err))
		return
	}
	if c.callbacks.MobileViewing != nil {
		c.callbacks.MobileViewing(req.SessionID, req.IsViewing)
	}
}

type sessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

func (c *Core) handleResumeLocal(raw json.RawMessage) {
	var req sessionIDPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed resumeLocal", zap.Error(err))
		return
	}
	if c.callbacks.ResumeLocal != nil {
		c.callbacks.ResumeLocal(req.SessionID)
	}
}

type clientProjectPayload struct {
	ClientID    string `json:"clientId"`
	ProjectPath string `json:"projectPath"`
}

func (c *Core) handleWatchNewSession(raw json.RawMessage) {
	var req clientProjectPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed watchNewSession", zap.Error(err))
		return
	}
	if c.callbacks.WatchNewSession != nil {
		c.callbacks.WatchNewSession(req.ClientID, req.ProjectPath)
	}
}

func (c *Core) handleFindNewSession(raw json.RawMessage) {
	var req clientProjectPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed findNewSession", zap.Error(err))
		return
	}
	if c.callbacks.FindNewSession != nil {
		c.callbacks.FindNewSession(req.ClientID, req.ProjectPath)
	}
}

type sessionDiscoveredPayload struct {
	ProjectPath string `json:"projectPath"`
	SessionID   string `json:"sessionId"`
}

func (c *Core) handleSessionDiscovered(raw json.RawMessage) {
	var req sessionDiscoveredPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed sessionDiscovered", zap.Error(err))
		return
	}
	if c.callbacks.SessionDiscovered != nil {
		c.callbacks.SessionDiscovered(req.ProjectPath, req.SessionID)
	}
}

type approvalResponsePayload struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

func (c *Core) handleApprovalResponse(raw json.RawMessage) {
	var req approvalResponsePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed approvalResponse", zap.Error(err))
		return
	}
	if err := c.approvals.Fulfil(req.RequestID, req.Approved, req.Reason); err != nil {
		c.logger.Warn("approval fulfil failed", zap.Error(err))
	}
}

type commandPayload struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Core) handleCommand(raw json.RawMessage) {
	var req commandPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed command", zap.Error(err))
		return
	}
	if c.callbacks.Command != nil {
		c.callbacks.Command(req.Command, req.Data)
	}
}

type requestIDPayload struct {
	RequestID string `json:"requestId"`
}

func (c *Core) handleCreateSession(raw json.RawMessage) {
	var req requestIDPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed createSession", zap.Error(err))
		return
	}
	err := c.session.Emit("daemon:sessionCreatedResult", map[string]interface{}{
		"requestId": req.RequestID,
		"success":   false,
		"error":     "not supported by this daemon",
	})
	if err != nil {
		c.logger.Warn("failed to emit sessionCreatedResult", zap.Error(err))
	}
}

type checkLoadingPayload struct {
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
}

func (c *Core) handleCheckLoading(raw json.RawMessage) {
	var req checkLoadingPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed checkLoading", zap.Error(err))
		return
	}
	err := c.session.Emit("daemon:checkLoadingResult", map[string]interface{}{
		"requestId": req.RequestID,
		"sessionId": req.SessionID,
		"loading":   false,
	})
	if err != nil {
		c.logger.Warn("failed to emit checkLoadingResult", zap.Error(err))
	}
}

func (c *Core) handleSendMessage(raw json.RawMessage) {
	var req requestIDPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Warn("malformed sendMessage", zap.Error(err))
		return
	}
	err := c.session.Emit("daemon:sendMessageResult", map[string]interface{}{
		"requestId": req.RequestID,
		"success":   false,
		"error":     "not supported by this daemon",
	})
	if err != nil {
		c.logger.Warn("failed to emit sendMessageResult", zap.Error(err))
	}
}

// persistIfWriter forwards a parsed transcript record to SharedStore when
// the daemon holds the writer lease, per spec.md §4.6's "Incoming message
// persistence (Writer only)" rule. A record with empty UUID is silently
// skipped (system messages); timestamp falls back to wall-clock millis on
// parse failure. This write is independent of the upstream notification
// and its failure is logged, not surfaced.
func (c *Core) persistIfWriter(sessionID, projectPath string, record json.RawMessage) {
	if c.election == nil || c.sharedStore == nil || c.election.Role() != writerelection.Writer {
		return
	}

	var fields struct {
		UUID      string `json:"uuid"`
		Timestamp string `json:"timestamp"`
	}
	_ = json.Unmarshal(record, &fields)
	if fields.UUID == "" {
		return
	}

	ts := time.Now().UnixMilli()
	if fields.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, fields.Timestamp); err == nil {
			ts = parsed.UnixMilli()
		}
	}

	ctx := c.ctx
	if err := c.sharedStore.UpsertSession(ctx, sessionID, projectPath); err != nil {
		c.logger.Warn("upsert_session failed", zap.Error(err))
		return
	}
	err := c.sharedStore.InsertMessages(ctx, []sharedstore.SessionRecord{{
		SessionID:   sessionID,
		ProjectPath: projectPath,
		RecordJSON:  record,
		TimestampMS: ts,
	}})
	if err != nil {
		c.logger.Warn("insert_messages failed", zap.Error(err))
	}
}
