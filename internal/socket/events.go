package socket

import "time"

// This file is the Go counterpart of original_source's "convenience methods"
// section in client.rs: one shape-preserving wrapper
// per named outbound event, so handler code cannot misspell a wire event
// name. Field names are camelCase per spec.md §6.

type registerData struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

// Register sends daemon:register.
func (s *Session) Register(hostname, platform, version string) error {
	return s.Emit("daemon:register", registerData{Hostname: hostname, Platform: platform, Version: version})
}

type timestampedData struct {
	Timestamp string `json:"timestamp"`
}

// ReportOnline sends daemon:etermOnline. The name is frozen to the
// product-specific etermOnline/etermOffline pair rather than the neutral
// online/offline names also seen in the event catalogue, since that is
// what the client actually emits on the wire.
func (s *Session) ReportOnline() error {
	return s.Emit("daemon:etermOnline", timestampedData{Timestamp: nowRFC3339()})
}

// ReportOffline sends daemon:etermOffline.
func (s *Session) ReportOffline() error {
	return s.Emit("daemon:etermOffline", timestampedData{Timestamp: nowRFC3339()})
}

type projectDataPayload struct {
	Projects  []interface{} `json:"projects"`
	RequestID *string       `json:"requestId,omitempty"`
}

// ReportProjectData sends daemon:projectData.
func (s *Session) ReportProjectData(projects []interface{}, requestID *string) error {
	return s.Emit("daemon:projectData", projectDataPayload{Projects: projects, RequestID: requestID})
}

type sessionMetadataPayload struct {
	Sessions    []interface{} `json:"sessions"`
	ProjectPath *string       `json:"projectPath,omitempty"`
	RequestID   *string       `json:"requestId,omitempty"`
}

// ReportSessionMetadata sends daemon:sessionMetadata.
func (s *Session) ReportSessionMetadata(sessions []interface{}, projectPath, requestID *string) error {
	return s.Emit("daemon:sessionMetadata", sessionMetadataPayload{Sessions: sessions, ProjectPath: projectPath, RequestID: requestID})
}

type sessionMessagesPayload struct {
	SessionID   string        `json:"sessionId"`
	ProjectPath string        `json:"projectPath"`
	Messages    []interface{} `json:"messages"`
	Total       int           `json:"total"`
	HasMore     bool          `json:"hasMore"`
	RequestID   *string       `json:"requestId,omitempty"`
}

// ReportSessionMessages sends daemon:sessionMessages.
func (s *Session) ReportSessionMessages(sessionID, projectPath string, messages []interface{}, total int, hasMore bool, requestID *string) error {
	return s.Emit("daemon:sessionMessages", sessionMessagesPayload{
		SessionID: sessionID, ProjectPath: projectPath, Messages: messages,
		Total: total, HasMore: hasMore, RequestID: requestID,
	})
}

type newMessageData struct {
	SessionID string      `json:"sessionId"`
	Message   interface{} `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// NotifyNewMessage sends daemon:newMessage.
func (s *Session) NotifyNewMessage(sessionID string, message interface{}) error {
	return s.Emit("daemon:newMessage", newMessageData{SessionID: sessionID, Message: message, Timestamp: nowRFC3339()})
}

type metricsUpdateData struct {
	SessionID string      `json:"sessionId"`
	Metrics   interface{} `json:"metrics"`
	Timestamp string      `json:"timestamp"`
}

// NotifyMetricsUpdate sends daemon:metricsUpdate.
func (s *Session) NotifyMetricsUpdate(sessionID string, metrics interface{}) error {
	return s.Emit("daemon:metricsUpdate", metricsUpdateData{SessionID: sessionID, Metrics: metrics, Timestamp: nowRFC3339()})
}

// NotifyProjectListUpdate sends daemon:projectListUpdate.
func (s *Session) NotifyProjectListUpdate() error {
	return s.Emit("daemon:projectListUpdate", struct{}{})
}

type projectPathData struct {
	ProjectPath string `json:"projectPath"`
}

// NotifySessionListUpdate sends daemon:sessionListUpdate.
func (s *Session) NotifySessionListUpdate(projectPath string) error {
	return s.Emit("daemon:sessionListUpdate", projectPathData{ProjectPath: projectPath})
}

type sessionProjectData struct {
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
}

// NotifySessionDeleted sends daemon:sessionDeleted.
func (s *Session) NotifySessionDeleted(sessionID, projectPath string) error {
	return s.Emit("daemon:sessionDeleted", sessionProjectData{SessionID: sessionID, ProjectPath: projectPath})
}

// NotifySessionDetailUpdate sends daemon:sessionDetailUpdate.
func (s *Session) NotifySessionDetailUpdate(sessionID, projectPath string) error {
	return s.Emit("daemon:sessionDetailUpdate", sessionProjectData{SessionID: sessionID, ProjectPath: projectPath})
}

// NotifySessionRestored sends daemon:sessionRestored.
func (s *Session) NotifySessionRestored(sessionID, projectPath string) error {
	return s.Emit("daemon:sessionRestored", sessionProjectData{SessionID: sessionID, ProjectPath: projectPath})
}

type projectUpdateData struct {
	ProjectPath string      `json:"projectPath"`
	Metadata    interface{} `json:"metadata,omitempty"`
}

// NotifyProjectUpdate sends daemon:projectUpdate.
func (s *Session) NotifyProjectUpdate(projectPath string, metadata interface{}) error {
	return s.Emit("daemon:projectUpdate", projectUpdateData{ProjectPath: projectPath, Metadata: metadata})
}

type sessionUpdateData struct {
	SessionID string      `json:"sessionId"`
	Metadata  interface{} `json:"metadata"`
}

// NotifySessionUpdate sends daemon:sessionUpdate.
func (s *Session) NotifySessionUpdate(sessionID string, metadata interface{}) error {
	return s.Emit("daemon:sessionUpdate", sessionUpdateData{SessionID: sessionID, Metadata: metadata})
}

type newSessionFoundData struct {
	ClientID       string `json:"clientId"`
	SessionID      string `json:"sessionId"`
	ProjectPath    string `json:"projectPath"`
	EncodedDirName string `json:"encodedDirName"`
}

// NotifyNewSessionFound sends daemon:newSessionFound.
func (s *Session) NotifyNewSessionFound(clientID, sessionID, projectPath, encodedDirName string) error {
	return s.Emit("daemon:newSessionFound", newSessionFoundData{
		ClientID: clientID, SessionID: sessionID, ProjectPath: projectPath, EncodedDirName: encodedDirName,
	})
}

type clientProjectData struct {
	ClientID    string `json:"clientId"`
	ProjectPath string `json:"projectPath"`
}

// NotifyNewSessionNotFound sends daemon:newSessionNotFound.
func (s *Session) NotifyNewSessionNotFound(clientID, projectPath string) error {
	return s.Emit("daemon:newSessionNotFound", clientProjectData{ClientID: clientID, ProjectPath: projectPath})
}

// NotifyWatchStarted sends daemon:watchStarted.
func (s *Session) NotifyWatchStarted(clientID, projectPath string) error {
	return s.Emit("daemon:watchStarted", clientProjectData{ClientID: clientID, ProjectPath: projectPath})
}

type newSessionCreatedData struct {
	ClientID    string `json:"clientId"`
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
}

// NotifyNewSessionCreated sends daemon:newSessionCreated.
func (s *Session) NotifyNewSessionCreated(clientID, sessionID, projectPath string) error {
	return s.Emit("daemon:newSessionCreated", newSessionCreatedData{ClientID: clientID, SessionID: sessionID, ProjectPath: projectPath})
}

type approvalRequestData struct {
	RequestID   string      `json:"requestId"`
	SessionID   string      `json:"sessionId"`
	ClientID    string      `json:"clientId"`
	ToolName    string      `json:"toolName"`
	Input       interface{} `json:"input"`
	ToolUseID   string      `json:"toolUseId"`
	Description string      `json:"description"`
}

// SendApprovalRequest sends daemon:approvalRequest.
func (s *Session) SendApprovalRequest(requestID, sessionID, clientID, toolName string, input interface{}, toolUseID, description string) error {
	return s.Emit("daemon:approvalRequest", approvalRequestData{
		RequestID: requestID, SessionID: sessionID, ClientID: clientID,
		ToolName: toolName, Input: input, ToolUseID: toolUseID, Description: description,
	})
}

type approvalTimeoutData struct {
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
}

// SendApprovalTimeout sends daemon:approvalTimeout.
func (s *Session) SendApprovalTimeout(requestID, sessionID, clientID string) error {
	return s.Emit("daemon:approvalTimeout", approvalTimeoutData{RequestID: requestID, SessionID: sessionID, ClientID: clientID})
}

type approvalExpiredData struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// SendApprovalExpired sends daemon:approvalExpired.
func (s *Session) SendApprovalExpired(requestID, message string) error {
	return s.Emit("daemon:approvalExpired", approvalExpiredData{RequestID: requestID, Message: message})
}

type sdkErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type sdkErrorData struct {
	SessionID string       `json:"sessionId"`
	ClientID  string       `json:"clientId"`
	Error     sdkErrorInfo `json:"error"`
}

// SendSDKError sends daemon:sdkError.
func (s *Session) SendSDKError(sessionID, clientID, errorType, message string) error {
	return s.Emit("daemon:sdkError", sdkErrorData{
		SessionID: sessionID, ClientID: clientID,
		Error: sdkErrorInfo{Type: errorType, Message: message},
	})
}

// SendSwiftActivity sends daemon:swiftActivity.
func (s *Session) SendSwiftActivity(sessionID, projectPath string) error {
	return s.Emit("daemon:swiftActivity", sessionProjectData{SessionID: sessionID, ProjectPath: projectPath})
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
