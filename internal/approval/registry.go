// Package approval implements ApprovalRegistry: one-shot reply slots for
// tool-use approval requests exchanged with the control server.
//
// Grounded on original_source/packages/vlaude-core/daemon-logic/src/service.rs's
// request_approval/handle_approval_response pair: the request id is
// format!("{}-{}", session_id, tool_use_id) (service.rs:1079), and
// DescribeToolUse mirrors format_tool_description (service.rs:1262). Outbound
// event names are reused from
// original_source/vlaude-core/socket-client/src/client.rs's
// send_approval_request/send_approval_timeout/send_approval_expired
// methods.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Result is delivered to the waiter of a pending approval.
type Result struct {
	Approved bool
	Reason   string
}

// Emitter is the subset of socket.Session approval needs to send outbound
// frames — kept as a narrow interface so this package does not import
// internal/socket.
type Emitter interface {
	SendApprovalRequest(requestID, sessionID, clientID, toolName string, input interface{}, toolUseID, description string) error
	SendApprovalTimeout(requestID, sessionID, clientID string) error
	SendApprovalExpired(requestID, message string) error
}

type slot struct {
	sessionID string
	clientID  string
	reply     chan Result
}

// Registry is a map request_id -> reply slot.
type Registry struct {
	emitter Emitter

	mu    sync.Mutex
	slots map[string]*slot
}

// New constructs a Registry bound to an Emitter.
func New(emitter Emitter) *Registry {
	return &Registry{emitter: emitter, slots: make(map[string]*slot)}
}

func requestID(sessionID, toolUseID string) string {
	return sessionID + "-" + toolUseID
}

// RequestApproval constructs a request ID from sessionID+toolUseID,
// inserts a reply slot, forwards the outbound approvalRequest frame, and
// blocks until fulfilled, timed out, or ctx is cancelled. Timeout removes
// the slot and emits an outbound approvalTimeout frame.
func (r *Registry) RequestApproval(ctx context.Context, sessionID, clientID, toolName string, input interface{}, toolUseID string, timeout time.Duration) (Result, error) {
	id := requestID(sessionID, toolUseID)
	description := DescribeToolUse(toolName, input)

	s := &slot{sessionID: sessionID, clientID: clientID, reply: make(chan Result, 1)}

	r.mu.Lock()
	r.slots[id] = s
	r.mu.Unlock()

	if err := r.emitter.SendApprovalRequest(id, sessionID, clientID, toolName, input, toolUseID, description); err != nil {
		r.removeSlot(id)
		return Result{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-s.reply:
		if !ok {
			return Result{Approved: false, Reason: "Channel closed"}, nil
		}
		return res, nil
	case <-timer.C:
		r.removeSlot(id)
		if err := r.emitter.SendApprovalTimeout(id, sessionID, clientID); err != nil {
			return Result{}, err
		}
		return Result{Approved: false, Reason: "Timed out"}, nil
	case <-ctx.Done():
		r.removeSlot(id)
		return Result{}, ctx.Err()
	}
}

// Fulfil handles an incoming approvalResponse: the slot is removed and
// fulfilled; if no slot exists an outbound approvalExpired frame is
// emitted instead.
func (r *Registry) Fulfil(requestID string, approved bool, reason string) error {
	r.mu.Lock()
	s, ok := r.slots[requestID]
	if ok {
		delete(r.slots, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return r.emitter.SendApprovalExpired(requestID, "no pending approval for this request")
	}

	s.reply <- Result{Approved: approved, Reason: reason}
	close(s.reply)
	return nil
}

func (r *Registry) removeSlot(id string) {
	r.mu.Lock()
	delete(r.slots, id)
	r.mu.Unlock()
}

// PendingCount reports the number of outstanding approval slots.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// DescribeToolUse renders a human-readable summary of a tool invocation.
// Well-known tool names get a "<verb>: <primary argument>" rendering;
// anything else falls back to "Call tool: <name>".
func DescribeToolUse(toolName string, input interface{}) string {
	args, ok := input.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("Call tool: %s", toolName)
	}

	switch toolName {
	case "Bash":
		if cmd, ok := args["command"].(string); ok {
			return fmt.Sprintf("Execute: %s", cmd)
		}
	case "Write":
		if path, ok := args["file_path"].(string); ok {
			return fmt.Sprintf("Write file: %s", path)
		}
	case "Edit":
		if path, ok := args["file_path"].(string); ok {
			return fmt.Sprintf("Edit file: %s", path)
		}
	case "Delete":
		if path, ok := args["file_path"].(string); ok {
			return fmt.Sprintf("Delete file: %s", path)
		}
	}

	return fmt.Sprintf("Call tool: %s", toolName)
}
