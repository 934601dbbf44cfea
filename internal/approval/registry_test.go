package approval_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimo-ai/vlaude-daemon/internal/approval"
)

type fakeEmitter struct {
	mu       sync.Mutex
	requests []string
	timeouts []string
	expired  []string
}

func (f *fakeEmitter) SendApprovalRequest(requestID, sessionID, clientID, toolName string, input interface{}, toolUseID, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, requestID)
	return nil
}

func (f *fakeEmitter) SendApprovalTimeout(requestID, sessionID, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, requestID)
	return nil
}

func (f *fakeEmitter) SendApprovalExpired(requestID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, requestID)
	return nil
}

func TestRequestApprovalFulfilled(t *testing.T) {
	emitter := &fakeEmitter{}
	reg := approval.New(emitter)

	go func() {
		time.Sleep(10 * time.Millisecond)
		err := reg.Fulfil("s1-tu1", true, "")
		assert.NoError(t, err)
	}()

	res, err := reg.RequestApproval(context.Background(), "s1", "c1", "Bash", map[string]interface{}{"command": "ls"}, "tu1", time.Second)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Len(t, emitter.requests, 1)
}

func TestRequestApprovalTimesOut(t *testing.T) {
	emitter := &fakeEmitter{}
	reg := approval.New(emitter)

	res, err := reg.RequestApproval(context.Background(), "s1", "c1", "Write", map[string]interface{}{"file_path": "a.go"}, "tu2", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, []string{"s1:tu2"}, emitter.timeouts)
}

func TestFulfilWithNoSlotEmitsExpired(t *testing.T) {
	emitter := &fakeEmitter{}
	reg := approval.New(emitter)

	err := reg.Fulfil("unknown-request", true, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown-request"}, emitter.expired)
}

func TestDescribeToolUse(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		input interface{}
		want  string
	}{
		{"bash command", "Bash", map[string]interface{}{"command": "ls -la"}, "Execute: ls -la"},
		{"write file", "Write", map[string]interface{}{"file_path": "/tmp/x.go"}, "Write file: /tmp/x.go"},
		{"unknown tool", "Frobnicate", map[string]interface{}{}, "Call tool: Frobnicate"},
		{"non-map input", "Bash", "not a map", "Call tool: Bash"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, approval.DescribeToolUse(tc.tool, tc.input))
		})
	}
}

func TestPendingCountTracksOutstandingSlots(t *testing.T) {
	emitter := &fakeEmitter{}
	reg := approval.New(emitter)

	done := make(chan struct{})
	go func() {
		reg.RequestApproval(context.Background(), "s1", "c1", "Bash", map[string]interface{}{}, "tu3", time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, reg.PendingCount())

	require.NoError(t, reg.Fulfil("s1-tu3", true, ""))
	<-done
	assert.Equal(t, 0, reg.PendingCount())
}
