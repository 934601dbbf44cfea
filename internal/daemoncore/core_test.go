package daemoncore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/approval"
	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
	"github.com/vimo-ai/vlaude-daemon/internal/socket"
	"github.com/vimo-ai/vlaude-daemon/internal/tailer"
	"github.com/vimo-ai/vlaude-daemon/internal/transcriptstore"
	"github.com/vimo-ai/vlaude-daemon/internal/writerelection"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	sess := socket.New(socket.Config{ServerURL: "http://127.0.0.1:0"}, nil, zap.NewNop())
	tl := tailer.New()
	approvals := approval.New(sess)
	fake := transcriptstore.NewFake()
	c := New(Config{DeviceID: "daemon-1", DeviceName: "test-host", Platform: "linux", Version: "0.0.0"}, zap.NewNop(), sess, tl, approvals, fake)
	c.ctx = context.Background()
	return c
}

func TestDispatchStartAndStopWatching(t *testing.T) {
	c := newTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "-home-dev-proj", "sess1.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	c.cfg.TranscriptsRoot = dir

	payload, err := json.Marshal(map[string]string{"sessionId": "sess1", "projectPath": "/home/dev/proj"})
	require.NoError(t, err)

	c.dispatch(socket.Event{Name: "server:startWatching", Payload: payload})
	assert.Equal(t, 1, c.tailer.SessionCount())

	stopPayload, err := json.Marshal(map[string]string{"sessionId": "sess1"})
	require.NoError(t, err)
	c.dispatch(socket.Event{Name: "server:stopWatching", Payload: stopPayload})
	assert.Equal(t, 0, c.tailer.SessionCount())
}

func TestDispatchStartWatchingRejectsTraversal(t *testing.T) {
	c := newTestCore(t)
	payload, err := json.Marshal(map[string]string{"sessionId": "../etc/passwd", "projectPath": "/home/dev/proj"})
	require.NoError(t, err)

	c.dispatch(socket.Event{Name: "server:startWatching", Payload: payload})
	assert.Equal(t, 0, c.tailer.SessionCount())
}

func TestDispatchMobileViewingInvokesCallback(t *testing.T) {
	c := newTestCore(t)

	var gotSession string
	var gotViewing bool
	c.WithCallbacks(Callbacks{
		MobileViewing: func(sessionID string, isViewing bool) {
			gotSession, gotViewing = sessionID, isViewing
		},
	})

	payload, err := json.Marshal(map[string]interface{}{"sessionId": "sess1", "isViewing": true})
	require.NoError(t, err)
	c.dispatch(socket.Event{Name: "server:mobileViewing", Payload: payload})

	assert.Equal(t, "sess1", gotSession)
	assert.True(t, gotViewing)
}

func TestDispatchSessionDiscoveredInvokesCallback(t *testing.T) {
	c := newTestCore(t)

	var gotProject, gotSession string
	c.WithCallbacks(Callbacks{
		SessionDiscovered: func(projectPath, sessionID string) {
			gotProject, gotSession = projectPath, sessionID
		},
	})

	payload, err := json.Marshal(map[string]string{"projectPath": "/home/dev/proj", "sessionId": "sess2"})
	require.NoError(t, err)
	c.dispatch(socket.Event{Name: "server:sessionDiscovered", Payload: payload})

	assert.Equal(t, "/home/dev/proj", gotProject)
	assert.Equal(t, "sess2", gotSession)
}

func TestDispatchCommandInvokesCallback(t *testing.T) {
	c := newTestCore(t)

	var gotCommand string
	c.WithCallbacks(Callbacks{
		Command: func(command string, data json.RawMessage) {
			gotCommand = command
		},
	})

	payload, err := json.Marshal(map[string]interface{}{"command": "restart", "data": map[string]string{}})
	require.NoError(t, err)
	c.dispatch(socket.Event{Name: "server:command", Payload: payload})

	assert.Equal(t, "restart", gotCommand)
}

func TestDispatchDisconnectedSetsPendingReconnect(t *testing.T) {
	c := newTestCore(t)
	assert.False(t, c.pendingReconnect)
	c.dispatch(socket.Event{Name: socket.Disconnected, Payload: json.RawMessage(`{}`)})
	assert.True(t, c.pendingReconnect)
}

func TestDispatchApprovalResponseFulfilsPendingApproval(t *testing.T) {
	emitter := &fakeApprovalEmitter{}
	registry := approval.New(emitter)

	c := New(Config{DeviceID: "daemon-1"}, zap.NewNop(), socket.New(socket.Config{ServerURL: "http://127.0.0.1:0"}, nil, zap.NewNop()), tailer.New(), registry, transcriptstore.NewFake())
	c.ctx = context.Background()

	type outcome struct {
		result approval.Result
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		res, err := registry.RequestApproval(context.Background(), "sess1", "client1", "Bash", map[string]interface{}{"command": "ls"}, "tool-use-1", time.Minute)
		resultCh <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return registry.PendingCount() == 1 }, time.Second, time.Millisecond)

	payload, err := json.Marshal(map[string]interface{}{
		"requestId": "sess1-tool-use-1",
		"approved":  true,
		"reason":    "looks fine",
	})
	require.NoError(t, err)
	c.dispatch(socket.Event{Name: "server:approvalResponse", Payload: payload})

	select {
	case out := <-resultCh:
		require.NoError(t, out.err)
		assert.True(t, out.result.Approved)
		assert.Equal(t, "looks fine", out.result.Reason)
	case <-time.After(time.Second):
		t.Fatal("approval was never fulfilled")
	}
}

type fakeApprovalEmitter struct {
	mu sync.Mutex
}

func (f *fakeApprovalEmitter) SendApprovalRequest(requestID, sessionID, clientID, toolName string, input interface{}, toolUseID, description string) error {
	return nil
}

func (f *fakeApprovalEmitter) SendApprovalTimeout(requestID, sessionID, clientID string) error {
	return nil
}

func (f *fakeApprovalEmitter) SendApprovalExpired(requestID, message string) error {
	return nil
}

type recordingStore struct {
	mu             sync.Mutex
	becomeWriterOK bool
	inserted       []sharedstore.SessionRecord
}

func (s *recordingStore) TryBecomeWriter(context.Context, string) (bool, error) {
	return s.becomeWriterOK, nil
}
func (s *recordingStore) Heartbeat(context.Context, string) error    { return nil }
func (s *recordingStore) ReleaseWriter(context.Context, string) error { return nil }
func (s *recordingStore) TryTakeover(context.Context, string) (bool, error) {
	return true, nil
}
func (s *recordingStore) UpsertSession(context.Context, string, string) error { return nil }
func (s *recordingStore) InsertMessages(_ context.Context, records []sharedstore.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, records...)
	return nil
}

func TestPersistIfWriterOnlyPersistsWhenWriterRole(t *testing.T) {
	c := newTestCore(t)
	store := &recordingStore{becomeWriterOK: true}
	election := writerelection.New(store, "daemon-1", zap.NewNop())
	c.WithWriterElection(election, store)

	record := json.RawMessage(`{"uuid":"msg-1","timestamp":"2026-07-31T00:00:00Z"}`)

	// Reader: no persistence.
	c.persistIfWriter("sess1", "/home/dev/proj", record)
	assert.Empty(t, store.inserted)

	require.NoError(t, election.Register(context.Background()))
	assert.Equal(t, writerelection.Writer, election.Role())

	c.persistIfWriter("sess1", "/home/dev/proj", record)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "sess1", store.inserted[0].SessionID)
	assert.Equal(t, "/home/dev/proj", store.inserted[0].ProjectPath)

	election.Close()
}

func TestPersistIfWriterSkipsRecordsWithoutUUID(t *testing.T) {
	c := newTestCore(t)
	store := &recordingStore{becomeWriterOK: true}
	election := writerelection.New(store, "daemon-1", zap.NewNop())
	c.WithWriterElection(election, store)
	require.NoError(t, election.Register(context.Background()))

	c.persistIfWriter("sess1", "/home/dev/proj", json.RawMessage(`{"type":"system"}`))
	assert.Empty(t, store.inserted)

	election.Close()
}

func TestRunOnceDrainsTailerEventsWithoutPanicking(t *testing.T) {
	c := newTestCore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	c.tailer.Watch("sess1", path, "/home/dev/proj")
	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m1"}`+"\n"), 0o644))

	assert.NotPanics(t, func() { c.RunOnce() })
}
