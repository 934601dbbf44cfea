package writerelection_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore"
	"github.com/vimo-ai/vlaude-daemon/internal/writerelection"
)

// fakeStore is a hand-written SharedStore fake — the collaborator interface
// is small enough that generated mocks (go.uber.org/mock, as the teacher
// uses elsewhere) would be pure overhead here.
type fakeStore struct {
	mu             sync.Mutex
	writer         string
	becomeWriterOK bool
	heartbeatErr   error
}

func (f *fakeStore) TryBecomeWriter(_ context.Context, writerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer != "" {
		return false, nil
	}
	if !f.becomeWriterOK {
		return false, nil
	}
	f.writer = writerID
	return true, nil
}

func (f *fakeStore) Heartbeat(_ context.Context, writerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeatErr != nil {
		return f.heartbeatErr
	}
	if f.writer != writerID {
		return assert.AnError
	}
	return nil
}

func (f *fakeStore) ReleaseWriter(_ context.Context, writerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer == writerID {
		f.writer = ""
	}
	return nil
}

func (f *fakeStore) TryTakeover(_ context.Context, writerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writer = writerID
	return true, nil
}

func (f *fakeStore) UpsertSession(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertMessages(context.Context, []sharedstore.SessionRecord) error {
	return nil
}

var _ sharedstore.SharedStore = (*fakeStore)(nil)

func TestRegisterBecomesWriterOnSuccess(t *testing.T) {
	store := &fakeStore{becomeWriterOK: true}
	e := writerelection.New(store, "daemon-1", zap.NewNop())

	require.NoError(t, e.Register(context.Background()))
	assert.Equal(t, writerelection.Writer, e.Role())

	e.Close()
}

func TestRegisterStaysReaderWhenAnotherWriterHoldsLease(t *testing.T) {
	store := &fakeStore{writer: "someone-else"}
	e := writerelection.New(store, "daemon-1", zap.NewNop())

	require.NoError(t, e.Register(context.Background()))
	assert.Equal(t, writerelection.Reader, e.Role())
}

func TestTryTakeoverForcesWriterRole(t *testing.T) {
	store := &fakeStore{writer: "someone-else"}
	e := writerelection.New(store, "daemon-1", zap.NewNop())

	require.NoError(t, e.TryTakeover(context.Background()))
	assert.Equal(t, writerelection.Writer, e.Role())

	e.Close()
}

func TestReleaseReturnsToReaderAndClearsLease(t *testing.T) {
	store := &fakeStore{becomeWriterOK: true}
	e := writerelection.New(store, "daemon-1", zap.NewNop())

	require.NoError(t, e.Register(context.Background()))
	e.Release(context.Background())

	assert.Equal(t, writerelection.Reader, e.Role())
	assert.Empty(t, store.writer)
}

func TestRoleStartsAsReader(t *testing.T) {
	store := &fakeStore{}
	e := writerelection.New(store, "daemon-1", zap.NewNop())
	assert.Equal(t, writerelection.Reader, e.Role())
}
