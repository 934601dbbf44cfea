package tailer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimo-ai/vlaude-daemon/internal/tailer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatchAndUnwatch(t *testing.T) {
	tl := tailer.New()
	assert.False(t, tl.HasSessions())

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"type":"user","message":"hello"}`+"\n")

	tl.Watch("s1", path, "/project")
	assert.Equal(t, 1, tl.SessionCount())

	tl.Unwatch("s1")
	assert.Equal(t, 0, tl.SessionCount())
}

func TestWatchDoesNotReplayExistingContent(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"type":"user","message":"hello"}`+"\n")

	tl.Watch("s1", path, "/project")

	events := tl.Poll()
	assert.Empty(t, events)
}

func TestPollReturnsNewCompleteLine(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"type":"user","message":"hello"}`+"\n")

	tl.Watch("s1", path, "/project")
	require.Empty(t, tl.Poll())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"assistant","message":"world"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events := tl.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, tailer.EventNewMessage, events[0].Kind)
	assert.Contains(t, string(events[0].Record), "world")
}

func TestPollDoesNotAdvanceOffsetPastPartialTrailingLine(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	tl.Watch("s1", path, "/project")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"user","message":"partial"`) // no closing brace, no newline
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events := tl.Poll()
	assert.Empty(t, events, "a partial trailing line must not be parsed or consumed")

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events = tl.Poll()
	require.Len(t, events, 1, "the now-completed line must be read from its start, not from mid-line")
	assert.Contains(t, string(events[0].Record), "partial")
}

func TestPollReportsSessionDeleted(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	tl.Watch("s1", path, "/project")
	require.NoError(t, os.Remove(path))

	events := tl.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, tailer.EventSessionDeleted, events[0].Kind)
	assert.Equal(t, 0, tl.SessionCount(), "a deleted session's entry is removed")
}

func TestPollTreatsShrinkAsTruncationAndResetsOffset(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"type":"user","message":"one"}`+"\n"+`{"type":"user","message":"two"}`+"\n")

	tl.Watch("s1", path, "/project")
	// advance the watch's starting offset past content written so far
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"user","message":"three"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Len(t, tl.Poll(), 1)

	// simulate rotation: truncate the file to something shorter than the
	// offset we just advanced to
	writeFile(t, path, `{"type":"user","message":"fresh"}`+"\n")

	events := tl.Poll()
	assert.Empty(t, events, "truncation drops the delta rather than replaying it")

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"user","message":"after-rotation"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events = tl.Poll()
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Record), "after-rotation")
}

func TestPollSkipsBlankLines(t *testing.T) {
	tl := tailer.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "")

	tl.Watch("s1", path, "/project")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n" + `{"type":"user","message":"ok"}` + "\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events := tl.Poll()
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Record), "ok")
}
