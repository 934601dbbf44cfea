// Package tailer implements Tailer: a byte-offset poller over a small set
// of watched transcript files. It owns no timer and spawns no background
// goroutine of its own — DaemonCore calls Poll opportunistically, which
// keeps the component's correctness easy to reason about and test.
//
// Grounded on SessionWatcher in
// original_source/packages/vlaude-core/daemon-logic/src/watcher.rs, with
// the snapshot-under-read-lock / I/O-outside-lock / write-lock-to-mutate
// structure carried over verbatim into Go's sync.RWMutex. The poll-loop
// *shape* (not its timer ownership) additionally follows
// apps/discovery-service/internal/worker/scan_poller.go's poll(ctx) method.
//
// One bug in the original is deliberately NOT carried over: its
// read_incremental_static advances the offset by
// `content.len() + 1` for every line bufio yields, including a final line
// with no trailing newline — overshooting into content that hasn't
// actually been fully written yet. Offsets here only ever advance past a
// line that was terminated by '\n'.
package tailer

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventNewMessage carries one successfully parsed JSON object from an
	// appended, complete line.
	EventNewMessage EventKind = iota
	// EventSessionDeleted reports that a watched file no longer exists.
	EventSessionDeleted
	// EventError reports an I/O failure that does not imply deletion.
	EventError
)

// Event is one item returned from Poll.
type Event struct {
	Kind        EventKind
	SessionKey  string
	ProjectPath string
	Record      json.RawMessage // set for EventNewMessage
	Text        string          // set for EventError
}

type watchedSession struct {
	path           string
	projectPath    string
	lastByteOffset int64
}

// Tailer owns a map of session_key -> watched session and polls each for
// newly appended, complete JSON lines.
type Tailer struct {
	mu       sync.RWMutex
	sessions map[string]*watchedSession
}

// New constructs an empty Tailer.
func New() *Tailer {
	return &Tailer{sessions: make(map[string]*watchedSession)}
}

// Watch records the file's current byte length as the starting offset —
// pre-existing content is not replayed. A missing file records offset 0.
func (t *Tailer) Watch(sessionKey, path, projectPath string) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	t.mu.Lock()
	t.sessions[sessionKey] = &watchedSession{
		path:           path,
		projectPath:    projectPath,
		lastByteOffset: size,
	}
	t.mu.Unlock()
}

// Unwatch removes the entry, if present.
func (t *Tailer) Unwatch(sessionKey string) {
	t.mu.Lock()
	delete(t.sessions, sessionKey)
	t.mu.Unlock()
}

// HasSessions reports whether any session is currently watched.
func (t *Tailer) HasSessions() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions) > 0
}

// SessionCount returns the number of watched sessions.
func (t *Tailer) SessionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

type snapshot struct {
	sessionKey  string
	path        string
	projectPath string
	offset      int64
}

// Poll reads from each watched session's last_byte_offset to end of file
// and returns the derived events. The snapshot is taken under the read
// lock, I/O runs outside any lock, and the write lock is reacquired only
// to advance offsets or remove deleted entries.
func (t *Tailer) Poll() []Event {
	t.mu.RLock()
	snapshots := make([]snapshot, 0, len(t.sessions))
	for key, ws := range t.sessions {
		snapshots = append(snapshots, snapshot{
			sessionKey:  key,
			path:        ws.path,
			projectPath: ws.projectPath,
			offset:      ws.lastByteOffset,
		})
	}
	t.mu.RUnlock()

	var events []Event
	var toDelete []string
	newOffsets := make(map[string]int64, len(snapshots))

	for _, s := range snapshots {
		info, err := os.Stat(s.path)
		if os.IsNotExist(err) {
			events = append(events, Event{Kind: EventSessionDeleted, SessionKey: s.sessionKey, ProjectPath: s.projectPath})
			toDelete = append(toDelete, s.sessionKey)
			continue
		}
		if err != nil {
			events = append(events, Event{Kind: EventError, SessionKey: s.sessionKey, Text: err.Error()})
			continue
		}

		currentSize := info.Size()
		if currentSize < s.offset {
			// Truncation/rotation: reset to current size, drop the delta
			// rather than risk replaying it.
			newOffsets[s.sessionKey] = currentSize
			continue
		}
		if currentSize == s.offset {
			continue
		}

		records, newOffset, err := readIncremental(s.path, s.offset)
		if err != nil {
			events = append(events, Event{Kind: EventError, SessionKey: s.sessionKey, Text: err.Error()})
			continue
		}

		if newOffset > s.offset {
			newOffsets[s.sessionKey] = newOffset
		}

		for _, rec := range records {
			events = append(events, Event{
				Kind:        EventNewMessage,
				SessionKey:  s.sessionKey,
				ProjectPath: s.projectPath,
				Record:      rec,
			})
		}
	}

	if len(newOffsets) > 0 || len(toDelete) > 0 {
		t.mu.Lock()
		for key, offset := range newOffsets {
			if ws, ok := t.sessions[key]; ok {
				ws.lastByteOffset = offset
			}
		}
		for _, key := range toDelete {
			delete(t.sessions, key)
		}
		t.mu.Unlock()
	}

	return events
}

// readIncremental reads path from offset to EOF, returning one
// json.RawMessage per successfully parsed, newline-terminated line and the
// new offset (the byte position immediately after the last complete
// line). A partial trailing line — one with no terminating '\n' yet —
// does not advance the offset past its own start, so a later poll
// re-reads it once it is complete.
func readIncremental(path string, offset int64) ([]json.RawMessage, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	reader := bufio.NewReader(f)
	var records []json.RawMessage
	newOffset := offset

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return records, newOffset, err
			}
			// Partial trailing line (no terminating '\n' yet, possibly
			// empty at true EOF): do not advance past its start.
			break
		}

		newOffset += int64(len(line))

		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if json.Valid([]byte(trimmed)) {
			records = append(records, json.RawMessage(append([]byte(nil), trimmed...)))
		}
	}

	return records, newOffset, nil
}
