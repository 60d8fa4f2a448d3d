package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scenegraph/sgeval/internal/pkg/errors"
)

// JournalEntry is one event as recorded on disk.
type JournalEntry struct {
	Recorded time.Time `json:"recorded"`
	Event    Event     `json:"event"`
}

// JournalQuery selects entries. Zero fields match everything.
type JournalQuery struct {
	Since time.Time // entries recorded strictly after Since
	RunID string
	Topic string
	Limit int // most recent Limit matches, 0 = all
}

func (q JournalQuery) matches(e JournalEntry) bool {
	if !e.Recorded.After(q.Since) {
		return false
	}
	if q.RunID != "" && e.Event.RunID != q.RunID {
		return false
	}
	if q.Topic != "" && e.Event.Topic != q.Topic {
		return false
	}
	return true
}

// Journal is an append-only JSON lines file of published events.
type Journal struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	file *os.File
}

// OpenJournal opens path for appending, creating it and its directory.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.PersistenceError("create journal directory", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.PersistenceError("open journal", err)
	}
	return &Journal{path: path, now: time.Now, file: file}, nil
}

func (j *Journal) Path() string {
	return j.path
}

// Append writes event as one line and syncs it to disk.
func (j *Journal) Append(event Event) error {
	line, err := json.Marshal(JournalEntry{Recorded: j.now().UTC(), Event: event})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encode journal entry", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New(errors.CodeUnavailable, "journal is closed")
	}
	if _, err := j.file.Write(line); err != nil {
		return errors.PersistenceError("write journal entry", err)
	}
	if err := j.file.Sync(); err != nil {
		return errors.PersistenceError("sync journal", err)
	}
	return nil
}

// Query returns the matching entries oldest first. Lines that do not decode
// are skipped.
func (j *Journal) Query(q JournalQuery) ([]JournalEntry, error) {
	return ReadJournal(j.path, q)
}

// ReadJournal queries the journal at path without opening it for writing.
// A missing file holds no entries.
func ReadJournal(path string, q JournalQuery) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, errors.PersistenceError("open journal", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	entries := []JournalEntry{}
	for scanner.Scan() {
		var e JournalEntry
		if json.Unmarshal(scanner.Bytes(), &e) != nil || !q.matches(e) {
			continue
		}
		entries = append(entries, e)
		if q.Limit > 0 && len(entries) > q.Limit {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.PersistenceError("scan journal", err)
	}
	return entries, nil
}

// Replay republishes the matching entries onto b in recorded order.
func (j *Journal) Replay(ctx context.Context, b Bus, q JournalQuery) (int, error) {
	entries, err := j.Query(q)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := b.Publish(ctx, e.Event); err != nil {
			return i, fmt.Errorf("replay event %s: %w", e.Event.ID, err)
		}
	}
	return len(entries), nil
}

// Close is idempotent. Appends after Close fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	if err != nil {
		return errors.PersistenceError("close journal", err)
	}
	return nil
}
