package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// maxEntrySize bounds a single journal line.
const maxEntrySize = 1024 * 1024

// JournalEntry is one line of the journal. Each entry carries the hash of its
// predecessor so edits and deletions are detectable.
type JournalEntry struct {
	*Event
	PreviousHash string `json:"previous_hash,omitempty"`
	EventHash    string `json:"event_hash"`
}

// Journal appends events to a JSON Lines file and fsyncs each one. It lets
// short-lived CLI invocations share one audit trail: every append holds an
// exclusive file lock and chains onto whatever entry is last on disk.
type Journal struct {
	path     string
	file     *os.File
	lastHash string
	count    int64
	mu       sync.Mutex
}

// OpenJournal opens (or creates) the journal at path and resumes its hash chain.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit journal directory: %w", err)
	}

	entries, err := readJournal(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}

	j := &Journal{path: path, file: file, count: int64(len(entries))}
	if n := len(entries); n > 0 {
		j.lastHash = entries[n-1].EventHash
	}
	return j, nil
}

// Log appends event to the journal
func (j *Journal) Log(event *Event) (retErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := lockFile(j.file); err != nil {
		return fmt.Errorf("failed to lock audit journal: %w", err)
	}
	defer func() {
		if err := unlockFile(j.file); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to unlock audit journal: %w", err)
		}
	}()

	if err := j.resync(); err != nil {
		return err
	}

	entry := JournalEntry{Event: event, PreviousHash: j.lastHash}
	hash, err := entryHash(entry)
	if err != nil {
		return err
	}
	entry.EventHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit journal: %w", err)
	}

	j.lastHash = hash
	j.count++
	return nil
}

// resync picks up entries other writers appended since our last write.
// Callers hold the file lock.
func (j *Journal) resync() error {
	tail, err := tailHash(j.file)
	if err != nil {
		return err
	}
	if tail == j.lastHash {
		return nil
	}

	entries, err := decodeJournal(io.NewSectionReader(j.file, 0, 1<<62))
	if err != nil {
		return err
	}
	j.count = int64(len(entries))
	j.lastHash = ""
	if n := len(entries); n > 0 {
		j.lastHash = entries[n-1].EventHash
	}
	return nil
}

// tailHash returns the hash of the last entry in f, or "" when f is empty.
func tailHash(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat audit journal: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return "", nil
	}

	n := min(size, maxEntrySize)
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read audit journal: %w", err)
	}
	buf = bytes.TrimRight(buf, "\n")
	if len(buf) == 0 {
		return "", nil
	}
	i := bytes.LastIndexByte(buf, '\n')
	if i < 0 && n < size {
		return "", fmt.Errorf("last audit entry exceeds %d bytes", maxEntrySize)
	}

	var entry JournalEntry
	if err := json.Unmarshal(buf[i+1:], &entry); err != nil {
		return "", fmt.Errorf("failed to parse last audit entry: %w", err)
	}
	return entry.EventHash, nil
}

// GetEventCount returns the number of entries in the journal
func (j *Journal) GetEventCount() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close closes the underlying file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Events reads every event in the journal, oldest first.
func (j *Journal) Events() ([]*Event, error) {
	entries, err := readJournal(j.path)
	if err != nil {
		return nil, err
	}
	events := make([]*Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	return events, nil
}

// VerifyJournal checks the hash chain of the journal at path.
func VerifyJournal(path string) error {
	entries, err := readJournal(path)
	if err != nil {
		return err
	}

	var previous string
	for i, entry := range entries {
		line := i + 1
		if entry.PreviousHash != previous {
			return fmt.Errorf("line %d: hash chain broken (expected previous hash %q, got %q)",
				line, previous, entry.PreviousHash)
		}
		recomputed := entry
		recomputed.EventHash = ""
		hash, err := entryHash(recomputed)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if hash != entry.EventHash {
			return fmt.Errorf("line %d: event hash mismatch", line)
		}
		previous = entry.EventHash
	}
	return nil
}

func entryHash(entry JournalEntry) (string, error) {
	entry.EventHash = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func readJournal(path string) (_ []JournalEntry, retErr error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	return decodeJournal(file)
}

func decodeJournal(r io.Reader) ([]JournalEntry, error) {
	var entries []JournalEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEntrySize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse audit entry: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
