// Package pending persists scheduled message deletions as one JSONL log per
// chat so they can be replayed after a restart.
package pending

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "pending_deletes_"
	fileSuffix = ".jsonl"
)

// Deletion is one durable record of an intent to delete a message.
type Deletion struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
	ThreadID  *int  `json:"thread_id"`
	DeleteAt  int64 `json:"delete_at"`
	CreatedAt int64 `json:"created_at"`
}

// DeleteTime returns DeleteAt as a time.Time.
func (d Deletion) DeleteTime() time.Time {
	return time.Unix(d.DeleteAt, 0)
}

// Store is a directory of per-chat append-only logs. Writers for the same
// chat are serialized; different chats proceed in parallel.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates the store directory if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("pending: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pending: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir, locks: make(map[int64]*sync.Mutex)}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(chatID int64) string {
	return filepath.Join(s.dir, filePrefix+strconv.FormatInt(chatID, 10)+fileSuffix)
}

func (s *Store) lock(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

// Append adds a record to the chat's log and flushes it to disk before
// returning.
func (s *Store) Append(rec Deletion) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pending: encode record: %w", err)
	}

	l := s.lock(rec.ChatID)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(s.path(rec.ChatID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("pending: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("pending: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("pending: sync: %w", err)
	}
	return nil
}

// LoadAll returns every readable record of a chat in append order.
// Malformed lines are skipped.
func (s *Store) LoadAll(chatID int64) ([]Deletion, error) {
	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	lines, err := s.readLines(chatID)
	if err != nil {
		return nil, err
	}

	records := make([]Deletion, 0, len(lines))
	for _, line := range lines {
		if rec, ok := decode(line); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// RemoveByMessageID rewrites the chat's log without any record for
// messageID. Removing a key that is not present is a no-op.
func (s *Store) RemoveByMessageID(chatID int64, messageID int) error {
	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	lines, err := s.readLines(chatID)
	if err != nil || len(lines) == 0 {
		return err
	}

	var kept [][]byte
	for _, line := range lines {
		// undecodable lines are kept as-is
		if rec, ok := decode(line); ok && rec.MessageID == messageID {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == len(lines) {
		return nil
	}

	if len(kept) == 0 {
		if err := os.Remove(s.path(chatID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pending: remove empty log: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	for _, line := range kept {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return writeAtomic(s.path(chatID), buf.Bytes())
}

// Chats lists every chat that has a log file.
func (s *Store) Chats() ([]int64, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("pending: list logs: %w", err)
	}

	var chats []int64
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), filePrefix), fileSuffix)
		chatID, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		chats = append(chats, chatID)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats, nil
}

func (s *Store) readLines(chatID int64) ([][]byte, error) {
	data, err := os.ReadFile(s.path(chatID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending: read log: %w", err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pending: scan log: %w", err)
	}
	return lines, nil
}

func decode(line []byte) (Deletion, bool) {
	var rec Deletion
	if err := json.Unmarshal(line, &rec); err != nil || rec.MessageID == 0 {
		return Deletion{}, false
	}
	return rec, true
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("pending: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("pending: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("pending: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pending: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("pending: rename temp: %w", err)
	}
	return nil
}
