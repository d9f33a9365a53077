// Package history holds per-agent conversation logs.
package history

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"yinsen/internal/domain"
)

// FileStore implements domain.HistoryStore as a gzip-compressed JSON array
// that is rewritten atomically on every Save.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries []domain.Message

	// beforeRename runs after the temp file is written and before it
	// replaces the target. Tests use it to simulate a crash mid-save.
	beforeRename func(tmpPath string) error
}

// NewFileStore creates a store backed by path and loads any existing history.
// A missing file is an empty history. An unreadable or corrupt file is
// logged and the store starts empty; the next Save overwrites it.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, logger: logger}

	entries, err := s.Load()
	if err != nil {
		logger.Warn("history load failed, starting empty",
			"path", path, "error", err)
		entries = nil
	}
	s.entries = entries
	return s
}

// Load reads the backing file and replaces the in-memory entries.
func (s *FileStore) Load() ([]domain.Message, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.replace(nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrPersistence, s.path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip %s: %v", domain.ErrPersistence, s.path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrPersistence, s.path, err)
	}

	var entries []domain.Message
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrPersistence, s.path, err)
		}
	}
	s.replace(entries)
	return cloneMessages(entries), nil
}

func (s *FileStore) replace(entries []domain.Message) {
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

// Append adds an entry to the in-memory log. Call Save to persist it.
func (s *FileStore) Append(msg domain.Message) {
	s.mu.Lock()
	s.entries = append(s.entries, msg)
	s.mu.Unlock()
}

// Entries returns a copy of the full log.
func (s *FileStore) Entries() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.entries)
}

// Window returns a copy of the last n entries.
func (s *FileStore) Window(n int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.entries, n)
}

// Len returns the number of entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the full log to a temp file next to the target and renames it
// into place. On any failure the temp file is removed and the previous file
// is left untouched.
func (s *FileStore) Save() (err error) {
	s.mu.RLock()
	entries := cloneMessages(s.entries)
	s.mu.RUnlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", domain.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", domain.ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := encode(tmp, entries); err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", domain.ErrPersistence, err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", domain.ErrPersistence, err)
	}
	committed = true
	return nil
}

func encode(w io.Writer, entries []domain.Message) error {
	if entries == nil {
		entries = []domain.Message{}
	}
	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func window(entries []domain.Message, n int) []domain.Message {
	if n <= 0 {
		return nil
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return cloneMessages(entries)
}

func cloneMessages(in []domain.Message) []domain.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Message, len(in))
	copy(out, in)
	return out
}
