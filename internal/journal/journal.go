// Package journal keeps append-only journal entries in a local JSON file.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultKey is the storage key entries live under.
const DefaultKey = "journalEntries"

// ErrEmptyEntry is returned for an entry that is blank after trimming.
var ErrEmptyEntry = errors.New("journal entry is empty")

// Entry is one saved reflection.
type Entry struct {
	Prompt    string    `json:"prompt"`
	Entry     string    `json:"entry"`
	Timestamp time.Time `json:"timestamp"`
}

// UserKey scopes DefaultKey to one user.
func UserKey(userID string) string {
	return userID + "/" + DefaultKey
}

// FileStore holds every key's entries in one JSON document.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewFileStore opens the document at path, creating its directory. A
// missing or empty file starts an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	s := &FileStore{path: path, entries: make(map[string][]Entry)}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load journal %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&s.entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if s.entries == nil {
		s.entries = make(map[string][]Entry)
	}
	return nil
}

// Append adds an entry under key and flushes the document. The entry text
// is stored as given; only the blank check trims it.
func (s *FileStore) Append(key, prompt, text string) (Entry, error) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, ErrEmptyEntry
	}
	e := Entry{Prompt: prompt, Entry: text, Timestamp: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.entries[key]
	s.entries[key] = append(prev, e)
	if err := atomicWriteFileJSON(s.path, s.entries); err != nil {
		s.entries[key] = prev
		return Entry{}, fmt.Errorf("save journal: %w", err)
	}
	return e, nil
}

// List returns the entries under key in insertion order.
func (s *FileStore) List(key string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries[key]...)
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}
