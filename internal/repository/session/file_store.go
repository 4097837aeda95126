package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dafibh/loansync/internal/domain"
)

type fileEntry struct {
	Tokens    domain.Tokens `json:"tokens"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// FileStore keeps session tokens in a JSON file readable only by the owner.
// The CLI uses it to stay signed in between runs.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

var _ domain.SessionStore = (*FileStore)(nil)

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, id string) (domain.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return domain.Tokens{}, err
	}
	e, ok := entries[id]
	if !ok || (e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt)) {
		return domain.Tokens{}, domain.ErrSessionNotFound
	}
	return e.Tokens, nil
}

func (s *FileStore) Save(ctx context.Context, id string, tokens domain.Tokens, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	e := fileEntry{Tokens: tokens}
	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		e.ExpiresAt = &expiresAt
	}
	entries[id] = e
	return s.write(entries)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return nil
	}
	delete(entries, id)
	return s.write(entries)
}

func (s *FileStore) read() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]fileEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
