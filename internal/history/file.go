package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// FileStore keeps the list in a JSON document of the form {"compressionHistory": [...]}.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) List(context.Context) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Append(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	return s.save(Prepend(entries, rec))
}

func (s *FileStore) load() ([]models.HistoryRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var doc map[string][]models.HistoryRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return doc[Key], nil
}

// save writes to a temp file and renames it over the target.
func (s *FileStore) save(entries []models.HistoryRecord) error {
	data, err := json.MarshalIndent(map[string][]models.HistoryRecord{Key: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
