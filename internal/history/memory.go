package history

import (
	"context"
	"sync"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// MemoryStore keeps the list in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []models.HistoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) List(context.Context) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HistoryRecord(nil), s.entries...), nil
}

func (s *MemoryStore) Append(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = Prepend(s.entries, rec)
	return nil
}
