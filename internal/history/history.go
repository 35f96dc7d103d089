// Package history keeps the list of recent compressions.
package history

import (
	"context"
	"time"

	"github.com/Lllllllleong/pdftools/internal/models"
)

const (
	// Key names the list in every backing store.
	Key = "compressionHistory"
	// MaxEntries is the list cap; the oldest record is evicted first.
	MaxEntries = 10
)

// Store persists the history list, newest first.
type Store interface {
	List(ctx context.Context) ([]models.HistoryRecord, error)
	Append(ctx context.Context, rec models.HistoryRecord) error
}

// Prepend returns entries with rec in front, capped at MaxEntries. entries is not modified.
func Prepend(entries []models.HistoryRecord, rec models.HistoryRecord) []models.HistoryRecord {
	n := len(entries) + 1
	if n > MaxEntries {
		n = MaxEntries
	}
	out := make([]models.HistoryRecord, 0, n)
	out = append(out, rec)
	out = append(out, entries[:n-1]...)
	return out
}

// NewRecord builds a record from actual byte sizes.
func NewRecord(fileName string, originalSize, compressedSize int64, now time.Time) models.HistoryRecord {
	return models.NewHistoryRecord(fileName, originalSize, compressedSize, now)
}
