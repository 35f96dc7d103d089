package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdftools/internal/models"
)

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name  string
		event GCSEvent
		skip  bool
	}{
		{"pdf upload", GCSEvent{Bucket: "in", Name: "docs/report.pdf"}, false},
		{"upper-case extension", GCSEvent{Bucket: "in", Name: "REPORT.PDF"}, false},
		{"pdf by content type", GCSEvent{Bucket: "in", Name: "scan", ContentType: "application/pdf"}, false},
		{"folder marker", GCSEvent{Bucket: "in", Name: "docs/"}, true},
		{"image", GCSEvent{Bucket: "in", Name: "a.png", ContentType: "image/png"}, true},
		{"own output", GCSEvent{Bucket: "out", Name: "abc/report_processed_1.pdf"}, true},
		{"processed name in another bucket", GCSEvent{Bucket: "in", Name: "report_processed_1.pdf"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, reason := shouldSkip(tt.event, "out")
			assert.Equal(t, tt.skip, skip)
			if skip {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCalculateHash(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", calculateHash([]byte("abc")))
}

func TestObjectNames(t *testing.T) {
	assert.Equal(t, "doc1/report_processed_1.pdf", outputObjectName("doc1", "report_processed_1.pdf"))
	assert.Equal(t, "doc1/thumbnails/00003.jpg", thumbnailObjectName("doc1", 3))
}

func TestHistoryRecordUsesUploadName(t *testing.T) {
	src := &models.SourceFile{Name: "report.pdf", Size: 200}
	res := &models.TransformResult{Name: "report_processed_1.pdf", OriginalSize: 200, Data: make([]byte, 150)}

	rec := historyRecord(src, res, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "report.pdf", rec.FileName)
	assert.Equal(t, int64(200), rec.OriginalSize)
	assert.Equal(t, int64(150), rec.CompressedSize)
	assert.Equal(t, "25.0", rec.CompressionRatio)
}

func withFastBackoff(t *testing.T) {
	t.Helper()
	prev := initialUploadBackoff
	initialUploadBackoff = time.Millisecond
	t.Cleanup(func() { initialUploadBackoff = prev })
}

func TestRetryUploadRecovers(t *testing.T) {
	withFastBackoff(t)
	calls := 0
	err := retryUpload(context.Background(), "obj", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryUploadGivesUp(t *testing.T) {
	withFastBackoff(t)
	calls := 0
	boom := errors.New("permanent")
	err := retryUpload(context.Background(), "obj", func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, maxUploadRetries, calls)
}

func TestRetryUploadStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryUpload(ctx, "obj", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
