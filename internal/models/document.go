package models

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"sync"
	"time"
)

// SourceFile wraps a user-provided binary for the lifetime of one workflow.
type SourceFile struct {
	ID       string
	Name     string
	Size     int64
	MIMEType string
	Data     []byte
}

// PreviewArtifact is a disposable, display-only rendering derived from a SourceFile.
// A multi-page PDF yields one artifact per page.
type PreviewArtifact struct {
	ID       string
	SourceID string
	Page     int // 1-based, 0 for single-image previews
	MIMEType string
	Width    int
	Height   int

	mu       sync.Mutex
	dataURL  string
	released bool
}

// NewPreviewArtifact builds an artifact holding the given data URL.
func NewPreviewArtifact(id, sourceID string, page int, mimeType, dataURL string) *PreviewArtifact {
	return &PreviewArtifact{
		ID:       id,
		SourceID: sourceID,
		Page:     page,
		MIMEType: mimeType,
		dataURL:  dataURL,
	}
}

// DataURL returns the displayable payload, or "" once released.
func (p *PreviewArtifact) DataURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataURL
}

// Release drops the payload. Safe to call more than once.
func (p *PreviewArtifact) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataURL = ""
	p.released = true
}

// Released reports whether Release has been called.
func (p *PreviewArtifact) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// TransformResult is the output artifact of a conversion.
// Export actions read it but never modify it.
type TransformResult struct {
	ID           string
	Name         string
	MIMEType     string
	Data         []byte
	PageCount    int
	OriginalSize int64
	ConvertedAt  time.Time
	Settings     *CompressionSettings

	// Images holds per-page outputs for PDF->image conversions; Data then holds the archive.
	Images []PageImage
}

// PageImage is one rasterized page of a PDF->image conversion.
type PageImage struct {
	Page     int
	Name     string
	MIMEType string
	Width    int
	Height   int
	Data     []byte
}

// Size is the actual byte length of the output.
func (r *TransformResult) Size() int64 {
	return int64(len(r.Data))
}

// FormattedSize renders Size for display.
func (r *TransformResult) FormattedSize() string {
	return FormatFileSize(r.Size())
}

// Reader returns a fresh reader over the output bytes.
func (r *TransformResult) Reader() io.ReadSeeker {
	return bytes.NewReader(r.Data)
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with 1024-based units and at most two decimals.
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
