package transform

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zip"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// BuildArchive zips page images under their page names.
func BuildArchive(images []models.PageImage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, img := range images {
		// Images are already compressed; store them as-is.
		w, err := zw.CreateHeader(&zip.FileHeader{Name: img.Name, Method: zip.Store})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("failed to add %s to archive: %w", img.Name, err)
		}
		if _, err := w.Write(img.Data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("failed to write %s to archive: %w", img.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
