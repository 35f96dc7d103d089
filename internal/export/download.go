// Package export delivers transform results: download, share and print.
// Nothing here modifies a result, so every action can be retried.
package export

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// ErrNoResult is returned when there is nothing to export.
var ErrNoResult = errors.New("no result to export")

// Download writes the result as an attachment.
func Download(w http.ResponseWriter, res *models.TransformResult) error {
	if res == nil {
		return ErrNoResult
	}
	h := w.Header()
	h.Set("Content-Type", res.MIMEType)
	h.Set("Content-Length", strconv.FormatInt(res.Size(), 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, res.Reader()); err != nil {
		return fmt.Errorf("failed to write download: %w", err)
	}
	return nil
}

// WriteFile saves the result into dir under its own name and returns the path.
func WriteFile(dir string, res *models.TransformResult) (string, error) {
	if res == nil {
		return "", ErrNoResult
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(res.Name))
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
