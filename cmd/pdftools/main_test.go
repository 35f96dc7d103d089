package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
)

func TestCompressionSettings(t *testing.T) {
	s, err := compressionSettings("small-size", 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PresetSmallSize.Settings, s)

	s, err = compressionSettings("Balanced", 80, 0.6, "lossless")
	require.NoError(t, err)
	assert.Equal(t, models.CompressionSettings{ImageQuality: 80, ImageScale: 0.6, Method: models.MethodLossless}, s)

	_, err = compressionSettings("tiny", 0, 0, "")
	assert.Error(t, err)

	_, err = compressionSettings("balanced", 101, 0, "")
	assert.Error(t, err)
}

func TestCompressAndHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	res, err := transform.NewEngine().ImagesToPDF(context.Background(), []transform.ImageInput{{Name: "a.png", Data: buf.Bytes()}}, nil)
	require.NoError(t, err)
	src := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(src, res.Data, 0o644))

	outDir := filepath.Join(dir, "out")
	historyFile := filepath.Join(dir, "history.json")
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	rootCmd.SetArgs([]string{"compress", src, "--preset", "high-quality", "-o", outDir, "--history-backend", "file", "--history-file", historyFile})
	require.NoError(t, rootCmd.Execute(), stderr.String())

	matches, err := filepath.Glob(filepath.Join(outDir, "report_processed_*.pdf"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, stdout.String(), matches[0])

	stdout.Reset()
	rootCmd.SetArgs([]string{"history", "--history-backend", "file", "--history-file", historyFile})
	require.NoError(t, rootCmd.Execute(), stderr.String())
	assert.Contains(t, stdout.String(), "report.pdf")
	assert.NotContains(t, stdout.String(), filepath.Base(matches[0]), "history lists the uploaded file, not the output")
}
