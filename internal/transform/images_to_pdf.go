package transform

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/models"
)

// One page per image on A4, centered, scaled to fit while keeping the aspect ratio.
const importDescription = "f:A4, pos:c, sc:1.0 rel"

const placementJPEGQuality = 95

// ImageInput is one image queued for ImagesToPDF, in page order.
type ImageInput struct {
	Name     string
	Data     []byte
	Rotation int
}

// ImageError names the input image that could not be placed.
type ImageError struct {
	Index int
	Name  string
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// ImagesToPDF assembles a multi-page PDF with one page per image, in the given order.
func (e *Engine) ImagesToPDF(ctx context.Context, inputs []ImageInput, progress ProgressFunc) (*models.TransformResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}

	imp, err := api.Import(importDescription, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build import config: %w", err)
	}

	readers := make([]io.Reader, 0, len(inputs))
	var originalSize int64
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		placed, err := prepareImage(in)
		if err != nil {
			return nil, &ImageError{Index: i, Name: in.Name, Err: err}
		}
		readers = append(readers, bytes.NewReader(placed))
		originalSize += int64(len(in.Data))
		progress.report(i+1, len(inputs))
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to assemble PDF: %w", err)
	}

	pageCount, err := PageCount(out.Bytes())
	if err != nil {
		return nil, err
	}

	now := e.now()
	return &models.TransformResult{
		ID:           uuid.NewString(),
		Name:         ExportName("converted", "pdf", now),
		MIMEType:     "application/pdf",
		Data:         out.Bytes(),
		PageCount:    pageCount,
		OriginalSize: originalSize,
		ConvertedAt:  now,
	}, nil
}

// prepareImage returns JPEG bytes with rotation applied. Unrotated JPEGs pass through.
func prepareImage(in ImageInput) ([]byte, error) {
	img, format, err := filereader.DecodeImage(in.Data)
	if err != nil {
		return nil, err
	}
	rotation := NormalizeRotation(in.Rotation)
	if format == "jpeg" && rotation == 0 {
		return in.Data, nil
	}

	rotated := Rotate(img, rotation)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(rotated), &jpeg.Options{Quality: placementJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
