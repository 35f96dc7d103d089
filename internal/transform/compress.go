package transform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Compress rewrites the document with object and xref streams. For the balanced and
// aggressive methods it also builds a raster copy at the requested quality and scale and
// keeps whichever output is smaller. Sizes on the result always come from the real bytes.
func (e *Engine) Compress(ctx context.Context, src *models.SourceFile, settings models.CompressionSettings, progress ProgressFunc) (*models.TransformResult, error) {
	if src == nil || len(src.Data) == 0 {
		return nil, ErrNoInput
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logCtx := slog.With("file", src.Name, "method", settings.Method)

	steps := 2
	if settings.Method != models.MethodLossless {
		steps = 3
	}

	conf := pdfConfig()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true

	var optimized bytes.Buffer
	if err := api.Optimize(bytes.NewReader(src.Data), &optimized, conf); err != nil {
		return nil, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	progress.report(1, steps)

	pageCount, err := PageCount(optimized.Bytes())
	if err != nil {
		return nil, err
	}
	progress.report(2, steps)

	data := optimized.Bytes()
	if settings.Method != models.MethodLossless {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raster, err := e.rasterRepack(ctx, src.Data, settings)
		switch {
		case err != nil:
			// The structural rewrite is still a valid result.
			logCtx.Warn("Raster repack failed, keeping optimized document", "error", err)
		case len(raster) < len(data):
			logCtx.Info("Raster repack is smaller", "optimized", len(data), "raster", len(raster))
			data = raster
		}
		progress.report(3, steps)
	}

	applied := settings
	return &models.TransformResult{
		ID:           uuid.NewString(),
		Name:         CompressedName(src.Name, e.now()),
		MIMEType:     "application/pdf",
		Data:         data,
		PageCount:    pageCount,
		OriginalSize: int64(len(src.Data)),
		ConvertedAt:  e.now(),
		Settings:     &applied,
	}, nil
}

// rasterRepack renders every page at OutputScale*ImageScale and re-embeds it as a JPEG at
// ImageQuality on a page of the original size.
func (e *Engine) rasterRepack(ctx context.Context, data []byte, settings models.CompressionSettings) ([]byte, error) {
	doc, err := e.rasterizer.Open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	scale := OutputScale * settings.ImageScale
	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: fpdf.SizeType{Wd: 595.28, Ht: 841.89}})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	for page := 1; page <= doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Render(page, scale)
		if err != nil {
			return nil, err
		}
		encoded, err := encodeImage(flatten(img), FormatJPEG, settings.ImageQuality)
		if err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", page, err)
		}

		b := img.Bounds()
		w, h := float64(b.Dx())/scale, float64(b.Dy())/scale
		name := fmt.Sprintf("page-%d", page)
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(encoded))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to write raster PDF: %w", err)
	}
	return out.Bytes(), nil
}
