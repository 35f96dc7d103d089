package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sort"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdftools/internal/models"
)

const (
	// PreviewScale is used for thumbnails shown before conversion.
	PreviewScale = 0.5
	// OutputScale is used for the final images.
	OutputScale = 2.0

	outputJPEGQuality = 95
)

// ImageFormat is an output raster format.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
)

// Ext is the file extension for the format.
func (f ImageFormat) Ext() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpg"
}

// MIMEType is the content type for the format.
func (f ImageFormat) MIMEType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// PageOptions controls PDFToImages.
type PageOptions struct {
	// Pages lists 1-based page numbers. Nil means every page; an empty non-nil slice is an error.
	Pages  []int
	Scale  float64
	Format ImageFormat
}

// PDFToImages rasterizes the selected pages one after another. Data of the result holds a
// zip of all page images when more than one page was selected, or the single image otherwise.
func (e *Engine) PDFToImages(ctx context.Context, src *models.SourceFile, opts PageOptions, progress ProgressFunc) (*models.TransformResult, error) {
	if opts.Pages != nil && len(opts.Pages) == 0 {
		return nil, ErrNoPagesSelected
	}
	if opts.Scale <= 0 {
		opts.Scale = OutputScale
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}

	doc, err := e.rasterizer.Open(src.Data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	pages, err := selectPages(opts.Pages, doc.NumPage())
	if err != nil {
		return nil, err
	}

	images := make([]models.PageImage, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Render(page, opts.Scale)
		if err != nil {
			return nil, err
		}
		data, err := encodeImage(img, opts.Format, outputJPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", page, err)
		}
		b := img.Bounds()
		images = append(images, models.PageImage{
			Page:     page,
			Name:     PageImageName(page, opts.Format.Ext()),
			MIMEType: opts.Format.MIMEType(),
			Width:    b.Dx(),
			Height:   b.Dy(),
			Data:     data,
		})
		progress.report(i+1, len(pages))
	}

	now := e.now()
	result := &models.TransformResult{
		ID:           uuid.NewString(),
		PageCount:    len(images),
		OriginalSize: src.Size,
		ConvertedAt:  now,
		Images:       images,
	}
	if len(images) == 1 {
		result.Name = ExportName("converted", opts.Format.Ext(), now)
		result.MIMEType = images[0].MIMEType
		result.Data = images[0].Data
		return result, nil
	}

	archive, err := BuildArchive(images)
	if err != nil {
		return nil, err
	}
	result.Name = ExportName("converted", "zip", now)
	result.MIMEType = "application/zip"
	result.Data = archive
	return result, nil
}

// selectPages validates a 1-based selection and returns it sorted without duplicates.
func selectPages(requested []int, total int) ([]int, error) {
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrPageOutOfRange)
	}
	if requested == nil {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	seen := make(map[int]bool, len(requested))
	out := make([]int, 0, len(requested))
	for _, p := range requested {
		if p < 1 || p > total {
			return nil, fmt.Errorf("%w: %d (document has %d pages)", ErrPageOutOfRange, p, total)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out, nil
}

func encodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if format == FormatPNG {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
