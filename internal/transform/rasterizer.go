package transform

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer opens PDF bytes for page rendering.
type Rasterizer interface {
	Open(data []byte) (RasterDocument, error)
}

// RasterDocument renders pages of one open PDF. Pages are 1-based.
type RasterDocument interface {
	NumPage() int
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct{}

// Open loads the document from memory.
func (FitzRasterizer) Open(data []byte) (RasterDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int { return d.doc.NumPage() }

// Render draws the page at scale x 72 DPI, matching a viewport scale of 1.0 at 72 DPI.
func (d *fitzDocument) Render(page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.doc.NumPage() {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	img, err := d.doc.ImageDPI(page-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error { return d.doc.Close() }
