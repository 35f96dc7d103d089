package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

var fixedNow = time.UnixMilli(1700000000000)

// fakeRasterizer produces flat gray pages of 100x140 points.
type fakeRasterizer struct {
	pages   int
	openErr error
	opened  int
	last    *fakeDocument
}

func (f *fakeRasterizer) Open([]byte) (RasterDocument, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	f.last = &fakeDocument{pages: f.pages}
	return f.last, nil
}

type fakeDocument struct {
	pages    int
	rendered []int
	closed   bool
}

func (d *fakeDocument) NumPage() int { return d.pages }

func (d *fakeDocument) Render(page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	d.rendered = append(d.rendered, page)
	img := image.NewRGBA(image.Rect(0, 0, int(100*scale), int(140*scale)))
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.Set(x, y, color.Gray{Y: uint8(40 * page)})
		}
	}
	return img, nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeExtractor struct {
	pages []string
	err   error
}

func (f fakeExtractor) ExtractPages([]byte) ([]string, error) { return f.pages, f.err }

type fakePageExtractor struct {
	text  string
	err   error
	calls int
	mime  string
}

func (f *fakePageExtractor) ExtractPageText(_ context.Context, img []byte, mimeType string) (string, error) {
	f.calls++
	f.mime = mimeType
	if len(img) == 0 {
		return "", errors.New("empty image")
	}
	return f.text, f.err
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithClock(func() time.Time { return fixedNow })}
	return NewEngine(append(base, opts...)...)
}
