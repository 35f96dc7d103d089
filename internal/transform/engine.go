// Package transform implements the conversions offered by the tools. Heavy lifting is
// delegated to pdfcpu (PDF object model), go-fitz (rasterizing), ledongthuc/pdf (text
// extraction) and fpdf (text layout).
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ProgressFunc receives done/total after each unit of work.
type ProgressFunc func(done, total int)

func (p ProgressFunc) report(done, total int) {
	if p != nil {
		p(done, total)
	}
}

var (
	ErrNoInput         = errors.New("no input files")
	ErrNoPagesSelected = errors.New("no pages selected")
	ErrPageOutOfRange  = errors.New("page out of range")
)

// Engine bundles the collaborators every transform needs.
type Engine struct {
	rasterizer Rasterizer
	extractor  TextExtractor
	fallback   PageTextExtractor
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRasterizer replaces the default go-fitz rasterizer.
func WithRasterizer(r Rasterizer) Option {
	return func(e *Engine) { e.rasterizer = r }
}

// WithTextExtractor replaces the default PDF text extractor.
func WithTextExtractor(x TextExtractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithFallbackExtractor sets an extractor used for pages without a text layer.
func WithFallbackExtractor(x PageTextExtractor) Option {
	return func(e *Engine) { e.fallback = x }
}

// WithClock overrides time.Now, used for generated file names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine with the default collaborators.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rasterizer: FitzRasterizer{},
		extractor:  PlainTextExtractor{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rasterizer exposes the configured rasterizer to the preview generator.
func (e *Engine) Rasterizer() Rasterizer { return e.rasterizer }

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount reads the page count from the document structure.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}
