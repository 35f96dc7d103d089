package transform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// TextExtractor returns the text layer of each page, in page order.
type TextExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// PageTextExtractor reads text from a rendered page image. It backs pages that have no
// text layer, such as scans.
type PageTextExtractor interface {
	ExtractPageText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// PlainTextExtractor reads text layers with ledongthuc/pdf.
type PlainTextExtractor struct{}

// ExtractPages returns one string per page. Pages that fail to decode yield "".
func (PlainTextExtractor) ExtractPages(data []byte) (pages []string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse PDF text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	pages = make([]string, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, pageErr := p.GetPlainText(fonts)
		if pageErr != nil {
			slog.Warn("Failed to read page text", "page", i, "error", pageErr)
			continue
		}
		pages[i-1] = strings.TrimSpace(text)
	}
	return pages, nil
}

// PDFToWord extracts page text into a DOCX with one section per page. Pages without a
// text layer go through the fallback extractor when one is configured.
func (e *Engine) PDFToWord(ctx context.Context, src *models.SourceFile, progress ProgressFunc) (*models.TransformResult, error) {
	if src == nil || len(src.Data) == 0 {
		return nil, ErrNoInput
	}
	logCtx := slog.With("file", src.Name)

	pages, err := e.extractor.ExtractPages(src.Data)
	if err != nil {
		logCtx.Warn("Structured extraction failed, falling back to raw text", "error", err)
		pages = []string{strings.Join(printableParagraphs(src.Data), "\n")}
	}

	// The rasterized document is opened on the first page without text and reused.
	var (
		doc       RasterDocument
		docFailed bool
	)
	defer func() {
		if doc != nil {
			_ = doc.Close()
		}
	}()

	sections := make([]DocxSection, 0, len(pages))
	for i, text := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if text == "" && e.fallback != nil && !docFailed {
			if doc == nil {
				if doc, err = e.rasterizer.Open(src.Data); err != nil {
					logCtx.Warn("Could not open PDF for fallback extraction", "error", err)
					doc, docFailed = nil, true
				}
			}
			if doc != nil {
				text, err = e.pageTextFromImage(ctx, doc, i+1)
				if err != nil {
					logCtx.Warn("Fallback extraction failed", "page", i+1, "error", err)
					text = ""
				}
			}
		}
		sections = append(sections, DocxSection{Paragraphs: splitParagraphs(text)})
		progress.report(i+1, len(pages))
	}

	var out bytes.Buffer
	if err := WriteDOCX(&out, sections); err != nil {
		return nil, fmt.Errorf("failed to write DOCX: %w", err)
	}

	return &models.TransformResult{
		ID:           uuid.NewString(),
		Name:         PDFToWordName(src.Name),
		MIMEType:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:         out.Bytes(),
		PageCount:    len(pages),
		OriginalSize: src.Size,
		ConvertedAt:  e.now(),
	}, nil
}

func (e *Engine) pageTextFromImage(ctx context.Context, doc RasterDocument, page int) (string, error) {
	img, err := doc.Render(page, OutputScale)
	if err != nil {
		return "", err
	}
	encoded, err := encodeImage(flatten(img), FormatJPEG, outputJPEGQuality)
	if err != nil {
		return "", err
	}
	text, err := e.fallback.ExtractPageText(ctx, encoded, FormatJPEG.MIMEType())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// splitParagraphs breaks extracted text on blank lines.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, block := range strings.Split(text, "\n\n") {
		if b := strings.TrimSpace(block); b != "" {
			paras = append(paras, b)
		}
	}
	return paras
}
