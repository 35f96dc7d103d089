package transform

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Text layout for reflowed documents, in points.
const (
	pageMargin     = 40.0
	bodyFontSize   = 12.0
	titleFontSize  = 16.0
	lineHeight     = 15.0
	titleGap       = 10.0
	paragraphGap   = 6.0
	layoutFontName = "Helvetica"
)

// WordToPDF reflows the text of a word-processor file onto A4 pages. Formatting, images
// and tables are not carried over.
func (e *Engine) WordToPDF(ctx context.Context, src *models.SourceFile, progress ProgressFunc) (*models.TransformResult, error) {
	if src == nil || len(src.Data) == 0 {
		return nil, ErrNoInput
	}
	paras := ExtractDocumentText(src.Data)
	progress.report(1, 2)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, pages, err := layoutText(TitleFromName(src.Name), paras)
	if err != nil {
		return nil, err
	}
	progress.report(2, 2)

	return &models.TransformResult{
		ID:           uuid.NewString(),
		Name:         WordToPDFName(src.Name),
		MIMEType:     "application/pdf",
		Data:         data,
		PageCount:    pages,
		OriginalSize: src.Size,
		ConvertedAt:  e.now(),
	}, nil
}

// layoutText writes a title and paragraphs with automatic page breaks.
func layoutText(title string, paras []string) ([]byte, int, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont(layoutFontName, "B", titleFontSize)
		pdf.MultiCell(0, titleFontSize+4, tr(title), "", "L", false)
		pdf.Ln(titleGap)
	}

	pdf.SetFont(layoutFontName, "", bodyFontSize)
	for _, para := range paras {
		text := strings.ReplaceAll(para, "\t", "    ")
		if strings.TrimSpace(text) == "" {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.MultiCell(0, lineHeight, tr(text), "", "L", false)
		pdf.Ln(paragraphGap)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to write PDF: %w", err)
	}
	return out.Bytes(), pdf.PageNo(), nil
}
