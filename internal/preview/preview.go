// Package preview builds display-only renderings of uploaded files.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
)

const (
	excerptLength = 500
	jpegQuality   = 90
)

// PageCounter reads a PDF's page count.
type PageCounter func(data []byte) (int, error)

// Generator renders previews.
type Generator struct {
	rasterizer transform.Rasterizer
	countPages PageCounter
	scale      float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithPageCounter replaces the pdfcpu page counter.
func WithPageCounter(c PageCounter) Option {
	return func(g *Generator) { g.countPages = c }
}

// WithScale sets the PDF page render scale. Defaults to transform.PreviewScale.
func WithScale(scale float64) Option {
	return func(g *Generator) {
		if scale > 0 {
			g.scale = scale
		}
	}
}

// NewGenerator returns a Generator rendering PDF pages with r.
func NewGenerator(r transform.Rasterizer, opts ...Option) *Generator {
	g := &Generator{
		rasterizer: r,
		countPages: transform.PageCount,
		scale:      transform.PreviewScale,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate dispatches on the file type. A PDF yields one artifact per page.
func (g *Generator) Generate(ctx context.Context, src *models.SourceFile, progress transform.ProgressFunc) ([]*models.PreviewArtifact, error) {
	switch {
	case strings.HasPrefix(src.MIMEType, "image/"):
		a, err := g.Image(src)
		if err != nil {
			return nil, err
		}
		return []*models.PreviewArtifact{a}, nil
	case src.MIMEType == "application/pdf" || validate.LooksLikePDF(src.Data):
		return g.PDFPages(ctx, src, progress)
	default:
		a, err := g.Document(src)
		if err != nil {
			return nil, err
		}
		return []*models.PreviewArtifact{a}, nil
	}
}

// Image returns the image itself as a data URL.
func (g *Generator) Image(src *models.SourceFile) (*models.PreviewArtifact, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", src.Name, err)
	}
	a := models.NewPreviewArtifact(uuid.NewString(), src.ID, 0, src.MIMEType, filereader.DataURL(src.MIMEType, src.Data))
	a.Width, a.Height = cfg.Width, cfg.Height
	return a, nil
}

// PDFPages renders every page in order. Any failing page fails the whole file and no
// artifacts are returned.
func (g *Generator) PDFPages(ctx context.Context, src *models.SourceFile, progress transform.ProgressFunc) ([]*models.PreviewArtifact, error) {
	total, err := g.countPages(src.Data)
	if err != nil {
		return nil, err
	}

	doc, err := g.rasterizer.Open(src.Data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	artifacts := make([]*models.PreviewArtifact, 0, total)
	release := func() {
		for _, a := range artifacts {
			a.Release()
		}
	}
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			release()
			return nil, err
		}
		img, err := doc.Render(page, g.scale)
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to render preview of page %d: %w", page, err)
		}
		var buf bytes.Buffer
		if err := encodeJPEG(&buf, img); err != nil {
			release()
			return nil, fmt.Errorf("failed to encode preview of page %d: %w", page, err)
		}
		a := models.NewPreviewArtifact(uuid.NewString(), src.ID, page, "image/jpeg", filereader.DataURL("image/jpeg", buf.Bytes()))
		a.Width, a.Height = img.Bounds().Dx(), img.Bounds().Dy()
		artifacts = append(artifacts, a)
		if progress != nil {
			progress(page, total)
		}
	}
	return artifacts, nil
}

var documentTemplate = template.Must(template.New("document").Parse(`<svg width="100%" height="100%" viewBox="0 0 595 842" xmlns="http://www.w3.org/2000/svg">
<rect width="100%" height="100%" fill="white"/>
<text x="50" y="50" font-family="Arial" font-size="12" fill="#666">
<tspan x="50" dy="1.2em">{{html .Name}}</tspan>
<tspan x="50" dy="1.2em">Content preview...</tspan>
</text>
<text x="50" y="110" font-family="Arial" font-size="11" fill="#222">
{{- range .Lines}}
<tspan x="50" dy="1.4em">{{html .}}</tspan>
{{- end}}
</text>
</svg>`))

// Document renders the first characters of a word-processor file as an SVG page.
func (g *Generator) Document(src *models.SourceFile) (*models.PreviewArtifact, error) {
	text := strings.Join(transform.ExtractDocumentText(src.Data), "\n")
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, struct {
		Name  string
		Lines []string
	}{src.Name, wrapLines(excerpt(text, excerptLength), 80)})
	if err != nil {
		return nil, fmt.Errorf("failed to render document preview: %w", err)
	}
	dataURL := "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	a := models.NewPreviewArtifact(uuid.NewString(), src.ID, 0, "image/svg+xml", dataURL)
	a.Width, a.Height = 595, 842
	return a, nil
}

// excerpt cuts s to at most n runes.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func wrapLines(s string, width int) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(w) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}
