package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdftools/internal/models"
)

func buildDOCX(t *testing.T, sections ...DocxSection) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteDOCX(&buf, sections))
	return buf.Bytes()
}

func TestDOCXRoundTrip(t *testing.T) {
	data := buildDOCX(t,
		DocxSection{Paragraphs: []string{"First <para> & more", "Second\twith tab"}},
		DocxSection{Paragraphs: []string{"Next page"}},
	)

	paras := ExtractDocumentText(data)
	assert.Equal(t, []string{"First <para> & more", "Second\twith tab", "\n", "Next page"}, paras)
}

func TestExtractDocumentTextFallsBackToPrintableBytes(t *testing.T) {
	raw := []byte("Hello\x00\x01 world\r\nsecond line\xff\n\n")
	assert.Equal(t, []string{"Hello world", "second line"}, ExtractDocumentText(raw))

	// A zip without word/document.xml is not a DOCX.
	notDocx, err := BuildArchive([]models.PageImage{{Name: "x.txt", Data: []byte("plain")}})
	require.NoError(t, err)
	_, err = docxParagraphs(notDocx)
	assert.ErrorIs(t, err, errNotDOCX)
	assert.NotPanics(t, func() { ExtractDocumentText(notDocx) })
}

func TestWordToPDF(t *testing.T) {
	e := newTestEngine()
	var paras []string
	for i := 0; i < 120; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d with enough words to wrap around the line at least once on A4 paper.", i))
	}
	data := buildDOCX(t, DocxSection{Paragraphs: paras})
	src := &models.SourceFile{Name: "essay.docx", Size: int64(len(data)), Data: data}

	res, err := e.WordToPDF(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, "essay.pdf", res.Name)
	assert.Equal(t, "application/pdf", res.MIMEType)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
	assert.Greater(t, res.PageCount, 1)
	assert.Equal(t, int64(len(res.Data)), res.Size())
}

func TestWordToPDFNoInput(t *testing.T) {
	_, err := newTestEngine().WordToPDF(context.Background(), &models.SourceFile{Name: "a.docx"}, nil)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestPDFToWord(t *testing.T) {
	fallback := &fakePageExtractor{text: "scanned words"}
	e := newTestEngine(
		WithTextExtractor(fakeExtractor{pages: []string{"Intro\n\nBody text", ""}}),
		WithFallbackExtractor(fallback),
		WithRasterizer(&fakeRasterizer{pages: 2}),
	)
	src := &models.SourceFile{Name: "report.pdf", Size: 4, Data: []byte("%PDF")}

	var last int
	res, err := e.PDFToWord(context.Background(), src, func(done, _ int) { last = done })
	require.NoError(t, err)
	assert.Equal(t, "report.docx", res.Name)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 2, last)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "image/jpeg", fallback.mime)

	paras := ExtractDocumentText(res.Data)
	assert.Equal(t, []string{"Intro", "Body text", "\n", "scanned words"}, paras)
}

func TestPDFToWordOpensDocumentOnceForFallback(t *testing.T) {
	fallback := &fakePageExtractor{text: "scanned"}
	raster := &fakeRasterizer{pages: 3}
	e := newTestEngine(
		WithTextExtractor(fakeExtractor{pages: []string{"", "typed", ""}}),
		WithFallbackExtractor(fallback),
		WithRasterizer(raster),
	)
	src := &models.SourceFile{Name: "scan.pdf", Size: 4, Data: []byte("%PDF")}

	_, err := e.PDFToWord(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, raster.opened)
	assert.Equal(t, 2, fallback.calls)
	require.NotNil(t, raster.last)
	assert.Equal(t, []int{1, 3}, raster.last.rendered)
	assert.True(t, raster.last.closed)
}

func TestPDFToWordFallbackOpenFailureKeepsEmptyPages(t *testing.T) {
	fallback := &fakePageExtractor{text: "scanned"}
	e := newTestEngine(
		WithTextExtractor(fakeExtractor{pages: []string{"", ""}}),
		WithFallbackExtractor(fallback),
		WithRasterizer(&fakeRasterizer{pages: 2, openErr: errors.New("cannot open")}),
	)
	res, err := e.PDFToWord(context.Background(), &models.SourceFile{Name: "scan.pdf", Data: []byte("%PDF")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)
	assert.Zero(t, fallback.calls)
}

func TestPDFToWordRawFallback(t *testing.T) {
	e := newTestEngine(WithTextExtractor(fakeExtractor{err: errors.New("bad xref")}))
	src := &models.SourceFile{Name: "odd.pdf", Data: []byte("just some text")}

	res, err := e.PDFToWord(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"just some text"}, ExtractDocumentText(res.Data))
}

func TestPlainTextExtractorRejectsGarbage(t *testing.T) {
	_, err := PlainTextExtractor{}.ExtractPages([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImagesToPDF(t *testing.T) {
	e := newTestEngine()
	inputs := []ImageInput{
		{Name: "a.png", Data: testPNG(t, 40, 20)},
		{Name: "b.png", Data: testPNG(t, 20, 40), Rotation: 90},
	}

	var done int
	res, err := e.ImagesToPDF(context.Background(), inputs, func(d, _ int) { done = d })
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, "converted_1700000000000.pdf", res.Name)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
}

func TestImagesToPDFErrors(t *testing.T) {
	e := newTestEngine()
	_, err := e.ImagesToPDF(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = e.ImagesToPDF(context.Background(), []ImageInput{{Name: "x.png", Data: []byte("nope")}}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "x.png"))
	var imgErr *ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, 0, imgErr.Index)
	assert.Equal(t, "x.png", imgErr.Name)
}

func textPDF(t *testing.T) []byte {
	t.Helper()
	data, _, err := layoutText("Sample", []string{"Some text for the compressor.", "Another paragraph."})
	require.NoError(t, err)
	return data
}

func TestCompressLossless(t *testing.T) {
	e := newTestEngine()
	data := textPDF(t)
	src := &models.SourceFile{Name: "sample.pdf", Size: int64(len(data)), Data: data}

	res, err := e.Compress(context.Background(), src, models.PresetHighQuality.Settings, nil)
	require.NoError(t, err)
	assert.Equal(t, "sample_processed_1700000000000.pdf", res.Name)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, int64(len(data)), res.OriginalSize)
	assert.Equal(t, int64(len(res.Data)), res.Size())
	require.NotNil(t, res.Settings)
	assert.Equal(t, models.MethodLossless, res.Settings.Method)
}

func TestCompressAggressiveUsesRasterRepack(t *testing.T) {
	raster := &fakeRasterizer{pages: 1}
	e := newTestEngine(WithRasterizer(raster))
	data := textPDF(t)
	src := &models.SourceFile{Name: "sample.pdf", Size: int64(len(data)), Data: data}

	var steps []int
	res, err := e.Compress(context.Background(), src, models.PresetSmallSize.Settings, func(done, total int) {
		steps = append(steps, done)
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, steps)
	assert.Equal(t, 1, raster.opened)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
	assert.Equal(t, models.PresetSmallSize.Settings, *res.Settings)
}

func TestCompressRejectsBadInput(t *testing.T) {
	e := newTestEngine()
	_, err := e.Compress(context.Background(), &models.SourceFile{Name: "x.pdf"}, models.DefaultPreset.Settings, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	src := &models.SourceFile{Name: "x.pdf", Data: textPDF(t)}
	_, err = e.Compress(context.Background(), src, models.CompressionSettings{ImageQuality: 0, ImageScale: 1, Method: models.MethodLossless}, nil)
	assert.Error(t, err)

	_, err = e.Compress(context.Background(), &models.SourceFile{Name: "x.pdf", Data: []byte("garbage")}, models.DefaultPreset.Settings, nil)
	assert.Error(t, err)
}
