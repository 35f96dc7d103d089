package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdftools/internal/export"
	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
)

// fakeTransformer records its inputs and can fail or block.
type fakeTransformer struct {
	mu       sync.Mutex
	images   []transform.ImageInput
	pages    []int
	fail     map[string]bool
	started  chan struct{}
	release  chan struct{}
	compress int
}

func (f *fakeTransformer) wait(ctx context.Context) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeTransformer) result(name string) (*models.TransformResult, error) {
	if f.fail[name] {
		return nil, fmt.Errorf("library threw on %s", name)
	}
	return &models.TransformResult{ID: "res-" + name, Name: name + ".out", MIMEType: "application/pdf", Data: []byte("%PDF-out " + name)}, nil
}

func (f *fakeTransformer) ImagesToPDF(ctx context.Context, inputs []transform.ImageInput, progress transform.ProgressFunc) (*models.TransformResult, error) {
	f.wait(ctx)
	f.mu.Lock()
	f.images = inputs
	f.mu.Unlock()
	for i := range inputs {
		progress(i+1, len(inputs))
	}
	res, err := f.result("images")
	if err == nil {
		res.PageCount = len(inputs)
	}
	return res, err
}

func (f *fakeTransformer) PDFToImages(_ context.Context, src *models.SourceFile, opts transform.PageOptions, _ transform.ProgressFunc) (*models.TransformResult, error) {
	f.mu.Lock()
	f.pages = opts.Pages
	f.mu.Unlock()
	res, err := f.result(src.Name)
	if err == nil {
		res.PageCount = len(opts.Pages)
	}
	return res, err
}

func (f *fakeTransformer) Compress(_ context.Context, src *models.SourceFile, _ models.CompressionSettings, _ transform.ProgressFunc) (*models.TransformResult, error) {
	f.mu.Lock()
	f.compress++
	f.mu.Unlock()
	return f.result(src.Name)
}

func (f *fakeTransformer) WordToPDF(_ context.Context, src *models.SourceFile, _ transform.ProgressFunc) (*models.TransformResult, error) {
	return f.result(src.Name)
}

func (f *fakeTransformer) PDFToWord(_ context.Context, src *models.SourceFile, _ transform.ProgressFunc) (*models.TransformResult, error) {
	return f.result(src.Name)
}

// fakePreviewer returns one artifact per image and pages artifacts per PDF.
type fakePreviewer struct {
	pages int
	fail  string
}

func (p fakePreviewer) Generate(_ context.Context, src *models.SourceFile, progress transform.ProgressFunc) ([]*models.PreviewArtifact, error) {
	if src.Name == p.fail {
		return nil, errors.New("page 1 would not render")
	}
	n := 1
	if validate.LooksLikePDF(src.Data) {
		n = p.pages
	}
	var out []*models.PreviewArtifact
	for i := 1; i <= n; i++ {
		out = append(out, models.NewPreviewArtifact(fmt.Sprintf("%s-%d", src.ID, i), src.ID, i, "image/jpeg", "data:image/jpeg;base64,AAAA"))
		if progress != nil {
			progress(i, n)
		}
	}
	return out, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func input(name, mime string, data []byte) Input {
	return Input{Name: name, MIMEType: mime, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func newOrchestrator(t *testing.T, tool validate.Tool, tr Transformer, opts ...func(*Config)) *Orchestrator {
	t.Helper()
	cfg := Config{Tool: tool, Transformer: tr, Previewer: fakePreviewer{pages: 3}}
	for _, opt := range opts {
		opt(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func TestRejectedFilesStayInUpload(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{})

	notices, err := o.Add(context.Background(), []Input{
		input("doc.pdf", "application/pdf", []byte("%PDF-1.7")),
		{Name: "huge.png", MIMEType: "image/png", Size: 11 * validate.MB, Body: strings.NewReader("x")},
		{Name: "empty.png", MIMEType: "image/png", Size: 0, Body: strings.NewReader("")},
	})
	require.NoError(t, err)
	require.Len(t, notices, 3)
	for _, n := range notices {
		assert.ErrorIs(t, n, ErrValidation)
		assert.Equal(t, "validation", n.Notice().Stage)
	}
	assert.Equal(t, PhaseUpload, o.State().Phase())
	assert.False(t, o.CanConvert())

	_, err = o.Convert(context.Background())
	assert.ErrorIs(t, err, ErrNothingToConvert)
}

func TestBatchIsFailSoft(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{})
	img := pngBytes(t)

	notices, err := o.Add(context.Background(), []Input{
		input("a.png", "image/png", img),
		input("notes.txt", "text/plain", []byte("hello")),
		input("b.png", "image/png", img),
	})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "notes.txt", notices[0].FileName)

	s, ok := o.State().(Preview)
	require.True(t, ok)
	require.Len(t, s.Items, 2)
	assert.Equal(t, "a.png", s.Items[0].Source.Name)
	assert.Len(t, s.Items[0].Previews, 1)
}

func TestPreviewFailureIsReadError(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{}, func(c *Config) {
		c.Previewer = fakePreviewer{fail: "bad.png"}
	})
	notices, err := o.Add(context.Background(), []Input{input("bad.png", "image/png", pngBytes(t))})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.ErrorIs(t, notices[0], ErrRead)
	assert.Equal(t, PhaseUpload, o.State().Phase())
}

func TestImagesToPDFKeepsOrderAndRotation(t *testing.T) {
	tr := &fakeTransformer{}
	o := newOrchestrator(t, validate.JPGToPDF, tr)
	img := pngBytes(t)

	_, err := o.Add(context.Background(), []Input{input("1.png", "image/png", img), input("2.png", "image/png", img)})
	require.NoError(t, err)
	_, err = o.Add(context.Background(), []Input{input("3.png", "image/png", img)})
	require.NoError(t, err)

	require.NoError(t, o.Move(2, 0))
	require.NoError(t, o.RotateRight(1))
	require.NoError(t, o.RotateLeft(2))

	var phases []Phase
	o.onChange = func(s State) { phases = append(phases, s.Phase()) }

	final, err := o.Convert(context.Background())
	require.NoError(t, err)
	c, ok := final.(Complete)
	require.True(t, ok)
	assert.Equal(t, 3, c.Result().PageCount)

	var names []string
	var rotations []int
	for _, in := range tr.images {
		names = append(names, in.Name)
		rotations = append(rotations, in.Rotation)
	}
	assert.Equal(t, []string{"3.png", "1.png", "2.png"}, names)
	assert.Equal(t, []int{0, 90, 270}, rotations)
	assert.Equal(t, PhaseProcessing, phases[0])
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
}

func TestFourRotationsRestoreOrientation(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{})
	_, err := o.Add(context.Background(), []Input{input("1.png", "image/png", pngBytes(t))})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, o.RotateRight(0))
	}
	assert.Equal(t, 0, o.State().(Preview).Items[0].Rotation)

	require.NoError(t, o.RotateLeft(0))
	assert.Equal(t, 270, o.State().(Preview).Items[0].Rotation)

	assert.Error(t, o.RotateLeft(5))
}

func TestRemoveLastItemReturnsToUpload(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{})
	_, err := o.Add(context.Background(), []Input{input("1.png", "image/png", pngBytes(t))})
	require.NoError(t, err)
	artifact := o.State().(Preview).Items[0].Previews[0]

	require.NoError(t, o.Remove(0))
	assert.Equal(t, PhaseUpload, o.State().Phase())
	assert.True(t, artifact.Released())
	assert.ErrorIs(t, o.Remove(0), ErrWrongPhase)
}

func TestPageSelection(t *testing.T) {
	tr := &fakeTransformer{}
	o := newOrchestrator(t, validate.PDFToJPG, tr)
	pdf := []byte("%PDF-1.7 three pages")

	notices, err := o.Add(context.Background(), []Input{
		input("doc.pdf", "application/pdf", pdf),
		input("second.pdf", "application/pdf", pdf),
	})
	require.NoError(t, err)
	require.Len(t, notices, 1, "only one PDF is taken")

	sel, ok := o.State().(Selection)
	require.True(t, ok)
	require.Len(t, sel.Pages, 3)
	assert.Equal(t, []int{1, 2, 3}, sel.SelectedPages())

	require.NoError(t, o.SelectNone())
	assert.False(t, o.CanConvert())
	_, err = o.Convert(context.Background())
	assert.ErrorIs(t, err, transform.ErrNoPagesSelected)
	assert.Equal(t, PhaseSelection, o.State().Phase())

	require.NoError(t, o.TogglePage(2))
	require.NoError(t, o.TogglePage(3))
	assert.True(t, o.CanConvert())
	assert.Error(t, o.TogglePage(4))

	final, err := o.Convert(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, tr.pages)
	assert.Equal(t, 2, final.(Complete).Result().PageCount)

	assert.ErrorIs(t, o.SelectAll(), ErrWrongPhase)
}

func TestSelectPages(t *testing.T) {
	o := newOrchestrator(t, validate.PDFToJPG, &fakeTransformer{})
	_, err := o.Add(context.Background(), []Input{input("doc.pdf", "application/pdf", []byte("%PDF-1.7"))})
	require.NoError(t, err)

	require.NoError(t, o.SelectPages([]int{3, 1}))
	assert.Equal(t, []int{1, 3}, o.State().(Selection).SelectedPages())
	assert.ErrorIs(t, o.SelectPages([]int{9}), transform.ErrPageOutOfRange)
	require.NoError(t, o.SelectAll())
	assert.Equal(t, []int{1, 2, 3}, o.State().(Selection).SelectedPages())
}

func TestBatchFailureKeepsSuccessfulResults(t *testing.T) {
	tr := &fakeTransformer{fail: map[string]bool{"b.docx": true}}
	o := newOrchestrator(t, validate.WordToPDF, tr)
	docx := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	_, err := o.Add(context.Background(), []Input{
		input("a.docx", docx, []byte("alpha")),
		input("b.docx", docx, []byte("beta")),
		input("c.docx", docx, []byte("gamma")),
	})
	require.NoError(t, err)
	previews := o.State().(Preview).Items[0].Previews

	final, err := o.Convert(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransform)

	up, ok := final.(Upload)
	require.True(t, ok)
	require.Len(t, up.Kept, 2)
	assert.Equal(t, "a.docx.out", up.Kept[0].Name)
	assert.Equal(t, "c.docx.out", up.Kept[1].Name)
	assert.True(t, previews[0].Released())

	notices := o.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "b.docx", notices[0].FileName)

	res, err := o.Result("res-c.docx")
	require.NoError(t, err)
	assert.Equal(t, "c.docx.out", res.Name)
}

func TestCompressionAppendsOneHistoryRecordPerFile(t *testing.T) {
	tr := &fakeTransformer{}
	store := history.NewMemoryStore()
	o := newOrchestrator(t, validate.CompressPDF, tr, func(c *Config) { c.History = store })

	_, err := o.Add(context.Background(), []Input{input("a.pdf", "application/pdf", []byte("%PDF-1.7 aaaa"))})
	require.NoError(t, err)
	_, err = o.Convert(context.Background())
	require.NoError(t, err)

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.pdf", entries[0].FileName)
}

func TestBusyGuardAndStartOver(t *testing.T) {
	tr := &fakeTransformer{started: make(chan struct{}), release: make(chan struct{})}
	o := newOrchestrator(t, validate.JPGToPDF, tr)
	_, err := o.Add(context.Background(), []Input{input("1.png", "image/png", pngBytes(t))})
	require.NoError(t, err)
	artifact := o.State().(Preview).Items[0].Previews[0]

	done := make(chan error, 1)
	go func() {
		_, err := o.Convert(context.Background())
		done <- err
	}()
	<-tr.started

	assert.True(t, o.Busy())
	assert.False(t, o.CanConvert())
	_, err = o.Add(context.Background(), []Input{input("2.png", "image/png", pngBytes(t))})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = o.Convert(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, o.RotateLeft(0), ErrBusy)

	o.StartOver()
	assert.True(t, artifact.Released())
	assert.Equal(t, PhaseUpload, o.State().Phase())
	assert.False(t, o.Busy())

	close(tr.release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStartedOver)
	case <-time.After(5 * time.Second):
		t.Fatal("convert did not return")
	}
	// The abandoned run must not resurrect its result.
	assert.Equal(t, PhaseUpload, o.State().Phase())
	_, err = o.Result("")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestExportActionsKeepResult(t *testing.T) {
	o := newOrchestrator(t, validate.PDFToWord, &fakeTransformer{})
	_, err := o.Add(context.Background(), []Input{input("a.pdf", "application/pdf", []byte("%PDF-1.7"))})
	require.NoError(t, err)
	_, err = o.Convert(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		require.NoError(t, o.Download(rec, ""))
		assert.Equal(t, "%PDF-out a.pdf", rec.Body.String())
	}

	err = o.Download(httptest.NewRecorder(), "missing")
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, ErrResultNotFound)

	_, err = o.Share(context.Background(), export.NewSharer(export.LinkStrategy{}), "")
	assert.ErrorIs(t, err, ErrExport)
	out, err := o.Share(context.Background(), export.NewSharer(export.LinkStrategy{}, export.MessageStrategy{}), "")
	require.NoError(t, err)
	assert.Equal(t, export.MethodMessage, out.Method)

	var page bytes.Buffer
	require.NoError(t, o.Print(&page, "", export.PrintOptions{}))
	assert.Contains(t, page.String(), "a.pdf.out")

	assert.Equal(t, PhaseComplete, o.State().Phase())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Tool: validate.JPGToPDF})
	assert.Error(t, err)
	_, err = New(Config{Tool: "merge-pdf", Transformer: &fakeTransformer{}})
	assert.Error(t, err)
	_, err = New(Config{Tool: validate.CompressPDF, Transformer: &fakeTransformer{}, Settings: models.CompressionSettings{ImageQuality: 500}})
	assert.Error(t, err)

	o, err := New(Config{Tool: validate.CompressPDF, Transformer: &fakeTransformer{}})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPreset.Settings, o.Settings())
	assert.Error(t, o.SetSettings(models.CompressionSettings{}))
	require.NoError(t, o.SetSettings(models.PresetSmallSize.Settings))
	assert.Equal(t, models.PresetSmallSize.Settings, o.Settings())
}

func TestProcessingPercent(t *testing.T) {
	assert.Equal(t, 0, Processing{}.Percent())
	assert.Equal(t, 50, Processing{Done: 1, Total: 2}.Percent())
	assert.Equal(t, 100, Processing{Done: 3, Total: 3}.Percent())
}

func TestStageErrorMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newStageError(KindRead, "a.pdf", filereader.ErrAborted))
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, filereader.ErrAborted)
	assert.NotErrorIs(t, err, ErrTransform)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "a.pdf", se.FileName)
	assert.Equal(t, "read error for a.pdf: file reading aborted", se.Error())
}

func TestReadSizeIsValidatedAgain(t *testing.T) {
	o := newOrchestrator(t, validate.CompressPDF, &fakeTransformer{})

	notices, err := o.Add(context.Background(), []Input{
		{Name: "empty.pdf", MIMEType: "application/pdf", Size: 1024, Body: strings.NewReader("")},
	})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.ErrorIs(t, notices[0], ErrValidation)
	assert.ErrorIs(t, notices[0], validate.ErrEmpty)
	assert.Equal(t, "empty.pdf", notices[0].FileName)
	assert.Equal(t, PhaseUpload, o.State().Phase())
	assert.False(t, o.CanConvert())
}

func TestUndecodableImageRejectedWithoutPreviewer(t *testing.T) {
	tr := &fakeTransformer{}
	o := newOrchestrator(t, validate.JPGToPDF, tr, func(c *Config) { c.Previewer = nil })
	img := pngBytes(t)

	notices, err := o.Add(context.Background(), []Input{
		input("a.png", "image/png", img),
		input("bad.png", "image/png", []byte("definitely not a png")),
		input("c.png", "image/png", img),
	})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "bad.png", notices[0].FileName)
	assert.ErrorIs(t, notices[0], ErrRead)

	s, ok := o.State().(Preview)
	require.True(t, ok)
	require.Len(t, s.Items, 2)

	_, err = o.Convert(context.Background())
	require.NoError(t, err)
	var names []string
	for _, in := range tr.images {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{"a.png", "c.png"}, names)
}

func TestBatchFileName(t *testing.T) {
	inputs := []transform.ImageInput{{Name: "a.png"}, {Name: "b.png"}}

	err := fmt.Errorf("assemble: %w", &transform.ImageError{Index: 1, Name: "b.png", Err: errors.New("bad pixels")})
	assert.Equal(t, "b.png", batchFileName(inputs, err))
	assert.Equal(t, "a.png, b.png", batchFileName(inputs, errors.New("failed to assemble PDF")))
}

func TestImagesToPDFFailureNamesBatch(t *testing.T) {
	o := newOrchestrator(t, validate.JPGToPDF, &fakeTransformer{fail: map[string]bool{"images": true}})
	img := pngBytes(t)
	_, err := o.Add(context.Background(), []Input{input("1.png", "image/png", img), input("2.png", "image/png", img)})
	require.NoError(t, err)

	_, err = o.Convert(context.Background())
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "1.png, 2.png", se.FileName)
	assert.Equal(t, "1.png, 2.png", se.Notice().FileName)
}
