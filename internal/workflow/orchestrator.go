// Package workflow drives one tool through upload, processing, selection or preview, and
// completion. Work inside one Orchestrator is strictly sequential.
package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
)

// Transformer is the conversion surface used by the orchestrator. *transform.Engine
// implements it.
type Transformer interface {
	ImagesToPDF(ctx context.Context, inputs []transform.ImageInput, progress transform.ProgressFunc) (*models.TransformResult, error)
	PDFToImages(ctx context.Context, src *models.SourceFile, opts transform.PageOptions, progress transform.ProgressFunc) (*models.TransformResult, error)
	Compress(ctx context.Context, src *models.SourceFile, settings models.CompressionSettings, progress transform.ProgressFunc) (*models.TransformResult, error)
	WordToPDF(ctx context.Context, src *models.SourceFile, progress transform.ProgressFunc) (*models.TransformResult, error)
	PDFToWord(ctx context.Context, src *models.SourceFile, progress transform.ProgressFunc) (*models.TransformResult, error)
}

// Previewer renders display artifacts. *preview.Generator implements it.
type Previewer interface {
	Generate(ctx context.Context, src *models.SourceFile, progress transform.ProgressFunc) ([]*models.PreviewArtifact, error)
}

// Input is a file offered to Add.
type Input struct {
	Name     string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// Config wires an Orchestrator.
type Config struct {
	Tool        validate.Tool
	Transformer Transformer
	// Previewer is optional; without it no previews are produced and page choices
	// carry no thumbnails.
	Previewer Previewer
	// History receives one record per successful compression. Optional.
	History  history.Store
	Settings models.CompressionSettings
	// OnChange is called after every state change, outside the lock.
	OnChange func(State)
	Now      func() time.Time
}

// Orchestrator is the per-tool state machine.
type Orchestrator struct {
	tool        validate.Tool
	transformer Transformer
	previewer   Previewer
	history     history.Store
	onChange    func(State)
	now         func() time.Time
	logCtx      *slog.Logger

	mu         sync.Mutex
	busy       bool
	generation uint64
	settings   models.CompressionSettings
	state      State
	items      []Item
	selection  *Selection
	notices    []*StageError
}

// New creates an Orchestrator in the Upload state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transformer == nil {
		return nil, fmt.Errorf("workflow: a transformer is required")
	}
	if _, err := validate.ParseTool(string(cfg.Tool)); err != nil {
		return nil, err
	}
	settings := cfg.Settings
	if settings == (models.CompressionSettings{}) {
		settings = models.DefaultPreset.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		tool:        cfg.Tool,
		transformer: cfg.Transformer,
		previewer:   cfg.Previewer,
		history:     cfg.History,
		onChange:    cfg.OnChange,
		now:         now,
		logCtx:      slog.With("tool", string(cfg.Tool)),
		settings:    settings,
		state:       Upload{},
	}, nil
}

// Tool returns the tool this orchestrator drives.
func (o *Orchestrator) Tool() validate.Tool { return o.tool }

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Notices returns the per-file errors of the last Add or Convert.
func (o *Orchestrator) Notices() []*StageError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*StageError(nil), o.notices...)
}

// Busy reports whether an Add or Convert is running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// begin claims the orchestrator for one operation.
func (o *Orchestrator) begin() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return 0, ErrBusy
	}
	o.busy = true
	return o.generation, nil
}

// end releases the claim unless the workflow was started over in between.
func (o *Orchestrator) end(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.generation {
		o.busy = false
	}
}

// commit applies fn under the lock if gen is still current, then notifies.
func (o *Orchestrator) commit(gen uint64, fn func() State) bool {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return false
	}
	s := fn()
	o.state = s
	o.mu.Unlock()
	o.notify(s)
	return true
}

func (o *Orchestrator) notify(s State) {
	if o.onChange != nil {
		o.onChange(s)
	}
}

// StartOver releases every preview and result and returns to Upload. An operation
// still running is abandoned; its output is discarded when it finishes.
func (o *Orchestrator) StartOver() {
	o.mu.Lock()
	o.generation++
	o.busy = false
	o.resetLocked()
	s := o.state
	o.mu.Unlock()
	o.logCtx.Info("Workflow started over")
	o.notify(s)
}

func (o *Orchestrator) resetLocked() {
	for _, it := range o.items {
		releaseAll(it.Previews)
	}
	o.releaseSelectionLocked()
	o.items = nil
	o.selection = nil
	o.notices = nil
	o.state = Upload{}
}

func (o *Orchestrator) releaseSelectionLocked() {
	if o.selection == nil {
		return
	}
	for _, p := range o.selection.Pages {
		if p.Preview != nil {
			p.Preview.Release()
		}
	}
}

func releaseAll(artifacts []*models.PreviewArtifact) {
	for _, a := range artifacts {
		a.Release()
	}
}

// Add validates, reads and previews each input in order. Rejected files yield exactly
// one notice each and never stop the rest of the batch.
func (o *Orchestrator) Add(ctx context.Context, inputs []Input) ([]*StageError, error) {
	gen, err := o.begin()
	if err != nil {
		return nil, err
	}
	defer o.end(gen)

	o.mu.Lock()
	if o.state.Phase() == PhaseComplete || o.state.Phase() == PhaseUpload {
		// A new selection supersedes the previous run.
		o.resetLocked()
	}
	singleSource := o.tool == validate.PDFToJPG
	o.mu.Unlock()

	var (
		notices []*StageError
		loaded  []Item
	)
	for i, in := range inputs {
		if singleSource && len(loaded) == 1 {
			notices = append(notices, newStageError(KindValidation, in.Name, errors.New("only one PDF can be converted at a time")))
			continue
		}
		item, serr := o.load(ctx, in, func(done, total int) {
			o.commit(gen, func() State { return Processing{Done: done, Total: total} })
		})
		if serr != nil {
			o.logCtx.Warn("File rejected", "fileName", in.Name, "stage", serr.Kind.String(), "error", serr.Err)
			notices = append(notices, serr)
			continue
		}
		o.logCtx.Info("File loaded", "fileName", in.Name, "index", i, "size", item.Source.Size)
		loaded = append(loaded, item)
	}

	committed := o.commit(gen, func() State {
		o.notices = notices
		if singleSource && len(loaded) == 1 {
			o.releaseSelectionLocked()
			o.selection = newSelection(loaded[0])
			return o.selectionSnapshot()
		}
		if singleSource && o.selection != nil {
			return o.selectionSnapshot()
		}
		o.items = append(o.items, loaded...)
		if len(o.items) == 0 {
			return Upload{}
		}
		return o.previewSnapshot()
	})
	if !committed {
		for _, it := range loaded {
			releaseAll(it.Previews)
		}
		return notices, ErrStartedOver
	}
	return notices, nil
}

// newSelection offers every page, selected. Pages without a preview keep a nil Preview.
func newSelection(it Item) *Selection {
	sel := &Selection{Source: it.Source}
	for page := 1; page <= it.PageCount; page++ {
		choice := PageChoice{Page: page, Selected: true}
		if page <= len(it.Previews) {
			choice.Preview = it.Previews[page-1]
		}
		sel.Pages = append(sel.Pages, choice)
	}
	return sel
}

func (o *Orchestrator) load(ctx context.Context, in Input, progress transform.ProgressFunc) (Item, *StageError) {
	body := in.Body
	if body == nil {
		return Item{}, newStageError(KindRead, in.Name, errors.New("no file content"))
	}
	br := bufio.NewReader(body)
	head, _ := br.Peek(8)

	candidate := validate.Candidate{Name: in.Name, MIMEType: in.MIMEType, Size: in.Size, Head: head}
	if err := validate.Validate(o.tool, candidate); err != nil {
		return Item{}, newStageError(KindValidation, in.Name, err)
	}

	src, err := filereader.ReadAll(ctx, in.Name, in.MIMEType, br, validate.RuleFor(o.tool).MaxSize)
	if err != nil {
		return Item{}, newStageError(KindRead, in.Name, err)
	}
	// The declared size and type are client claims; check what was actually read.
	head = src.Data
	if len(head) > 8 {
		head = head[:8]
	}
	actual := validate.Candidate{Name: src.Name, MIMEType: src.MIMEType, Size: src.Size, Head: head}
	if err := validate.Validate(o.tool, actual); err != nil {
		return Item{}, newStageError(KindValidation, in.Name, err)
	}
	if o.tool == validate.JPGToPDF {
		if _, _, err := filereader.DecodeImage(src.Data); err != nil {
			return Item{}, newStageError(KindRead, in.Name, err)
		}
	}

	item := Item{Source: src}
	if o.wantsPreview() {
		previews, err := o.previewer.Generate(ctx, src, progress)
		if err != nil {
			return Item{}, newStageError(KindRead, in.Name, fmt.Errorf("failed to generate preview: %w", err))
		}
		item.Previews = previews
		item.PageCount = len(previews)
	} else if o.tool == validate.PDFToJPG {
		n, err := transform.PageCount(src.Data)
		if err != nil {
			return Item{}, newStageError(KindRead, in.Name, err)
		}
		item.PageCount = n
	}
	return item, nil
}

func (o *Orchestrator) wantsPreview() bool {
	if o.previewer == nil {
		return false
	}
	switch o.tool {
	case validate.JPGToPDF, validate.PDFToJPG, validate.WordToPDF:
		return true
	}
	return false
}

func (o *Orchestrator) previewSnapshot() Preview {
	items := make([]Item, len(o.items))
	for i, it := range o.items {
		it.Previews = append([]*models.PreviewArtifact(nil), it.Previews...)
		items[i] = it
	}
	return Preview{Items: items}
}

func (o *Orchestrator) selectionSnapshot() Selection {
	return Selection{
		Source: o.selection.Source,
		Pages:  append([]PageChoice(nil), o.selection.Pages...),
	}
}
