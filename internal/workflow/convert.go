package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
)

// SetSettings changes the compression settings used by the next Convert.
func (o *Orchestrator) SetSettings(settings models.CompressionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = settings
	return nil
}

// Settings returns the current compression settings.
func (o *Orchestrator) Settings() models.CompressionSettings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// CanConvert reports whether Convert would start.
func (o *Orchestrator) CanConvert() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	switch s := o.state.(type) {
	case Selection:
		return s.CanConvert()
	case Preview:
		return len(s.Items) > 0
	}
	return false
}

// job is the immutable input of one Convert run.
type job struct {
	items    []Item
	pages    []int
	source   *models.SourceFile
	settings models.CompressionSettings
}

// Convert runs the tool's transform over the loaded input. Batch tools process files one
// at a time; a failed file is reported and the run returns to Upload keeping the results
// that succeeded. Single-output tools discard everything on failure.
func (o *Orchestrator) Convert(ctx context.Context) (State, error) {
	gen, err := o.begin()
	if err != nil {
		return nil, err
	}
	defer o.end(gen)

	o.mu.Lock()
	j, err := o.jobLocked()
	o.mu.Unlock()
	if err != nil {
		return o.State(), err
	}

	total := len(j.items)
	if j.source != nil {
		total = len(j.pages)
	}
	o.commit(gen, func() State { return Processing{Done: 0, Total: total} })
	o.logCtx.Info("Conversion started", "files", len(j.items), "pages", len(j.pages))

	var (
		results []*models.TransformResult
		notices []*StageError
	)
	switch o.tool {
	case validate.JPGToPDF:
		res, serr := o.imagesToPDF(ctx, gen, j)
		if serr != nil {
			notices = append(notices, serr)
		} else {
			results = append(results, res)
		}
	case validate.PDFToJPG:
		res, err := o.transformer.PDFToImages(ctx, j.source, transform.PageOptions{Pages: j.pages}, o.progress(gen))
		if err != nil {
			notices = append(notices, newStageError(KindTransform, j.source.Name, err))
		} else {
			results = append(results, res)
		}
	default:
		results, notices = o.convertBatch(ctx, gen, j)
	}

	for _, n := range notices {
		o.logCtx.Error("Conversion failed", "fileName", n.FileName, "error", n.Err)
	}

	var final State
	committed := o.commit(gen, func() State {
		o.notices = notices
		if len(notices) == 0 {
			if c, ok := newComplete(results); ok {
				final = c
				return final
			}
		}
		// Failure path: inputs are dropped, finished results are kept.
		for _, it := range o.items {
			releaseAll(it.Previews)
		}
		o.releaseSelectionLocked()
		o.items = nil
		o.selection = nil
		final = Upload{Kept: results}
		return final
	})
	if !committed {
		return o.State(), ErrStartedOver
	}
	if len(notices) > 0 {
		return final, notices[0]
	}
	o.logCtx.Info("Conversion complete", "results", len(results))
	return final, nil
}

func (o *Orchestrator) jobLocked() (job, error) {
	j := job{settings: o.settings}
	switch s := o.state.(type) {
	case Selection:
		if !s.CanConvert() {
			return j, transform.ErrNoPagesSelected
		}
		j.source = s.Source
		j.pages = s.SelectedPages()
		return j, nil
	case Preview:
		if len(s.Items) == 0 {
			return j, ErrNothingToConvert
		}
		j.items = s.Items
		return j, nil
	default:
		return j, ErrNothingToConvert
	}
}

func (o *Orchestrator) progress(gen uint64) transform.ProgressFunc {
	return func(done, total int) {
		o.commit(gen, func() State { return Processing{Done: done, Total: total} })
	}
}

func (o *Orchestrator) imagesToPDF(ctx context.Context, gen uint64, j job) (*models.TransformResult, *StageError) {
	inputs := make([]transform.ImageInput, 0, len(j.items))
	for _, it := range j.items {
		inputs = append(inputs, transform.ImageInput{Name: it.Source.Name, Data: it.Source.Data, Rotation: it.Rotation})
	}
	res, err := o.transformer.ImagesToPDF(ctx, inputs, o.progress(gen))
	if err != nil {
		return nil, newStageError(KindTransform, batchFileName(inputs, err), err)
	}
	return res, nil
}

// batchFileName names the image that failed, or the whole batch when the failure is not
// tied to one image.
func batchFileName(inputs []transform.ImageInput, err error) string {
	var imgErr *transform.ImageError
	if errors.As(err, &imgErr) {
		return imgErr.Name
	}
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		names = append(names, in.Name)
	}
	return strings.Join(names, ", ")
}

// convertBatch handles the one-result-per-file tools.
func (o *Orchestrator) convertBatch(ctx context.Context, gen uint64, j job) ([]*models.TransformResult, []*StageError) {
	var (
		results []*models.TransformResult
		notices []*StageError
	)
	for i, it := range j.items {
		if err := ctx.Err(); err != nil {
			notices = append(notices, newStageError(KindTransform, it.Source.Name, err))
			break
		}
		res, err := o.convertOne(ctx, it.Source, j.settings)
		if err != nil {
			notices = append(notices, newStageError(KindTransform, it.Source.Name, err))
		} else {
			results = append(results, res)
			if o.tool == validate.CompressPDF {
				o.recordHistory(ctx, gen, it.Source.Name, res)
			}
		}
		o.commit(gen, func() State { return Processing{Done: i + 1, Total: len(j.items)} })
	}
	return results, notices
}

func (o *Orchestrator) convertOne(ctx context.Context, src *models.SourceFile, settings models.CompressionSettings) (*models.TransformResult, error) {
	switch o.tool {
	case validate.CompressPDF:
		return o.transformer.Compress(ctx, src, settings, nil)
	case validate.WordToPDF:
		return o.transformer.WordToPDF(ctx, src, nil)
	case validate.PDFToWord:
		return o.transformer.PDFToWord(ctx, src, nil)
	}
	return nil, fmt.Errorf("tool %s has no batch conversion", o.tool)
}

// recordHistory appends exactly one record for a successful compression. A history
// failure is logged and does not affect the result.
func (o *Orchestrator) recordHistory(ctx context.Context, gen uint64, sourceName string, res *models.TransformResult) {
	if o.history == nil {
		return
	}
	o.mu.Lock()
	stale := gen != o.generation
	o.mu.Unlock()
	if stale {
		return
	}
	rec := history.NewRecord(sourceName, res.OriginalSize, res.Size(), o.now())
	if err := o.history.Append(ctx, rec); err != nil {
		o.logCtx.Warn("Failed to record compression history", "fileName", sourceName, "error", err)
	}
}
