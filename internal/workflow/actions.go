package workflow

import (
	"context"
	"io"
	"net/http"

	"github.com/Lllllllleong/pdftools/internal/export"
	"github.com/Lllllllleong/pdftools/internal/models"
)

// Result returns the result with the given ID, or the first result when id is empty.
// Results kept after a failed batch are included.
func (o *Orchestrator) Result(id string) (*models.TransformResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var results []*models.TransformResult
	switch s := o.state.(type) {
	case Complete:
		results = s.results
	case Upload:
		results = s.Kept
	}
	for _, r := range results {
		if id == "" || r.ID == id {
			return r, nil
		}
	}
	return nil, ErrResultNotFound
}

// Download writes a result as an attachment. The result stays available for retries.
func (o *Orchestrator) Download(w http.ResponseWriter, id string) error {
	res, err := o.Result(id)
	if err != nil {
		return newStageError(KindExport, "", err)
	}
	if err := export.Download(w, res); err != nil {
		o.logCtx.Error("Download failed", "result", res.Name, "error", err)
		return newStageError(KindExport, res.Name, err)
	}
	return nil
}

// Share runs the share chain on a result.
func (o *Orchestrator) Share(ctx context.Context, sharer *export.Sharer, id string) (export.Outcome, error) {
	res, err := o.Result(id)
	if err != nil {
		return export.Outcome{}, newStageError(KindExport, "", err)
	}
	out, err := sharer.Share(ctx, res)
	if err != nil {
		o.logCtx.Error("Share failed", "result", res.Name, "error", err)
		return export.Outcome{}, newStageError(KindExport, res.Name, err)
	}
	return out, nil
}

// Print renders the print page for a result.
func (o *Orchestrator) Print(w io.Writer, id string, opts export.PrintOptions) error {
	res, err := o.Result(id)
	if err != nil {
		return newStageError(KindExport, "", err)
	}
	if err := export.RenderPrintPage(w, res, opts); err != nil {
		o.logCtx.Error("Print failed", "result", res.Name, "error", err)
		return newStageError(KindExport, res.Name, err)
	}
	return nil
}
