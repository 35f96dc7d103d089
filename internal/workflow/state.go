package workflow

import (
	"github.com/Lllllllleong/pdftools/internal/models"
)

// Phase names a workflow state.
type Phase string

const (
	PhaseUpload     Phase = "upload"
	PhaseProcessing Phase = "processing"
	PhaseSelection  Phase = "selection"
	PhasePreview    Phase = "preview"
	PhaseComplete   Phase = "complete"
)

// State is one of Upload, Processing, Selection, Preview or Complete.
type State interface {
	Phase() Phase
	isState()
}

// Upload waits for files. Kept holds results that succeeded in a batch that
// otherwise failed.
type Upload struct {
	Kept []*models.TransformResult
}

// Processing reports progress of the running operation.
type Processing struct {
	Done  int
	Total int
}

// Percent is Done/Total rounded down, 0 when Total is unknown.
func (p Processing) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Done * 100 / p.Total
}

// PageChoice is one page offered for PDF to image conversion.
type PageChoice struct {
	Page     int
	Preview  *models.PreviewArtifact
	Selected bool
}

// Selection lets the user pick pages.
type Selection struct {
	Source *models.SourceFile
	Pages  []PageChoice
}

// SelectedPages lists selected 1-based page numbers in order.
func (s Selection) SelectedPages() []int {
	var out []int
	for _, p := range s.Pages {
		if p.Selected {
			out = append(out, p.Page)
		}
	}
	return out
}

// CanConvert is false when no page is selected.
func (s Selection) CanConvert() bool {
	for _, p := range s.Pages {
		if p.Selected {
			return true
		}
	}
	return false
}

// Item is one loaded input file.
type Item struct {
	Source   *models.SourceFile
	Rotation int
	Previews []*models.PreviewArtifact
	// PageCount is set for PDFs offered for page selection.
	PageCount int
}

// Preview lists loaded files, in conversion order.
type Preview struct {
	Items []Item
}

// Complete holds at least one result. Build it with newComplete.
type Complete struct {
	results []*models.TransformResult
}

func newComplete(results []*models.TransformResult) (Complete, bool) {
	if len(results) == 0 {
		return Complete{}, false
	}
	return Complete{results: append([]*models.TransformResult(nil), results...)}, true
}

// Result is the first result of the run.
func (c Complete) Result() *models.TransformResult { return c.results[0] }

// Results lists every result of the run in input order.
func (c Complete) Results() []*models.TransformResult {
	return append([]*models.TransformResult(nil), c.results...)
}

func (Upload) Phase() Phase     { return PhaseUpload }
func (Processing) Phase() Phase { return PhaseProcessing }
func (Selection) Phase() Phase  { return PhaseSelection }
func (Preview) Phase() Phase    { return PhasePreview }
func (Complete) Phase() Phase   { return PhaseComplete }

func (Upload) isState()     {}
func (Processing) isState() {}
func (Selection) isState()  {}
func (Preview) isState()    {}
func (Complete) isState()   {}
