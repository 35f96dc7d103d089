package workflow

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Kind classifies where a failure happened. None of them is fatal to the workflow.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindRead
	KindTransform
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRead:
		return "read"
	case KindTransform:
		return "transform"
	case KindExport:
		return "export"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any StageError of the same kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrRead       = errors.New("read failed")
	ErrTransform  = errors.New("transform failed")
	ErrExport     = errors.New("export failed")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindRead:       ErrRead,
	KindTransform:  ErrTransform,
	KindExport:     ErrExport,
}

var (
	// ErrBusy is returned when an operation is attempted while another one runs.
	ErrBusy = errors.New("workflow is busy")
	// ErrNothingToConvert is returned by Convert when no input is loaded.
	ErrNothingToConvert = errors.New("nothing to convert")
	// ErrStartedOver is returned by an operation whose workflow was reset while it ran.
	ErrStartedOver = errors.New("workflow was started over")
	// ErrWrongPhase is returned by edits that do not apply to the current state.
	ErrWrongPhase = errors.New("operation not allowed in current state")
	// ErrResultNotFound is returned by export actions for an unknown result ID.
	ErrResultNotFound = errors.New("result not found")
)

// StageError is a per-file failure.
type StageError struct {
	Kind     Kind
	FileName string
	Err      error
}

func newStageError(kind Kind, fileName string, err error) *StageError {
	return &StageError{Kind: kind, FileName: fileName, Err: err}
}

func (e *StageError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.FileName, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches the kind sentinel, e.g. errors.Is(err, ErrValidation).
func (e *StageError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Notice is the user-facing form of the error.
func (e *StageError) Notice() models.FileNotice {
	return models.FileNotice{FileName: e.FileName, Stage: e.Kind.String(), Message: e.Err.Error()}
}
