// Package validate checks candidate files against the per-tool allow-lists and size limits.
package validate

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Tool identifies one of the conversion tools.
type Tool string

const (
	JPGToPDF    Tool = "jpg-to-pdf"
	PDFToJPG    Tool = "pdf-to-jpg"
	WordToPDF   Tool = "word-to-pdf"
	PDFToWord   Tool = "pdf-to-word"
	CompressPDF Tool = "compress-pdf"
)

// Tools lists every tool in navigation order.
var Tools = []Tool{JPGToPDF, PDFToJPG, WordToPDF, PDFToWord, CompressPDF}

// Route is the path the tool is served under.
func (t Tool) Route() string { return "/" + string(t) }

// ParseTool resolves a route slug (with or without the leading slash).
func ParseTool(s string) (Tool, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "/")
	for _, t := range Tools {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

const (
	MB = 1024 * 1024

	MaxImageSize    = 10 * MB
	MaxDocumentSize = 50 * MB
)

// Rule is the acceptance rule for one tool.
type Rule struct {
	MIMETypes  map[string]bool
	Extensions map[string]bool
	MaxSize    int64
	Kind       string // human label used in messages
}

var (
	imageRule = Rule{
		MIMETypes:  set("image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff"),
		Extensions: set(".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"),
		MaxSize:    MaxImageSize,
		Kind:       "image",
	}
	pdfRule = Rule{
		MIMETypes:  set("application/pdf"),
		Extensions: set(".pdf"),
		MaxSize:    MaxDocumentSize,
		Kind:       "PDF",
	}
	wordRule = Rule{
		MIMETypes: set(
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/rtf",
			"application/vnd.oasis.opendocument.text",
		),
		Extensions: set(".doc", ".docx", ".rtf", ".odt"),
		MaxSize:    MaxDocumentSize,
		Kind:       "Word document",
	}
)

// RuleFor returns the acceptance rule of a tool.
func RuleFor(t Tool) Rule {
	switch t {
	case JPGToPDF:
		return imageRule
	case WordToPDF:
		return wordRule
	default:
		return pdfRule
	}
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("file is empty")
)

// Candidate is the metadata of a file offered for validation.
type Candidate struct {
	Name     string
	MIMEType string
	Size     int64
	// Head holds the first bytes of the file when available, used to sniff PDFs.
	Head []byte
}

// Error is a validation failure for one file. It may carry several violations.
type Error struct {
	FileName   string
	Violations []error
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("%s: %s", e.FileName, strings.Join(msgs, "; "))
}

// Unwrap exposes the violations to errors.Is.
func (e *Error) Unwrap() []error { return e.Violations }

// Validate checks one candidate and returns nil or an *Error listing all violations.
func Validate(t Tool, c Candidate) error {
	rule := RuleFor(t)
	var violations []error

	if !rule.accepts(c) {
		violations = append(violations, fmt.Errorf("%w: please upload a %s (%s)", ErrUnsupportedType, rule.Kind, strings.Join(rule.extensionList(), ", ")))
	}
	if c.Size > rule.MaxSize {
		violations = append(violations, fmt.Errorf("%w: maximum size is %s", ErrTooLarge, models.FormatFileSize(rule.MaxSize)))
	}
	if c.Size <= 0 {
		violations = append(violations, ErrEmpty)
	}

	if len(violations) == 0 {
		return nil
	}
	return &Error{FileName: c.Name, Violations: violations}
}

// Partition splits a batch into accepted candidates and exactly one error per rejected file.
// Rejections never abort the rest of the batch.
func Partition(t Tool, batch []Candidate) (accepted []Candidate, rejected []error) {
	for _, c := range batch {
		if err := Validate(t, c); err != nil {
			rejected = append(rejected, err)
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, rejected
}

// LooksLikePDF checks the %PDF- magic bytes.
func LooksLikePDF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("%PDF-"))
}

func (r Rule) accepts(c Candidate) bool {
	mime := strings.ToLower(strings.TrimSpace(c.MIMEType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if r.MIMETypes[mime] {
		return true
	}
	if r.Extensions[strings.ToLower(filepath.Ext(c.Name))] {
		return true
	}
	// Browsers and curl often send an empty or generic type for PDFs.
	if r.Kind == pdfRule.Kind && (mime == "" || mime == "application/octet-stream") {
		return LooksLikePDF(c.Head)
	}
	return false
}

func (r Rule) extensionList() []string {
	var out []string
	for _, ext := range orderedExtensions {
		if r.Extensions[ext] {
			out = append(out, ext)
		}
	}
	return out
}

var orderedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".pdf", ".doc", ".docx", ".rtf", ".odt"}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
