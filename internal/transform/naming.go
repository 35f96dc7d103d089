package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	pdfExtRegex  = regexp.MustCompile(`(?i)\.pdf$`)
	wordExtRegex = regexp.MustCompile(`(?i)\.(doc|docx|rtf|odt)$`)
)

// CompressedName is "<base>_processed_<unix ms>.pdf".
func CompressedName(original string, now time.Time) string {
	base := pdfExtRegex.ReplaceAllString(filepath.Base(original), "")
	return fmt.Sprintf("%s_processed_%d.pdf", base, now.UnixMilli())
}

// WordToPDFName swaps a word-processor extension for .pdf.
func WordToPDFName(original string) string {
	name := filepath.Base(original)
	if wordExtRegex.MatchString(name) {
		return wordExtRegex.ReplaceAllString(name, ".pdf")
	}
	return name + ".pdf"
}

// PDFToWordName swaps .pdf for .docx.
func PDFToWordName(original string) string {
	name := filepath.Base(original)
	if pdfExtRegex.MatchString(name) {
		return pdfExtRegex.ReplaceAllString(name, ".docx")
	}
	return name + ".docx"
}

// ExportName is a timestamp-suffixed export name, e.g. converted_1700000000000.pdf.
func ExportName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%d.%s", prefix, now.UnixMilli(), strings.TrimPrefix(ext, "."))
}

// PageImageName is the per-page file name inside a PDF->image archive.
func PageImageName(page int, ext string) string {
	return fmt.Sprintf("page_%d.%s", page, strings.TrimPrefix(ext, "."))
}

// TitleFromName strips directory and extension from a file name.
func TitleFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
