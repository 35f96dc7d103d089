package export

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/models"
)

// PrintOptions controls RenderPrintPage.
type PrintOptions struct {
	// SourceURL is loaded into the frame. Defaults to a data URL of the result.
	SourceURL string
	// Content, when set, is printed as text instead of framing the document.
	Content string
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Print {{.Name}}</title>
<style>
@page { margin: 1cm; size: A4; }
body { margin: 0; padding: 20px; font-family: Arial, sans-serif; }
.header { margin-bottom: 20px; border-bottom: 1px solid #eee; padding-bottom: 10px; }
.content { line-height: 1.6; font-size: 12pt; white-space: pre-wrap; word-wrap: break-word; }
iframe { width: 100%; height: 90vh; border: 0; }
@media print { body { padding: 0; } .no-print { display: none; } }
</style>
</head>
<body>
<div class="header no-print">
<h1 style="margin: 0; font-size: 16pt;">{{.Name}}</h1>
<button id="print" type="button">Print</button>
</div>
{{if .Content}}<div class="content">{{.Content}}</div>
{{else}}<iframe id="doc" src="{{.Source}}" title="{{.Name}}"></iframe>
{{end}}<script>
function doPrint() {
  try {
    var frame = document.getElementById("doc");
    if (frame && frame.contentWindow) { frame.contentWindow.focus(); frame.contentWindow.print(); }
    else { window.print(); }
  } catch (e) { window.print(); }
}
document.getElementById("print").addEventListener("click", doPrint);
window.addEventListener("load", function () { setTimeout(doPrint, 500); });
</script>
</body>
</html>
`))

// RenderPrintPage writes an HTML page that opens the print dialog on load, with a
// manual print button for when the automatic call is blocked.
func RenderPrintPage(w io.Writer, res *models.TransformResult, opts PrintOptions) error {
	if res == nil {
		return ErrNoResult
	}
	// Caller URLs go through the template's URL filter; the generated data URL is trusted.
	var src any = opts.SourceURL
	if opts.SourceURL == "" && opts.Content == "" {
		src = template.URL(filereader.DataURL(res.MIMEType, res.Data))
	}
	data := struct {
		Name    string
		Source  any
		Content string
	}{
		Name:    res.Name,
		Source:  src,
		Content: strings.TrimSpace(opts.Content),
	}
	if err := printTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render print page: %w", err)
	}
	return nil
}
