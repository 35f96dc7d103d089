package transform

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

	rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentFooter = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="800" w:right="800" w:bottom="800" w:left="800"/></w:sectPr></w:body></w:document>`
)

// DocxSection is a run of paragraphs. Sections after the first start on a new page.
type DocxSection struct {
	Paragraphs []string
}

// WriteDOCX writes a minimal WordprocessingML package holding the given sections.
func WriteDOCX(w io.Writer, sections []DocxSection) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body func(io.Writer) error
	}{
		{"[Content_Types].xml", writeString(contentTypesXML)},
		{"_rels/.rels", writeString(rootRelsXML)},
		{documentXMLPath, func(w io.Writer) error { return writeDocumentXML(w, sections) }},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("creating %s: %w", p.name, err)
		}
		if err := p.body(fw); err != nil {
			return fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func writeDocumentXML(w io.Writer, sections []DocxSection) error {
	var buf bytes.Buffer
	buf.WriteString(documentHeader)
	for i, s := range sections {
		if i > 0 {
			buf.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
		}
		for _, para := range s.Paragraphs {
			buf.WriteString("<w:p>")
			for j, line := range strings.Split(para, "\n") {
				if j > 0 {
					buf.WriteString("<w:r><w:br/></w:r>")
				}
				if line == "" {
					continue
				}
				buf.WriteString(`<w:r><w:t xml:space="preserve">`)
				if err := xml.EscapeText(&buf, []byte(line)); err != nil {
					return err
				}
				buf.WriteString("</w:t></w:r>")
			}
			buf.WriteString("</w:p>")
		}
	}
	buf.WriteString(documentFooter)
	_, err := w.Write(buf.Bytes())
	return err
}
