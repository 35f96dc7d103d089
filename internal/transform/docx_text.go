package transform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
)

const documentXMLPath = "word/document.xml"

var errNotDOCX = errors.New("not a DOCX package")

// ExtractDocumentText returns paragraphs of a word-processor file. DOCX packages are parsed
// structurally; anything else, including a DOCX that fails to parse, falls back to the
// printable runs of the raw bytes.
func ExtractDocumentText(data []byte) []string {
	paras, err := docxParagraphs(data)
	if err == nil && len(paras) > 0 {
		return paras
	}
	return printableParagraphs(data)
}

// docxParagraphs walks word/document.xml token by token collecting w:t text per w:p.
func docxParagraphs(data []byte) ([]string, error) {
	if !bytes.HasPrefix(data, []byte("PK")) {
		return nil, errNotDOCX
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening ZIP archive: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == documentXMLPath {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: missing %s", errNotDOCX, documentXMLPath)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", documentXMLPath, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		paras   []string
		current strings.Builder
		inText  bool
		inRun   bool
		inPara  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", documentXMLPath, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "r":
				inRun = true
			case "t":
				inText = inRun
			case "tab":
				// w:tab also appears as a tab stop under w:pPr.
				if inRun {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = false
			case "p":
				if inPara {
					paras = append(paras, current.String())
				}
				inPara = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return trimTrailingEmpty(paras), nil
}

// printableParagraphs decodes bytes as text, dropping control and invalid sequences, and
// splits on blank lines.
func printableParagraphs(data []byte) []string {
	var b strings.Builder
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		switch {
		case r == utf8.RuneError:
			continue
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			continue
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}
	var paras []string
	for _, block := range strings.Split(b.String(), "\n") {
		paras = append(paras, strings.TrimRight(block, " \t"))
	}
	return trimTrailingEmpty(paras)
}

func trimTrailingEmpty(paras []string) []string {
	for len(paras) > 0 && strings.TrimSpace(paras[len(paras)-1]) == "" {
		paras = paras[:len(paras)-1]
	}
	return paras
}
