package extraction

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/vectorsync/internal/models"
)

var titleStyle = regexp.MustCompile(`(?i)^(title|subtitle|heading\s*\d*)$`)

// DOCXStructuredStrategy walks word/document.xml and keeps paragraphs,
// headings, table rows and page breaks in document order.
type DOCXStructuredStrategy struct{}

func (DOCXStructuredStrategy) Name() string { return "docx.structured" }

func (DOCXStructuredStrategy) Extract(_ context.Context, path string) (*models.Content, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		elements, err := parseDocumentXML(rc)
		if err != nil {
			return nil, err
		}
		return &models.Content{Elements: elements}, nil
	}
	return nil, errors.New("word/document.xml not found")
}

type docxWalker struct {
	out          []models.ContentElement
	page         int
	para         strings.Builder
	style        string
	inText       bool
	tableDepth   int
	row          []string
	cell         strings.Builder
	pendingBreak bool
}

func (w *docxWalker) write(s string) {
	if w.tableDepth > 0 {
		w.cell.WriteString(s)
		return
	}
	w.para.WriteString(s)
}

func (w *docxWalker) pageBreak() {
	n := len(w.out)
	if n == 0 || w.out[n-1].Type == models.ElementPageBreak {
		return
	}
	w.out = append(w.out, models.ContentElement{Type: models.ElementPageBreak, Page: w.page})
	w.page++
}

func (w *docxWalker) flushParagraph() {
	text := strings.TrimSpace(whitespaceRun.ReplaceAllString(w.para.String(), " "))
	w.para.Reset()
	if text == "" {
		return
	}
	typ := models.ElementParagraph
	meta := map[string]any(nil)
	if titleStyle.MatchString(w.style) {
		typ = models.ElementTitle
		meta = map[string]any{"style": w.style}
	}
	w.out = append(w.out, models.ContentElement{Type: typ, Text: text, Page: w.page, Meta: meta})
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseDocumentXML streams the document body. Explicit page breaks split the
// current paragraph; rendered page breaks are applied at the paragraph edge.
func parseDocumentXML(r io.Reader) ([]models.ContentElement, error) {
	dec := xml.NewDecoder(r)
	w := &docxWalker{page: 1}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if w.tableDepth == 0 {
					w.para.Reset()
					w.style = ""
				}
			case "pStyle":
				if w.tableDepth == 0 {
					w.style = attr(t, "val")
				}
			case "t":
				w.inText = true
			case "tab":
				w.write("\t")
			case "br", "cr":
				if attr(t, "type") == "page" && w.tableDepth == 0 {
					w.flushParagraph()
					w.pageBreak()
					continue
				}
				w.write(" ")
			case "lastRenderedPageBreak":
				if w.tableDepth > 0 {
					continue
				}
				if strings.TrimSpace(w.para.String()) == "" {
					w.pageBreak()
				} else {
					w.pendingBreak = true
				}
			case "tbl":
				w.tableDepth++
			case "tr":
				if w.tableDepth == 1 {
					w.row = nil
				}
			}

		case xml.CharData:
			if w.inText {
				w.write(string(t))
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				w.inText = false
			case "p":
				if w.tableDepth > 0 {
					w.cell.WriteString(" ")
					continue
				}
				w.flushParagraph()
				if w.pendingBreak {
					w.pageBreak()
					w.pendingBreak = false
				}
			case "tc":
				if w.tableDepth == 1 {
					w.row = append(w.row, strings.TrimSpace(whitespaceRun.ReplaceAllString(w.cell.String(), " ")))
					w.cell.Reset()
				}
			case "tr":
				if w.tableDepth == 1 && !isBlankRow(w.row) {
					w.out = append(w.out, models.ContentElement{
						Type: models.ElementRow,
						Text: strings.Join(w.row, " | "),
						Page: w.page,
						Meta: map[string]any{"cells": len(w.row)},
					})
				}
			case "tbl":
				w.tableDepth--
			}
		}
	}
	w.flushParagraph()

	if n := len(w.out); n > 0 && w.out[n-1].Type == models.ElementPageBreak {
		w.out = w.out[:n-1]
	}
	return w.out, nil
}

// DOCXTextStrategy falls back to docconv's plain text conversion.
type DOCXTextStrategy struct{}

func (DOCXTextStrategy) Name() string { return "docx.text" }

func (DOCXTextStrategy) Extract(_ context.Context, path string) (*models.Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body, _, err := docconv.ConvertDocx(f)
	if err != nil {
		return nil, fmt.Errorf("docconv docx: %w", err)
	}
	var elements []models.ContentElement
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			elements = append(elements, models.ContentElement{Type: models.ElementParagraph, Text: line, Page: 1})
		}
	}
	return &models.Content{Elements: elements}, nil
}
