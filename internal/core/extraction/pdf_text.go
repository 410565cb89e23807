package extraction

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/vectorsync/internal/models"
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// PDFTextStrategy extracts plain text through docconv (pdftotext) and keeps
// page boundaries from its form feeds.
type PDFTextStrategy struct{}

func (PDFTextStrategy) Name() string { return "pdf.text" }

func (PDFTextStrategy) Extract(_ context.Context, path string) (*models.Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body, _, err := docconv.ConvertPDF(f)
	if err != nil {
		return nil, fmt.Errorf("docconv pdf: %w", err)
	}
	return &models.Content{Elements: pagedParagraphs(strings.Split(body, "\f"))}, nil
}

// pagedParagraphs splits each page on blank lines and separates pages with
// page break elements.
func pagedParagraphs(pages []string) []models.ContentElement {
	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	var out []models.ContentElement
	for i, page := range pages {
		if i > 0 {
			out = append(out, models.ContentElement{Type: models.ElementPageBreak, Page: i})
		}
		for _, para := range blankLines.Split(page, -1) {
			text := strings.TrimSpace(whitespaceRun.ReplaceAllString(para, " "))
			if text == "" {
				continue
			}
			out = append(out, models.ContentElement{Type: models.ElementParagraph, Text: text, Page: i + 1})
		}
	}
	return out
}
