package extraction

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/models"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func writeDocx(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func run(text string) string { return `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r>` }

func para(runs ...string) string { return `<w:p>` + strings.Join(runs, "") + `</w:p>` }

func cell(text string) string { return `<w:tc>` + para(run(text)) + `</w:tc>` }

func TestDOCXStructured_HeadingsPagesAndTables(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr>` + run("Overview") + `</w:p>` +
		para(run("First "), run("paragraph.")) +
		para(`<w:r><w:br w:type="page"/></w:r>`) +
		para(run("Second page.")) +
		`<w:tbl><w:tr>` + cell("Name") + cell("Qty") + `</w:tr><w:tr>` + cell("Bolt") + cell("4") + `</w:tr></w:tbl>`

	content, err := DOCXStructuredStrategy{}.Extract(context.Background(), writeDocx(t, body))
	require.NoError(t, err)

	want := []models.ContentElement{
		{Type: models.ElementTitle, Text: "Overview", Page: 1, Meta: map[string]any{"style": "Heading1"}},
		{Type: models.ElementParagraph, Text: "First paragraph.", Page: 1},
		{Type: models.ElementPageBreak, Page: 1},
		{Type: models.ElementParagraph, Text: "Second page.", Page: 2},
		{Type: models.ElementRow, Text: "Name | Qty", Page: 2, Meta: map[string]any{"cells": 2}},
		{Type: models.ElementRow, Text: "Bolt | 4", Page: 2, Meta: map[string]any{"cells": 2}},
	}
	assert.Equal(t, want, content.Elements)
}

func TestDOCXStructured_RenderedPageBreaks(t *testing.T) {
	body := para(run("A")) +
		para(`<w:r><w:lastRenderedPageBreak/></w:r>`, run("B")) +
		para(run("C"), `<w:r><w:lastRenderedPageBreak/></w:r>`, run("D")) +
		para(run("E"))

	content, err := DOCXStructuredStrategy{}.Extract(context.Background(), writeDocx(t, body))
	require.NoError(t, err)

	var got []string
	for _, el := range content.Elements {
		if el.Type == models.ElementPageBreak {
			got = append(got, "|")
			continue
		}
		got = append(got, el.Text)
	}
	assert.Equal(t, []string{"A", "|", "B", "CD", "|", "E"}, got)
	assert.Equal(t, 3, content.Elements[len(content.Elements)-1].Page)
}

func TestDOCXStructured_NotAZip(t *testing.T) {
	_, err := DOCXStructuredStrategy{}.Extract(context.Background(), writeFile(t, "bad.docx", "plain text"))
	assert.Error(t, err)
}
