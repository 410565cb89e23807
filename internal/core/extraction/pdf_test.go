package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/models"
)

func TestLayoutPage_TitlesParagraphsAndHyphenation(t *testing.T) {
	glyphs := []glyph{
		{X: 115, Y: 700, W: 60, Size: 18, S: "Report"},
		{X: 50, Y: 700, W: 60, Size: 18, S: "Annual"},
		{X: 50, Y: 670, W: 80, Size: 10, S: "The quick brown"},
		{X: 50, Y: 658, W: 80, Size: 10, S: "fox jumps over-"},
		{X: 50, Y: 646, W: 40, Size: 10, S: "ly far."},
		{X: 50, Y: 620, W: 50, Size: 10, S: "Next para."},
	}

	got := layoutPage(glyphs, 3)
	want := []models.ContentElement{
		{Type: models.ElementTitle, Text: "Annual Report", Page: 3},
		{Type: models.ElementParagraph, Text: "The quick brown fox jumps overly far.", Page: 3},
		{Type: models.ElementParagraph, Text: "Next para.", Page: 3},
	}
	assert.Equal(t, want, got)
}

func TestLayoutPage_Empty(t *testing.T) {
	assert.Nil(t, layoutPage(nil, 1))
	assert.Nil(t, layoutPage([]glyph{{S: "  ", Size: 10}}, 1))
}

func TestPagedParagraphs(t *testing.T) {
	got := pagedParagraphs([]string{"Intro line\nwraps here\n\nSecond", "Page two", "", "  "})
	want := []models.ContentElement{
		{Type: models.ElementParagraph, Text: "Intro line wraps here", Page: 1},
		{Type: models.ElementParagraph, Text: "Second", Page: 1},
		{Type: models.ElementPageBreak, Page: 1},
		{Type: models.ElementParagraph, Text: "Page two", Page: 2},
	}
	assert.Equal(t, want, got)
}

type fakeRunner struct {
	pages int
	err   error
	args  []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return nil, f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o600); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

type fakeRecognizer map[string]string

func (f fakeRecognizer) Recognize(_ context.Context, imagePath string) (string, error) {
	text, ok := f[filepath.Base(imagePath)]
	if !ok {
		return "", errors.New("unexpected image " + imagePath)
	}
	return text, nil
}

func TestOCRStrategy_RecognizesPagesInOrder(t *testing.T) {
	runner := &fakeRunner{pages: 2}
	s := NewOCRStrategy(runner, fakeRecognizer{
		"page-1.png": "Scanned title\n\nBody of page one",
		"page-2.png": "Page two body",
	})

	content, err := s.Extract(context.Background(), "/uploads/scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, "pdftoppm", runner.args[0])
	assert.Contains(t, runner.args, "/uploads/scan.pdf")
	require.Len(t, content.Elements, 4)
	assert.Equal(t, "Scanned title", content.Elements[0].Text)
	assert.Equal(t, models.ElementPageBreak, content.Elements[2].Type)
	assert.Equal(t, 2, content.Elements[3].Page)
}

func TestOCRStrategy_Unavailable(t *testing.T) {
	_, err := NewOCRStrategy(&fakeRunner{}, nil).Extract(context.Background(), "scan.pdf")
	assert.ErrorIs(t, err, ErrOCRUnavailable)
}

func TestOCRStrategy_RasterizeFailure(t *testing.T) {
	s := NewOCRStrategy(&fakeRunner{err: errors.New("pdftoppm not found")}, fakeRecognizer{})
	_, err := s.Extract(context.Background(), "scan.pdf")
	assert.ErrorContains(t, err, "rasterize")
}
