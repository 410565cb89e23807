package chunking

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

// csvContent builds rows whose serialized form is exactly 40 characters.
func csvContent(rows int) *models.Content {
	sheet := models.Sheet{Name: "sales", Columns: []string{"id", "desc"}}
	for i := 0; i < rows; i++ {
		sheet.Records = append(sheet.Records, models.Record{
			Index:  i,
			Values: map[string]any{"id": fmt.Sprintf("%03d", i), "desc": strings.Repeat("d", 26)},
		})
	}
	sheet.TotalRows = rows
	return &models.Content{Type: models.FileTypeCSV, Sheets: []models.Sheet{sheet}}
}

func TestRowsPerChunk(t *testing.T) {
	tests := []struct {
		target  int
		mean    float64
		maxRows int
		want    int
	}{
		{1500, 40, 50, 37},
		{1500, 10, 50, 50},
		{1500, 4000, 50, 1},
		{1500, 0, 50, 50},
		{100, 30, 2, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%v", tt.target, tt.mean), func(t *testing.T) {
			assert.Equal(t, tt.want, RowsPerChunk(tt.target, tt.mean, tt.maxRows))
		})
	}
}

func TestChunk_ScenarioRows(t *testing.T) {
	require.Len(t, serializeRecord([]string{"id", "desc"}, csvContent(1).Sheets[0].Records[0]), 40)

	opts := DefaultOptions()
	opts.Filename = "sales.csv"
	opts.SourceID = 42

	chunks, err := newEngine().Chunk(csvContent(120), opts)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	covered := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, models.RangeRecords, c.Range.Kind)
		assert.Equal(t, covered, c.Range.Start, "ranges must not leave gaps")
		covered = c.Range.End

		assert.True(t, strings.HasPrefix(c.Text, "Columns: id, desc\n\n"))
		assert.Equal(t, int64(42), c.Metadata["sourceId"])
		assert.Equal(t, 4, c.Metadata["totalChunks"])
		assert.Equal(t, "sales.csv", c.Metadata["filename"])
		assert.Equal(t, "2026-03-01T12:00:00Z", c.Metadata["processedAt"])
	}
	assert.Equal(t, 120, covered)
	assert.Equal(t, 37, chunks[0].Metadata["rowCount"])
	assert.Equal(t, 9, chunks[3].Metadata["rowCount"])
}

func TestChunk_SpreadsheetSummaryChunk(t *testing.T) {
	content := csvContent(3)
	content.Type = models.FileTypeExcel
	content.Sheets[0].Summary = "Sheet: sales\nRows: 3\nColumns: id, desc"

	chunks, err := newEngine().Chunk(content, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, models.RangeSummary, chunks[0].Range.Kind)
	assert.Equal(t, "sales", chunks[0].Metadata["sheet"])
	assert.True(t, strings.HasPrefix(chunks[1].Text, "Sheet: sales\nColumns: id, desc"))
	assert.Equal(t, 0, chunks[1].Metadata["recordStart"])
	assert.Equal(t, 3, chunks[1].Metadata["recordEnd"])
}

func TestChunk_NullValuesAreOmitted(t *testing.T) {
	content := &models.Content{Type: models.FileTypeCSV, Sheets: []models.Sheet{{
		Columns: []string{"name", "note"},
		Records: []models.Record{{Values: map[string]any{"name": "widget", "note": nil}}},
	}}}
	chunks, err := newEngine().Chunk(content, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, "note:")
	assert.Contains(t, chunks[0].Text, "name: widget")
}

func elements(texts ...string) []models.ContentElement {
	out := make([]models.ContentElement, 0, len(texts))
	page := 1
	for _, t := range texts {
		if t == "|" {
			out = append(out, models.ContentElement{Type: models.ElementPageBreak, Page: page})
			page++
			continue
		}
		typ := models.ElementParagraph
		if strings.HasPrefix(t, "# ") {
			typ, t = models.ElementTitle, strings.TrimPrefix(t, "# ")
		}
		out = append(out, models.ContentElement{Type: typ, Text: t, Page: page})
	}
	return out
}

func TestChunk_ElementsNeverSplitAndCoverInput(t *testing.T) {
	p := strings.Repeat("p", 60)
	els := elements(p+"1", p+"2", "|", p+"3", p+"4", p+"5", "|", p+"6", p+"7")

	opts := DefaultOptions()
	opts.TargetChars = 150
	opts.OverlapElements = 0

	chunks, err := newEngine().Chunk(&models.Content{Type: models.FileTypePDF, Elements: els}, opts)
	require.NoError(t, err)

	var got []string
	end := 0
	for _, c := range chunks {
		assert.Equal(t, end, c.Range.Start)
		end = c.Range.End
		got = append(got, c.Text)
	}
	assert.Equal(t, len(els), end)
	assert.Equal(t, []string{
		p + "1\n\n" + p + "2\n\n" + p + "3",
		p + "4\n\n" + p + "5\n\n" + p + "6",
		p + "7",
	}, got)
	assert.Equal(t, 1, chunks[0].Metadata["pageStart"])
	assert.Equal(t, 2, chunks[0].Metadata["pageEnd"])
}

func TestChunk_OverlapCarriesLastElement(t *testing.T) {
	p := strings.Repeat("q", 50)
	els := elements(p+"a", p+"b", p+"c", p+"d", p+"e", p+"f")

	opts := DefaultOptions()
	opts.TargetChars = 110

	chunks, err := newEngine().Chunk(&models.Content{Type: models.FileTypeDOCX, Elements: els}, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, p+"a\n\n"+p+"b\n\n"+p+"c", chunks[0].Text)
	assert.Equal(t, p+"c\n\n"+p+"d\n\n"+p+"e", chunks[1].Text)
	assert.Equal(t, 2, chunks[1].Range.Start)
	assert.Equal(t, p+"e\n\n"+p+"f", chunks[2].Text)
	assert.Equal(t, 6, chunks[2].Range.End)
}

func TestChunk_ShortTailMergesIntoPrevious(t *testing.T) {
	p := strings.Repeat("r", 100)
	els := elements(p, "short tail text")

	opts := DefaultOptions()
	opts.TargetChars = 100
	opts.OverlapElements = 0

	chunks, err := newEngine().Chunk(&models.Content{Elements: els}, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, p+"\n\nshort tail text", chunks[0].Text)
	assert.Equal(t, 2, chunks[0].Range.End)
}

func TestChunk_TitleOpensNewChunk(t *testing.T) {
	p := strings.Repeat("s", 60)
	els := elements("# Intro", p, "# Methods", p)

	opts := DefaultOptions()
	opts.TargetChars = 120
	opts.OverlapElements = 0

	chunks, err := newEngine().Chunk(&models.Content{Elements: els}, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "Methods"))
}

func TestChunk_UncombinedDropsShortElements(t *testing.T) {
	els := elements("tiny", "a paragraph long enough", "|", "another usable paragraph")
	opts := DefaultOptions()
	opts.Combine = false

	chunks, err := newEngine().Chunk(&models.Content{Elements: els}, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "another usable paragraph", chunks[1].Text)
	assert.Equal(t, 2, chunks[1].Metadata["pageStart"])
	assert.NotContains(t, chunks[1].Metadata, "elementIdx")
}

func TestChunk_ProducesNothing(t *testing.T) {
	_, err := newEngine().Chunk(&models.Content{Elements: elements("ok", "|", "no")}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindChunkingProducedNothing))

	_, err = newEngine().Chunk(&models.Content{}, DefaultOptions())
	assert.True(t, core.IsKind(err, core.KindChunkingProducedNothing))
}

func TestChunk_MinCharsHolds(t *testing.T) {
	els := elements("alpha beta gamma delta", "x", "epsilon zeta eta theta")
	opts := DefaultOptions()
	opts.TargetChars = 20
	opts.OverlapElements = 0
	opts.MinChars = 15

	chunks, err := newEngine().Chunk(&models.Content{Elements: els}, opts)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, len([]rune(c.Text)), 15)
	}
}
