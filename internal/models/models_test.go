package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileType(t *testing.T) {
	tests := []struct {
		in   string
		want FileType
	}{
		{"csv", FileTypeCSV},
		{".tsv", FileTypeCSV},
		{"XLSX", FileTypeExcel},
		{"excel", FileTypeExcel},
		{".pdf", FileTypePDF},
		{"docx", FileTypeDOCX},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFileType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFileType("pptx")
	assert.Error(t, err)
}

func TestFileTypeFromPath(t *testing.T) {
	ft, ok := FileTypeFromPath("/uploads/sales.CSV")
	assert.True(t, ok)
	assert.Equal(t, FileTypeCSV, ft)

	_, ok = FileTypeFromPath("/uploads/README")
	assert.False(t, ok)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "datasource_123", CollectionName(123))
}

func TestContentEmpty(t *testing.T) {
	assert.True(t, (*Content)(nil).Empty())
	assert.True(t, (&Content{Elements: []ContentElement{{Type: ElementPageBreak}, {Type: ElementParagraph, Text: "  "}}}).Empty())
	assert.False(t, (&Content{Elements: []ContentElement{{Type: ElementParagraph, Text: "hello"}}}).Empty())
	assert.False(t, (&Content{Sheets: []Sheet{{Records: []Record{{Index: 0}}}}}).Empty())
}
