package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		sample string
		want   rune
	}{
		{"a,b,c\n1,2,3", ','},
		{"a;b;c\n1;2;3", ';'},
		{"a\tb\tc\n1\t2\t3", '\t'},
		{"a|b|c\n1|2|3", '|'},
		{"no delimiters here", ','},
		{"a;b,c", ','},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.sample), func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter(tt.sample))
		})
	}
}

func TestDetectHeader(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want bool
	}{
		{"names over numbers", [][]string{{"id", "price"}, {"1", "9.50"}}, true},
		{"numbers first", [][]string{{"1", "2"}, {"3", "4"}}, false},
		{"single row", [][]string{{"id", "name"}}, false},
		{"ragged rows", [][]string{{"id", "name"}, {"1"}}, false},
		{"distinct words over words", [][]string{{"name", "city"}, {"Ada", "London"}}, true},
		{"repeated words", [][]string{{"x", "x"}, {"Ada", "London"}}, false},
		{"digits in words", [][]string{{"q1", "q2"}, {"up", "down"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectHeader(tt.rows))
		})
	}
}

func TestCSVStrategy_SemicolonWithBOM(t *testing.T) {
	path := writeFile(t, "sales.csv", "\xef\xbb\xbfregion;amount ($)\nNorth;1,200\nSouth;n/a\n;\n")

	content, err := NewCSVStrategy().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, content.Sheets, 1)

	sheet := content.Sheets[0]
	assert.Equal(t, "sales", sheet.Name)
	assert.Equal(t, []string{"region", "amount_($)"}, sheet.Columns)
	require.Len(t, sheet.Records, 2)
	assert.Equal(t, "1,200", sheet.Records[0].Values["amount_($)"])
	assert.Nil(t, sheet.Records[1].Values["amount_($)"])
}

func TestCSVStrategy_HeaderlessGetsPositionalKeys(t *testing.T) {
	path := writeFile(t, "raw.csv", "1,2,3\n4,5,6\n")

	content, err := NewCSVStrategy().Extract(context.Background(), path)
	require.NoError(t, err)
	sheet := content.Sheets[0]
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, sheet.Columns)
	assert.Len(t, sheet.Records, 2)
	assert.Equal(t, "4", sheet.Records[1].Values["column_1"])
}

func TestCSVStrategy_LenientRecoversRaggedRows(t *testing.T) {
	body := "id,name,desc\n1,widget,\"a \"quoted\" thing\"\n2,gadget\n3,gizmo,small,extra\n"
	path := writeFile(t, "ragged.csv", body)

	_, err := NewCSVStrategy().Extract(context.Background(), path)
	require.Error(t, err)

	content, err := NewLenientCSVStrategy().Extract(context.Background(), path)
	require.NoError(t, err)
	sheet := content.Sheets[0]
	assert.Equal(t, []string{"id", "name", "desc", "column_4"}, sheet.Columns)
	require.Len(t, sheet.Records, 3)
	assert.Nil(t, sheet.Records[1].Values["desc"])
	assert.Equal(t, "extra", sheet.Records[2].Values["column_4"])
}

func TestCSVStrategy_ScenarioRowsKeepOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,name,desc\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "%d,item-%03d,%s\n", i, i, strings.Repeat("x", 20))
	}
	path := writeFile(t, "items.csv", b.String())

	c := NewDefaultCoordinator(ExcelOptions{}, nil, nil, nil)
	content, err := c.Extract(context.Background(), path, models.FileTypeCSV)
	require.NoError(t, err)

	assert.Equal(t, "csv.sniffed", content.Strategy)
	assert.Equal(t, 120, content.RecordCount())
	assert.Equal(t, "item-119", content.Sheets[0].Records[119].Values["name"])
}

func TestCSVStrategy_OnlyNullCellsIsEmpty(t *testing.T) {
	path := writeFile(t, "empty.csv", "n/a,null\n,\n")
	_, err := NewCSVStrategy().Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestCSVStrategy_RejectsBinaryInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zip archive", "PK\x03\x04\x14\x00a,b\n1,2\n"},
		{"ole workbook", "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1a,b\n"},
		{"nul bytes", "a,b\n1,\x002\n"},
		{"invalid utf-8", "a,b\n\xff\xfe,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "upload.csv", tt.body)
			_, err := NewLenientCSVStrategy().Extract(context.Background(), path)
			assert.ErrorIs(t, err, ErrBinaryInput)
		})
	}
}

func TestCSVStrategy_HeaderOnlyIsEmpty(t *testing.T) {
	path := writeFile(t, "columns.csv", "id,name,price\n")
	_, err := NewCSVStrategy().Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestCSVStrategy_LoneNumericRowIsData(t *testing.T) {
	path := writeFile(t, "one.csv", "1,2,3\n")
	content, err := NewCSVStrategy().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, content.Sheets[0].Records, 1)
	assert.Equal(t, "3", content.Sheets[0].Records[0].Values["column_3"])
}
