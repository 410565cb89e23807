package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/vectorsync/internal/models"
)

const sniffSampleBytes = 64 << 10

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// ErrBinaryInput is returned when bytes handed to the delimited text parser
// are not text, such as a zipped xlsx or an OLE xls workbook.
var ErrBinaryInput = errors.New("input is binary, not delimited text")

var binaryMagics = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("\xD0\xCF\x11\xE0"),
}

func checkText(data []byte) error {
	for _, magic := range binaryMagics {
		if bytes.HasPrefix(data, magic) {
			return fmt.Errorf("%w: starts with % x", ErrBinaryInput, magic)
		}
	}
	sample := data
	if len(sample) > sniffSampleBytes {
		sample = sample[:sniffSampleBytes]
		// a multi-byte rune may straddle the cut
		for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL bytes", ErrBinaryInput)
	}
	if !utf8.Valid(sample) {
		return fmt.Errorf("%w: not valid UTF-8", ErrBinaryInput)
	}
	return nil
}

// CSVStrategy parses delimited text. The strict variant rejects ragged rows
// and stray quotes; the lenient one pads, truncates and tolerates them.
type CSVStrategy struct {
	lenient bool
}

func NewCSVStrategy() *CSVStrategy        { return &CSVStrategy{} }
func NewLenientCSVStrategy() *CSVStrategy { return &CSVStrategy{lenient: true} }

func (s *CSVStrategy) Name() string {
	if s.lenient {
		return "csv.lenient"
	}
	return "csv.sniffed"
}

func (s *CSVStrategy) Extract(ctx context.Context, path string) (*models.Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sheet, err := parseDelimited(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), s.lenient)
	if err != nil {
		return nil, err
	}
	return &models.Content{Sheets: []models.Sheet{*sheet}}, nil
}

// SniffDelimiter counts the candidate delimiters in a sample and returns the
// most frequent one present, preferring earlier candidates on ties. It falls
// back to a comma.
func SniffDelimiter(sample string) rune {
	best, bestCount := ',', 0
	for _, d := range delimiterCandidates {
		if n := strings.Count(sample, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// DetectHeader decides whether the first row names the columns by comparing
// it with the second row.
func DetectHeader(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	first, second := rows[0], rows[1]
	if len(first) != len(second) {
		return false
	}
	if mostlyNumeric(first) {
		return false
	}
	for i := range first {
		_, firstNum := parseNumber(first[i])
		_, secondNum := parseNumber(second[i])
		if !firstNum && strings.TrimSpace(first[i]) != "" && secondNum {
			return true
		}
	}
	if mostlyNumeric(second) {
		return true
	}

	seen := make(map[string]struct{}, len(first))
	for _, cell := range first {
		c := strings.ToLower(strings.TrimSpace(cell))
		if c == "" || strings.IndexFunc(c, unicode.IsDigit) >= 0 {
			return false
		}
		if _, dup := seen[c]; dup {
			return false
		}
		seen[c] = struct{}{}
	}
	return true
}

func parseDelimited(data []byte, name string, lenient bool) (*models.Sheet, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if err := checkText(data); err != nil {
		return nil, err
	}
	sample := data
	if len(sample) > sniffSampleBytes {
		sample = sample[:sniffSampleBytes]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = SniffDelimiter(string(sample))
	if lenient {
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited text: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoContent
	}
	// a lone non-numeric row is a header without data
	if len(rows) == 1 && !mostlyNumeric(rows[0]) {
		return nil, ErrNoContent
	}

	var columns []string
	body := rows
	if DetectHeader(rows) {
		columns = normalizeKeys(rows[0])
		body = rows[1:]
	}

	width := len(columns)
	for _, row := range body {
		width = max(width, len(row))
	}
	if len(columns) < width {
		columns = append(columns, positionalKeys(width)[len(columns):]...)
	}

	records := buildRecords(columns, body)
	if len(records) == 0 {
		return nil, ErrNoContent
	}
	return &models.Sheet{
		Name:      name,
		Columns:   columns,
		Records:   records,
		TotalRows: len(body),
	}, nil
}
