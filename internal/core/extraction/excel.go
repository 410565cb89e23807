package extraction

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// ExcelOptions bounds how much of a workbook is read.
type ExcelOptions struct {
	SheetPriority []string
	MaxSheets     int
	MaxCells      int
}

func (o ExcelOptions) withDefaults() ExcelOptions {
	if o.MaxSheets <= 0 {
		o.MaxSheets = 10
	}
	if o.MaxCells <= 0 {
		o.MaxCells = 200000
	}
	return o
}

// ExcelStrategy loads a workbook with excelize in one load mode.
type ExcelStrategy struct {
	name string
	open excelize.Options
	opts ExcelOptions
}

// NewExcelStrategy reads formatted cell values with the library defaults.
func NewExcelStrategy(opts ExcelOptions) *ExcelStrategy {
	return &ExcelStrategy{name: "excel.default", opts: opts.withDefaults()}
}

// NewRawExcelStrategy reads raw cell values with relaxed unzip limits, which
// gets through workbooks whose styles or sizes trip the default mode.
func NewRawExcelStrategy(opts ExcelOptions) *ExcelStrategy {
	return &ExcelStrategy{
		name: "excel.raw",
		open: excelize.Options{
			RawCellValue:      true,
			UnzipSizeLimit:    4 << 30,
			UnzipXMLSizeLimit: 256 << 20,
		},
		opts: opts.withDefaults(),
	}
}

func (s *ExcelStrategy) Name() string { return s.name }

func (s *ExcelStrategy) Extract(ctx context.Context, path string) (*models.Content, error) {
	f, err := excelize.OpenFile(path, s.open)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	content := &models.Content{}
	order, skipped := orderSheets(f.GetSheetList(), s.opts.SheetPriority, s.opts.MaxSheets)
	content.Skipped = append(content.Skipped, skipped...)

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet, reason, err := s.readSheet(f, name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		if reason != "" {
			content.Skipped = append(content.Skipped, fmt.Sprintf("%s: %s", name, reason))
			continue
		}
		content.Sheets = append(content.Sheets, *sheet)
	}
	return content, nil
}

// readSheet streams rows so oversized sheets are cut off without loading them
// whole. A non-empty reason means the sheet was skipped.
func (s *ExcelStrategy) readSheet(f *excelize.File, name string) (*models.Sheet, string, error) {
	rows, err := f.Rows(name)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var (
		header  []string
		body    [][]string
		limit   int
		total   int
		trimmed bool
	)
	for rows.Next() {
		if header == nil {
			cells, err := rows.Columns(s.open)
			if err != nil {
				return nil, "", err
			}
			if isBlankRow(cells) {
				continue
			}
			header = cells
			if len(header) > s.opts.MaxCells {
				return nil, "over cell limit", nil
			}
			limit = max(1, s.opts.MaxCells/len(header)-1)
			continue
		}
		total++
		if len(body) >= limit {
			trimmed = true
			continue
		}
		cells, err := rows.Columns(s.open)
		if err != nil {
			return nil, "", err
		}
		body = append(body, cells)
	}
	if err := rows.Error(); err != nil {
		return nil, "", err
	}
	if header == nil {
		return nil, "empty", nil
	}
	return buildSheet(name, header, body, total, trimmed), "", nil
}

// buildSheet assembles records, column statistics and the summary text.
func buildSheet(name string, header []string, body [][]string, total int, truncated bool) *models.Sheet {
	width := len(header)
	for _, row := range body {
		width = max(width, len(row))
	}
	columns := normalizeKeys(header)
	if len(columns) < width {
		columns = append(columns, positionalKeys(width)[len(columns):]...)
	}

	sheet := &models.Sheet{
		Name:      name,
		Columns:   columns,
		Records:   buildRecords(columns, body),
		TotalRows: total,
		Truncated: truncated,
	}
	sheet.Stats = columnStats(header, columns, body)
	sheet.Summary = sheetSummary(sheet)
	return sheet
}

var unitPattern = regexp.MustCompile(`[\(\[]\s*([^\)\]]+?)\s*[\)\]]`)

// ExtractUnit returns the text inside the first parentheses or brackets of a header.
func ExtractUnit(header string) string {
	m := unitPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

func columnStats(header, columns []string, body [][]string) []models.ColumnStats {
	var out []models.ColumnStats
	for c, key := range columns {
		var (
			st     = models.ColumnStats{Column: key, Min: math.Inf(1), Max: math.Inf(-1)}
			sum    float64
			filled int
		)
		for _, row := range body {
			if c >= len(row) || normalizeValue(row[c]) == nil {
				continue
			}
			filled++
			v, ok := parseNumber(row[c])
			if !ok {
				continue
			}
			st.Count++
			sum += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
		}
		if st.Count == 0 || st.Count*2 < filled {
			continue
		}
		st.Mean = sum / float64(st.Count)
		if c < len(header) {
			st.Unit = ExtractUnit(header[c])
		}
		out = append(out, st)
	}
	return out
}

func sheetSummary(s *models.Sheet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sheet: %s\n", s.Name)
	if s.Truncated {
		fmt.Fprintf(&b, "Rows: %d (truncated to %d)\n", s.TotalRows, len(s.Records))
	} else {
		fmt.Fprintf(&b, "Rows: %d\n", s.TotalRows)
	}
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(s.Columns, ", "))
	if len(s.Stats) > 0 {
		b.WriteString("Column statistics:\n")
		for _, st := range s.Stats {
			name := st.Column
			if st.Unit != "" {
				name += " [" + st.Unit + "]"
			}
			fmt.Fprintf(&b, "- %s: count=%d, min=%g, max=%g, mean=%.4g\n", name, st.Count, st.Min, st.Max, st.Mean)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// orderSheets puts prioritized sheets first, in priority order, then the rest
// in workbook order, and cuts the list at maxSheets.
func orderSheets(all, priority []string, maxSheets int) (order, skipped []string) {
	used := make(map[string]bool, len(all))
	for _, p := range priority {
		for _, name := range all {
			if !used[name] && strings.EqualFold(strings.TrimSpace(p), name) {
				order = append(order, name)
				used[name] = true
			}
		}
	}
	for _, name := range all {
		if !used[name] {
			order = append(order, name)
		}
	}
	if maxSheets > 0 && len(order) > maxSheets {
		for _, name := range order[maxSheets:] {
			skipped = append(skipped, name+": over sheet limit")
		}
		order = order[:maxSheets]
	}
	return order, skipped
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// DelimitedWorkbookStrategy handles spreadsheet uploads that are really
// delimited text with a spreadsheet extension.
type DelimitedWorkbookStrategy struct{}

func (DelimitedWorkbookStrategy) Name() string { return "excel.delimited" }

func (DelimitedWorkbookStrategy) Extract(_ context.Context, path string) (*models.Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sheet, err := parseDelimited(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), true)
	if err != nil {
		return nil, err
	}
	sheet.Stats = columnStats(sheet.Columns, sheet.Columns, recordRows(sheet))
	sheet.Summary = sheetSummary(sheet)
	return &models.Content{Sheets: []models.Sheet{*sheet}}, nil
}

func recordRows(s *models.Sheet) [][]string {
	rows := make([][]string, 0, len(s.Records))
	for _, r := range s.Records {
		row := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			if v, ok := r.Values[c].(string); ok {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}
