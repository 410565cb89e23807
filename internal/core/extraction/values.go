package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

var nullish = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "nan": {}, "n/a": {}, "na": {}, "nil": {}, "-": {}, "#n/a": {},
}

// normalizeValue maps null-ish cells to nil and trims everything else.
func normalizeValue(s string) any {
	s = strings.TrimSpace(s)
	if _, ok := nullish[strings.ToLower(s)]; ok {
		return nil
	}
	return s
}

// normalizeKeys trims header cells, collapses whitespace to underscores and
// makes every key unique and non-empty.
func normalizeKeys(header []string) []string {
	keys := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		k := whitespaceRun.ReplaceAllString(strings.TrimSpace(h), "_")
		if k == "" {
			k = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[k]; n > 0 {
			seen[k] = n + 1
			k = fmt.Sprintf("%s_%d", k, n+1)
		}
		seen[k]++
		keys[i] = k
	}
	return keys
}

func positionalKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("column_%d", i+1)
	}
	return keys
}

var numberCleaner = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "%", "", " ", "")

// parseNumber reads a cell as a float, tolerating thousands separators,
// currency symbols and percent signs.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(numberCleaner.Replace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// mostlyNumeric reports whether more than half of the non-empty cells parse as numbers.
func mostlyNumeric(cells []string) bool {
	numeric, filled := 0, 0
	for _, c := range cells {
		if strings.TrimSpace(c) == "" {
			continue
		}
		filled++
		if _, ok := parseNumber(c); ok {
			numeric++
		}
	}
	return filled > 0 && numeric*2 > filled
}

// buildRecords turns raw rows into records keyed by columns. Rows with no
// usable value are dropped. Short rows are padded, long rows truncated.
func buildRecords(columns []string, rows [][]string) []models.Record {
	out := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		values := make(map[string]any, len(columns))
		filled := false
		for c, key := range columns {
			var v any
			if c < len(row) {
				v = normalizeValue(row[c])
			}
			if v != nil {
				filled = true
			}
			values[key] = v
		}
		if !filled {
			continue
		}
		out = append(out, models.Record{Index: i, Values: values})
	}
	return out
}
