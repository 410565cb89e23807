package chunking

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// RowsPerChunk derives the record batch size from the mean serialized row
// length: target/mean clamped to [1, maxRows].
func RowsPerChunk(targetChars int, meanRowLen float64, maxRows int) int {
	if meanRowLen <= 0 {
		return maxRows
	}
	n := int(float64(targetChars) / meanRowLen)
	return min(max(n, 1), maxRows)
}

func serializeRecord(columns []string, r models.Record) string {
	lines := make([]string, 0, len(columns))
	for _, col := range columns {
		v, ok := r.Values[col]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		lines = append(lines, col+": "+s)
	}
	return strings.Join(lines, "\n")
}

// chunkRecords groups each sheet's records into row chunks. Spreadsheets also
// get a leading summary chunk per sheet.
func chunkRecords(content *models.Content, opts Options) []models.Chunk {
	var out []models.Chunk
	spreadsheet := content.Type == models.FileTypeExcel

	for _, sheet := range content.Sheets {
		if spreadsheet && strings.TrimSpace(sheet.Summary) != "" {
			out = append(out, models.Chunk{
				Text:  sheet.Summary,
				Range: models.SourceRange{Kind: models.RangeSummary, Sheet: sheet.Name},
			})
		}

		rows := make([]string, len(sheet.Records))
		total := 0
		for i, r := range sheet.Records {
			rows[i] = serializeRecord(sheet.Columns, r)
			total += len([]rune(rows[i]))
		}
		if len(rows) == 0 {
			continue
		}
		per := RowsPerChunk(opts.TargetChars, float64(total)/float64(len(rows)), opts.MaxRowsPerChunk)

		header := "Columns: " + strings.Join(sheet.Columns, ", ")
		if spreadsheet {
			header = "Sheet: " + sheet.Name + "\n" + header
		}

		for start := 0; start < len(rows); start += per {
			end := min(start+per, len(rows))
			body := make([]string, 0, end-start)
			for _, r := range rows[start:end] {
				if r != "" {
					body = append(body, r)
				}
			}
			if len(body) == 0 {
				continue
			}
			rng := models.SourceRange{Kind: models.RangeRecords, Start: start, End: end}
			if spreadsheet {
				rng.Sheet = sheet.Name
			}
			out = append(out, models.Chunk{
				Text:  header + "\n\n" + strings.Join(body, "\n\n"),
				Range: rng,
				Metadata: map[string]any{
					"rowCount":    len(body),
					"firstRecord": sheet.Records[start].Index,
				},
			})
		}
	}
	return out
}
