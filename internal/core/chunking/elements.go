package chunking

import (
	"strings"

	"github.com/markdave123-py/vectorsync/internal/models"
)

type elementBuffer struct {
	idx   []int
	chars int
	fresh int
}

func (b *elementBuffer) add(i int, text string) {
	b.idx = append(b.idx, i)
	b.chars += len([]rune(text))
	b.fresh++
}

// chunkElements accumulates whole elements until the target is crossed. An
// element is never split. The last OverlapElements of a closed chunk seed the
// next one as long as they stay under half the target. A tail shorter than a
// quarter of the target is folded into the previous chunk.
func chunkElements(elements []models.ContentElement, opts Options) []models.Chunk {
	if !opts.Combine {
		var out []models.Chunk
		for i, el := range elements {
			if el.Type == models.ElementPageBreak || strings.TrimSpace(el.Text) == "" {
				continue
			}
			c := elementChunk(elements, []int{i}, i, i+1)
			delete(c.Metadata, "elementIdx")
			out = append(out, c)
		}
		return out
	}

	var (
		out []models.Chunk
		buf elementBuffer
		// start of the span the current chunk covers, page breaks included
		spanStart int
	)
	flush := func(end int) {
		if buf.fresh == 0 {
			return
		}
		out = append(out, elementChunk(elements, buf.idx, spanStart, end))

		keep := min(opts.OverlapElements, len(buf.idx)-1)
		next := elementBuffer{}
		if keep > 0 {
			tail := buf.idx[len(buf.idx)-keep:]
			chars := 0
			for _, i := range tail {
				chars += len([]rune(elements[i].Text))
			}
			if chars*2 < opts.TargetChars {
				next.idx = append(next.idx, tail...)
				next.chars = chars
			}
		}
		buf = next
		spanStart = end
		if len(buf.idx) > 0 {
			spanStart = buf.idx[0]
		}
	}

	for i, el := range elements {
		if el.Type == models.ElementPageBreak || strings.TrimSpace(el.Text) == "" {
			continue
		}
		if el.Type == models.ElementTitle && buf.fresh > 0 && buf.chars*2 >= opts.TargetChars {
			flush(i)
		}
		buf.add(i, el.Text)
		if buf.chars >= opts.TargetChars {
			flush(i + 1)
		}
	}

	if buf.fresh > 0 {
		if n := len(out); n > 0 && buf.chars*4 < opts.TargetChars {
			prev := &out[n-1]
			merged := append(prevIndexes(prev), buf.idx...)
			*prev = elementChunk(elements, dedupe(merged), prev.Range.Start, len(elements))
		} else {
			flush(len(elements))
		}
	}
	if n := len(out); n > 0 {
		out[n-1].Range.End = len(elements)
	}
	for i := range out {
		delete(out[i].Metadata, "elementIdx")
	}
	return out
}

// elementChunk renders the elements at idx. The range spans [start, end) of
// the element list.
func elementChunk(elements []models.ContentElement, idx []int, start, end int) models.Chunk {
	var b strings.Builder
	for n, i := range idx {
		el := elements[i]
		if n > 0 {
			if el.Type == models.ElementRow && elements[idx[n-1]].Type == models.ElementRow {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(strings.TrimSpace(el.Text))
	}
	first, last := elements[idx[0]], elements[idx[len(idx)-1]]
	return models.Chunk{
		Text:  b.String(),
		Range: models.SourceRange{Kind: models.RangeElements, Start: start, End: end},
		Metadata: map[string]any{
			"pageStart":    first.Page,
			"pageEnd":      last.Page,
			"elementCount": len(idx),
			"elementIdx":   append([]int(nil), idx...),
		},
	}
}

func prevIndexes(c *models.Chunk) []int {
	idx, _ := c.Metadata["elementIdx"].([]int)
	return append([]int(nil), idx...)
}

func dedupe(idx []int) []int {
	out := idx[:0]
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}
