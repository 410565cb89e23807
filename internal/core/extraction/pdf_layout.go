package extraction

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/vectorsync/internal/models"
)

const (
	lineGap       = 5.0
	paragraphGap  = 15.0
	titleFontRate = 1.15
)

// glyph is one positioned text run on a page. Y grows upwards.
type glyph struct {
	X, Y, W, Size float64
	S             string
}

// PDFLayoutStrategy rebuilds reading order from glyph positions.
type PDFLayoutStrategy struct{}

func (PDFLayoutStrategy) Name() string { return "pdf.layout" }

func (PDFLayoutStrategy) Extract(ctx context.Context, path string) (*models.Content, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var elements []models.ContentElement
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		texts := p.Content().Text
		glyphs := make([]glyph, 0, len(texts))
		for _, t := range texts {
			glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
		}
		elements = append(elements, layoutPage(glyphs, i)...)
		if i < pages {
			elements = append(elements, models.ContentElement{Type: models.ElementPageBreak, Page: i})
		}
	}
	return &models.Content{Elements: elements}, nil
}

type textLine struct {
	y    float64
	size float64
	text string
}

// layoutPage groups glyphs into lines, then lines into paragraphs and titles.
// A vertical jump over lineGap starts a new line, one over paragraphGap a new
// paragraph. Lines set noticeably larger than the page's body size are titles.
func layoutPage(glyphs []glyph, page int) []models.ContentElement {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := append([]glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var clusters [][]glyph
	for _, g := range sorted {
		n := len(clusters)
		if n == 0 || math.Abs(clusters[n-1][0].Y-g.Y) > lineGap {
			clusters = append(clusters, []glyph{g})
			continue
		}
		clusters[n-1] = append(clusters[n-1], g)
	}

	lines := make([]textLine, 0, len(clusters))
	for _, c := range clusters {
		if l, ok := joinLine(c); ok {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	body := modalSize(glyphs)
	var (
		out     []models.ContentElement
		buf     []string
		isTitle bool
		prevY   float64
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		typ := models.ElementParagraph
		if isTitle {
			typ = models.ElementTitle
		}
		out = append(out, models.ContentElement{Type: typ, Text: joinWrapped(buf), Page: page})
		buf = nil
	}
	for i, l := range lines {
		title := body > 0 && l.size > body*titleFontRate
		if i > 0 && (prevY-l.y > paragraphGap || title != isTitle) {
			flush()
		}
		isTitle = title
		buf = append(buf, l.text)
		prevY = l.y
	}
	flush()
	return out
}

// joinLine orders a line's glyphs left to right and inserts spaces at gaps.
func joinLine(gs []glyph) (textLine, bool) {
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].X < gs[j].X })
	var (
		b    strings.Builder
		size float64
		end  float64
	)
	for i, g := range gs {
		size = math.Max(size, g.Size)
		if i > 0 {
			gap := g.X - end
			if gap > math.Max(g.Size*0.15, 0.5) && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(g.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
		w := g.W
		if w <= 0 {
			w = g.Size * 0.5 * float64(len([]rune(g.S)))
		}
		end = g.X + w
	}
	text := strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
	return textLine{y: gs[0].Y, size: size, text: text}, text != ""
}

// joinWrapped joins wrapped lines, re-attaching words split by a trailing hyphen.
func joinWrapped(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			prev := lines[i-1]
			if strings.HasSuffix(prev, "-") && len(prev) > 1 {
				s := b.String()
				b.Reset()
				b.WriteString(strings.TrimSuffix(s, "-"))
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(l)
	}
	return b.String()
}

// modalSize is the font size carrying the most characters on the page.
func modalSize(gs []glyph) float64 {
	weight := make(map[float64]int)
	for _, g := range gs {
		if strings.TrimSpace(g.S) == "" {
			continue
		}
		weight[math.Round(g.Size*10)/10] += len([]rune(g.S))
	}
	var best float64
	bestW := 0
	for size, w := range weight {
		if w > bestW || (w == bestW && size < best) {
			best, bestW = size, w
		}
	}
	return best
}
