package vectorstore

import (
	"regexp"
	"strings"
	"unicode"
)

type QueryType string

const (
	QuerySemantic     QueryType = "semantic"
	QueryKeyword      QueryType = "keyword"
	QueryHybrid       QueryType = "hybrid"
	QueryCount        QueryType = "count"
	QueryAnalytical   QueryType = "analytical"
	QueryEntityLookup QueryType = "entity-lookup"
)

// QueryPlan is the retrieval budget picked for a query. Broad question types
// trade precision for completeness with a high limit and a low threshold.
type QueryPlan struct {
	Type           QueryType `json:"type"`
	Limit          int       `json:"limit"`
	ScoreThreshold float32   `json:"scoreThreshold"`
	Keywords       []string  `json:"keywords"`
	Entities       []string  `json:"entities,omitempty"`
}

var plans = map[QueryType]QueryPlan{
	QuerySemantic:     {Limit: 10, ScoreThreshold: 0.5},
	QueryKeyword:      {Limit: 20, ScoreThreshold: 0.3},
	QueryHybrid:       {Limit: 15, ScoreThreshold: 0.4},
	QueryCount:        {Limit: 1000, ScoreThreshold: 0.05},
	QueryAnalytical:   {Limit: 500, ScoreThreshold: 0.1},
	QueryEntityLookup: {Limit: 100, ScoreThreshold: 0.15},
}

var (
	countPattern      = regexp.MustCompile(`(?i)\b(how many|number of|count( of)?|total number)\b`)
	analyticalPattern = regexp.MustCompile(`(?i)\b(average|avg|mean|median|sum|total|maximum|minimum|max|min|highest|lowest|compare|comparison|trend|distribution|percentage|percent|ratio|breakdown|group by|per)\b`)
	quotedPattern     = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	wordPattern       = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}_\-\.]*`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the and or but if of at by for with about against between into through
		during before after above below to from up down in out on off over under again further then once here
		there when where why how all any both each few more most other some such no nor not only own same so
		than too very s t can will just don should now is are was were be been being have has had having do does
		did doing i me my we our you your he him his she her it its they them their what which who whom this that
		these those am show me find list tell give please`) {
		stopWords[w] = struct{}{}
	}
}

// Keywords returns the lower-cased query terms left after stop-word removal.
func Keywords(query string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(query, -1) {
		lw := strings.ToLower(strings.Trim(w, ".-"))
		if lw == "" {
			continue
		}
		if _, stop := stopWords[lw]; stop {
			continue
		}
		out = append(out, lw)
	}
	return out
}

// entities collects quoted phrases, capitalized words that do not open the
// query, and identifier-like tokens mixing letters and digits.
func entities(query string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	words := wordPattern.FindAllString(query, -1)
	for i, w := range words {
		r := []rune(w)
		hasDigit := strings.IndexFunc(w, unicode.IsDigit) >= 0
		hasLetter := strings.IndexFunc(w, unicode.IsLetter) >= 0
		switch {
		case hasDigit && hasLetter:
			out = append(out, w)
		case i > 0 && unicode.IsUpper(r[0]):
			if _, stop := stopWords[strings.ToLower(w)]; !stop {
				out = append(out, w)
			}
		}
	}
	return out
}

// ClassifyQuery picks a query type with lightweight pattern rules. Count and
// analytical questions win over entity detection, which wins over the
// keyword-count based types.
func ClassifyQuery(query string) QueryPlan {
	q := strings.TrimSpace(query)
	kw := Keywords(q)
	ents := entities(q)

	var t QueryType
	switch {
	case countPattern.MatchString(q):
		t = QueryCount
	case analyticalPattern.MatchString(q):
		t = QueryAnalytical
	case len(ents) > 0 && len(kw) <= 5:
		t = QueryEntityLookup
	case len(kw) > 0 && len(kw) <= 2 && !strings.HasSuffix(q, "?"):
		t = QueryKeyword
	case len(kw) >= 3 && len(kw) <= 6 && !strings.HasSuffix(q, "?"):
		t = QueryHybrid
	default:
		t = QuerySemantic
	}

	plan := plans[t]
	plan.Type = t
	plan.Keywords = kw
	plan.Entities = ents
	return plan
}
