package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{query: "How many orders were shipped in March?", want: QueryCount},
		{query: "number of customers", want: QueryCount},
		{query: "What is the average order value by region?", want: QueryAnalytical},
		{query: "compare revenue across quarters", want: QueryAnalytical},
		{query: "orders from Acme Corp", want: QueryEntityLookup},
		{query: `details for "Blue Widget"`, want: QueryEntityLookup},
		{query: "invoice INV2024", want: QueryEntityLookup},
		{query: "refund policy", want: QueryKeyword},
		{query: "late shipment refund policy exceptions", want: QueryHybrid},
		{query: "what does the contract say about termination and notice periods?", want: QuerySemantic},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuery(tt.query).Type)
		})
	}
}

func TestBroadQueriesTradePrecisionForRecall(t *testing.T) {
	semantic := ClassifyQuery("what does the contract say about termination and notice periods?")
	for _, q := range []string{"average price per unit", "orders from Acme Corp"} {
		plan := ClassifyQuery(q)
		assert.Greater(t, plan.Limit, semantic.Limit, q)
		assert.Less(t, plan.ScoreThreshold, semantic.ScoreThreshold, q)
	}
}

func TestKeywordsDropStopWords(t *testing.T) {
	assert.Equal(t, []string{"revenue", "q3", "2024"}, Keywords("What is the revenue for Q3 2024"))
}
