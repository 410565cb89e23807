package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator(t *testing.T) {
	var e Estimator
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 2, e.Count("abcde"))

	long := strings.Repeat("ab", 50)
	assert.Equal(t, long[:40], e.Truncate(long, 10))
	assert.Equal(t, "short", e.Truncate("short", 10))
	assert.Equal(t, long, e.Truncate(long, 0))
}
