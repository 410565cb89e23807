package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/markdave123-py/vectorsync/internal/models"
)

// normalizePayload converts a payload into plain JSON values so every backend
// stores the same shape. Whole floats become int64.
func normalizePayload(p map[string]any) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return fixNumbers(out).(map[string]any), nil
}

func fixNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = fixNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = fixNumbers(inner)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}

// pointSize estimates the wire size of a point: 4 bytes per dimension plus the
// serialized payload.
func pointSize(p models.VectorPoint) int {
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return len(p.Vector) * 4
	}
	return len(p.Vector)*4 + len(raw)
}
