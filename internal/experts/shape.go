package experts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/garnizeh/experts/pkg/models"
	"github.com/garnizeh/experts/pkg/warehouse"
	"github.com/qri-io/jsonschema"
)

var resultColumns = []string{"user_id", "number_of_answers"}

var resultSchema = jsonschema.Must(`{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["user_id", "number_of_answers"],
		"additionalProperties": false,
		"properties": {
			"user_id": {"type": ["integer", "null"]},
			"number_of_answers": {"type": "integer", "minimum": 1}
		}
	}
}`)

// toRecords checks that t has the expected shape and converts it. Rows are
// keyed by the column names the backend reported before schema validation.
// Any violation is an execution error.
func toRecords(ctx context.Context, t *warehouse.Table) ([]models.ExpertRecord, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: executor returned no table", warehouse.ErrExecution)
	}
	cols := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := cols[c]; dup {
			return nil, fmt.Errorf("%w: result column %q appears more than once", warehouse.ErrExecution, c)
		}
		cols[c] = struct{}{}
	}
	// an empty result gives the schema nothing to check
	if len(t.Rows) == 0 {
		for _, c := range resultColumns {
			if _, ok := cols[c]; !ok {
				return nil, fmt.Errorf("%w: unexpected result columns %v", warehouse.ErrExecution, t.Columns)
			}
		}
	}

	objs := make([]map[string]any, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", warehouse.ErrExecution, i, len(row), len(t.Columns))
		}
		obj := make(map[string]any, len(row))
		for j, c := range t.Columns {
			obj[c] = row[j]
		}
		objs = append(objs, obj)
	}

	b, err := json.Marshal(objs)
	if err != nil {
		return nil, fmt.Errorf("%w: encode result: %w", warehouse.ErrExecution, err)
	}
	kerrs, err := resultSchema.ValidateBytes(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%w: validate result: %w", warehouse.ErrExecution, err)
	}
	if len(kerrs) > 0 {
		return nil, fmt.Errorf("%w: result does not match shape: %s %s", warehouse.ErrExecution, kerrs[0].PropertyPath, kerrs[0].Message)
	}

	out := make([]models.ExpertRecord, 0, len(objs))
	seen := make(map[string]struct{}, len(objs))
	for i, obj := range objs {
		var rec models.ExpertRecord
		key := "null"
		if uid := obj["user_id"]; uid != nil {
			id, ok := toInt64(uid)
			if !ok {
				return nil, fmt.Errorf("%w: row %d: user_id %v is not an integer", warehouse.ErrExecution, i, uid)
			}
			rec.UserID = &id
			key = fmt.Sprint(id)
		}
		n, ok := toInt64(obj["number_of_answers"])
		if !ok {
			return nil, fmt.Errorf("%w: row %d: number_of_answers %v is not an integer", warehouse.ErrExecution, i, obj["number_of_answers"])
		}
		rec.NumberOfAnswers = n

		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: user_id %s appears more than once", warehouse.ErrExecution, key)
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
