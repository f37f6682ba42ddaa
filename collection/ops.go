package collection

import (
	"fmt"
	"krysselista/errors"
	"slices"
	"time"
)

type arrayUnion struct {
	values []string
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when the write is applied.
var ServerTimestamp = serverTimestamp{}

// ArrayUnion adds the values to a string array field, skipping those already present.
func ArrayUnion(values ...string) any {
	return arrayUnion{values: values}
}

// Apply resolves update against the current content of a record and returns the new content.
// current is never modified.
func Apply(current, update Fields, now time.Time) (Fields, error) {
	out := current.Clone()
	if out == nil {
		out = make(Fields, len(update))
	}
	for key, value := range update {
		switch v := value.(type) {
		case arrayUnion:
			existing := out.Strings(key)
			for _, item := range v.values {
				if !slices.Contains(existing, item) {
					existing = append(existing, item)
				}
			}
			if existing == nil {
				existing = []string{}
			}
			out[key] = existing
		case serverTimestamp:
			out[key] = now.UTC()
		case time.Time:
			out[key] = v.UTC()
		case int:
			out[key] = float64(v)
		case int64:
			out[key] = float64(v)
		case string, bool, float64, nil:
			out[key] = v
		case []string:
			out[key] = slices.Clone(v)
		default:
			return nil, fmt.Errorf("%w: field %q has unsupported type %T", errors.ErrInvalidRecord, key, value)
		}
	}
	return out, nil
}
