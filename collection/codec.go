package collection

import (
	"fmt"
	"krysselista/errors"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Marshal encodes a record as a protobuf Struct. Times are stored as RFC 3339 text.
func Marshal(r Record) ([]byte, error) {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		switch t := v.(type) {
		case time.Time:
			fields[k] = t.UTC().Format(time.RFC3339Nano)
		case []string:
			list := make([]any, len(t))
			for i, s := range t {
				list[i] = s
			}
			fields[k] = list
		default:
			fields[k] = v
		}
	}
	st, err := structpb.NewStruct(map[string]any{
		"id":     r.ID,
		"seq":    float64(r.Seq),
		"fields": fields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRecord, err)
	}
	return proto.Marshal(st)
}

// Unmarshal decodes a record written by Marshal. String arrays come back as []string.
func Unmarshal(data []byte) (Record, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Record{}, fmt.Errorf("%w: %v", errors.ErrInvalidRecord, err)
	}
	raw := st.AsMap()
	id, _ := raw["id"].(string)
	seq, _ := raw["seq"].(float64)
	if id == "" {
		return Record{}, fmt.Errorf("%w: missing id", errors.ErrInvalidRecord)
	}
	decoded, _ := raw["fields"].(map[string]any)
	fields := make(Fields, len(decoded))
	for k, v := range decoded {
		if list, ok := v.([]any); ok {
			strs := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok {
					strs = append(strs, s)
				}
			}
			v = strs
		}
		fields[k] = v
	}
	return Record{ID: id, Seq: uint64(seq), Fields: fields}, nil
}
