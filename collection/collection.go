// Package collection holds the record model shared by every collection client:
// names, records, snapshots, filters and the server-side field operations.
package collection

import (
	"slices"
	"time"
)

type Name string

const (
	Subjects      Name = "children"
	Messages      Name = "messages"
	AttendanceLog Name = "logs"
)

// Record is one document of a collection.
// Seq is the arrival order assigned by the store on append and never changes.
type Record struct {
	ID     string
	Seq    uint64
	Fields Fields
}

// Snapshot is the full, filtered content of a collection at a given version.
// Records are ordered by Seq.
type Snapshot struct {
	Name    Name
	Version uint64
	Records []Record
}

// Select keeps the records matching the filter, in order.
func (s Snapshot) Select(filter Filter) Snapshot {
	if len(filter) == 0 {
		return s
	}
	out := Snapshot{Name: s.Name, Version: s.Version, Records: make([]Record, 0, len(s.Records))}
	for _, r := range s.Records {
		if filter.Match(r.Fields) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// SortBySeq orders records by arrival, ties broken by id.
func SortBySeq(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// Fields is the content of a record. Values are string, bool, float64, time.Time,
// []string or nil once resolved; writes may also carry field operations.
type Fields map[string]any

func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Time accepts both native times and the RFC 3339 text form used by the encoded stores.
func (f Fields) Time(key string) (time.Time, bool) {
	switch v := f[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// TimePtr is Time for optional fields.
func (f Fields) TimePtr(key string) *time.Time {
	t, ok := f.Time(key)
	if !ok {
		return nil
	}
	return &t
}

func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone copies the map and any string slice it holds.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if s, ok := v.([]string); ok {
			v = slices.Clone(s)
		}
		out[k] = v
	}
	return out
}
