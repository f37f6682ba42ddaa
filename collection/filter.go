package collection

import (
	"slices"
	"time"
)

type Op int

const (
	Equal Op = iota
	ArrayContains
)

type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. An empty filter matches every record.
type Filter []Condition

func Where(field string, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

func (f Filter) And(field string, op Op, value any) Filter {
	return append(slices.Clone(f), Condition{Field: field, Op: op, Value: value})
}

func (f Filter) Match(fields Fields) bool {
	for _, c := range f {
		if !c.match(fields) {
			return false
		}
	}
	return true
}

func (c Condition) match(fields Fields) bool {
	switch c.Op {
	case Equal:
		got, want := canonical(fields[c.Field]), canonical(c.Value)
		if !scalar(got) || !scalar(want) {
			return false
		}
		return got == want
	case ArrayContains:
		want, ok := canonical(c.Value).(string)
		return ok && slices.Contains(fields.Strings(c.Field), want)
	}
	return false
}

// canonical brings native times and their encoded text form to the same comparable value.
func canonical(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case int:
		return float64(t)
	}
	return v
}

func scalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64:
		return true
	}
	return false
}
