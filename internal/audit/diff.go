package audit

import (
	"fmt"
	"sort"
)

// Diff computes the ordered field-level changes between two snapshots of an
// entity. Fields present in either map are compared by their rendered
// values; unchanged fields are omitted. The result is sorted by field name
// so a given transition always produces the same diff list.
func Diff(before, after map[string]any) []FieldDiff {
	fields := make(map[string]struct{}, len(before)+len(after))
	for f := range before {
		fields[f] = struct{}{}
	}
	for f := range after {
		fields[f] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var diffs []FieldDiff
	for _, f := range names {
		oldVal, hadOld := before[f]
		newVal, hasNew := after[f]
		if hadOld && hasNew && render(oldVal) == render(newVal) {
			continue
		}
		diffs = append(diffs, FieldDiff{Field: f, Old: normalize(oldVal), New: normalize(newVal)})
	}
	return diffs
}

// Creation computes the diff for a freshly created entity: every field
// transitions from nil to its initial value.
func Creation(after map[string]any) []FieldDiff {
	return Diff(nil, after)
}

// render produces a comparable representation of a field value. Values of
// different concrete types (e.g. decimal.Decimal vs its string form) that
// print identically are treated as equal, which keeps diffs stable across
// load/store round trips.
func render(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// normalize converts Stringer values to plain strings so the stored JSON
// is readable rather than an object dump.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return v
}
