package analytics

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is one equality restriction on the accident table.
type Condition struct {
	name string
	expr string
	arg  any
}

// YearEquals restricts to accidents in the given calendar year.
func YearEquals(year int) Condition {
	return Condition{name: "year", expr: "EXTRACT(YEAR FROM a.accident_date) = %s", arg: year}
}

// BoroughEquals restricts to one borough.
func BoroughEquals(borough string) Condition {
	return Condition{name: "borough", expr: "a.borough = %s", arg: borough}
}

// SeverityEquals restricts to one severity label.
func SeverityEquals(severity string) Condition {
	return Condition{name: "severity", expr: "a.severity = %s", arg: severity}
}

// Filter is a conjunction of conditions. The zero value matches every row.
// Values are always bound as parameters, never interpolated into SQL.
type Filter struct {
	conditions []Condition
}

// NewFilter combines conditions with AND.
func NewFilter(conditions ...Condition) Filter {
	return Filter{conditions: conditions}
}

// With returns a copy of f with extra conditions appended.
func (f Filter) With(conditions ...Condition) Filter {
	combined := make([]Condition, 0, len(f.conditions)+len(conditions))
	combined = append(combined, f.conditions...)
	combined = append(combined, conditions...)
	return Filter{conditions: combined}
}

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool {
	return len(f.conditions) == 0
}

// Where renders "WHERE c1 AND c2 ..." with $1..$n placeholders and returns the
// bound values in the same order. An empty filter renders "".
func (f Filter) Where() (string, []any) {
	if f.Empty() {
		return "", nil
	}
	parts := make([]string, len(f.conditions))
	args := make([]any, len(f.conditions))
	for i, c := range f.conditions {
		parts[i] = fmt.Sprintf(c.expr, "$"+strconv.Itoa(i+1))
		args[i] = c.arg
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// Key identifies the filter for caching.
func (f Filter) Key() string {
	var b strings.Builder
	for i, c := range f.conditions {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%q", c.name, fmt.Sprint(c.arg))
	}
	return b.String()
}
