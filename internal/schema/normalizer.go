// Package schema maps arbitrary column layouts onto the canonical
// five-field access-log schema.
package schema

import (
	"fmt"
	"strings"

	"github.com/atikulmunna/loglens/internal/model"
)

// aliases are accepted in place of a canonical column name.
var aliases = map[string]string{
	"ip": model.ColClientAddress,
}

// SchemaError reports input that neither contains nor implies the five
// canonical fields.
type SchemaError struct {
	Columns []string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: missing required fields %s (have %d columns: %s)",
		strings.Join(e.Missing, ", "), len(e.Columns), strings.Join(e.Columns, ", "))
}

// Normalize returns a copy of t whose columns include every canonical name.
//
// A table that already names all canonical columns (in any order) passes
// through; names are matched case-insensitively. Otherwise the first five
// columns are renamed in positional order: time, client_address, method,
// resource, status. The positional rename is a heuristic; nothing checks
// that the source columns really arrive in that order.
func Normalize(t model.Table) (model.Table, error) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		name := strings.TrimSpace(c)
		lower := strings.ToLower(name)
		if canon, ok := aliases[lower]; ok {
			name = canon
		} else if isCanonical(lower) {
			name = lower
		}
		cols[i] = name
	}

	out := model.Table{
		Columns: cols,
		Rows:    append([]model.RawRecord(nil), t.Rows...),
	}
	if len(missing(cols)) == 0 {
		return out, nil
	}

	if len(cols) < len(model.CanonicalColumns) {
		return model.Table{}, &SchemaError{Columns: t.Columns, Missing: missing(cols)}
	}
	copy(out.Columns, model.CanonicalColumns)
	return out, nil
}

// Columns holds the positions of the canonical fields within a row.
type Columns struct {
	Time, ClientAddress, Method, Resource, Status int
	width                                         int
}

// Index locates the canonical columns of a normalized table.
func Index(t model.Table) (Columns, error) {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, seen := pos[c]; !seen {
			pos[c] = i
		}
	}
	if m := missing(t.Columns); len(m) > 0 {
		return Columns{}, &SchemaError{Columns: t.Columns, Missing: m}
	}

	c := Columns{
		Time:          pos[model.ColTime],
		ClientAddress: pos[model.ColClientAddress],
		Method:        pos[model.ColMethod],
		Resource:      pos[model.ColResource],
		Status:        pos[model.ColStatus],
	}
	for _, p := range []int{c.Time, c.ClientAddress, c.Method, c.Resource, c.Status} {
		if p+1 > c.width {
			c.width = p + 1
		}
	}
	return c, nil
}

// Fields extracts the canonical fields from row. It reports false when the
// row is too short to hold them.
func (c Columns) Fields(row model.RawRecord) (model.Fields, bool) {
	if len(row) < c.width {
		return model.Fields{}, false
	}
	return model.Fields{
		Time:          strings.TrimSpace(row[c.Time]),
		ClientAddress: strings.TrimSpace(row[c.ClientAddress]),
		Method:        strings.TrimSpace(row[c.Method]),
		Resource:      strings.TrimSpace(row[c.Resource]),
		Status:        strings.TrimSpace(row[c.Status]),
	}, true
}

func isCanonical(name string) bool {
	for _, c := range model.CanonicalColumns {
		if c == name {
			return true
		}
	}
	return false
}

func missing(cols []string) []string {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	var out []string
	for _, want := range model.CanonicalColumns {
		if !have[want] {
			out = append(out, want)
		}
	}
	return out
}
