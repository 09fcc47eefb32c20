// Package dataset assembles the visit-level analysis table the model search
// runs over. It is a small column-oriented frame: enough of a DataFrame for
// this codebase without dragging in a full one.
package dataset

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/mat"
)

// Kind is a column's value type.
type Kind int

const (
	Float Kind = iota
	String
)

// Column is one named column. Exactly one of Floats/Strings is populated
// depending on Kind; Null marks missing cells in either.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Null    []bool
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	n     int
}

// NewTable creates an empty table expecting n rows per column.
func NewTable(n int) *Table {
	return &Table{index: make(map[string]int), n: n}
}

// Len returns the row count.
func (t *Table) Len() int { return t.n }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.cols[i]
	}
	return nil
}

// AddFloat appends a float column. nulls may be nil for fully observed data.
func (t *Table) AddFloat(name string, values []float64, nulls []bool) error {
	if len(values) != t.n {
		return fmt.Errorf("dataset: column %s has %d rows, table has %d", name, len(values), t.n)
	}
	if nulls == nil {
		nulls = make([]bool, t.n)
	}
	return t.add(&Column{Name: name, Kind: Float, Floats: values, Null: nulls})
}

// AddString appends a string column.
func (t *Table) AddString(name string, values []string, nulls []bool) error {
	if len(values) != t.n {
		return fmt.Errorf("dataset: column %s has %d rows, table has %d", name, len(values), t.n)
	}
	if nulls == nil {
		nulls = make([]bool, t.n)
	}
	return t.add(&Column{Name: name, Kind: String, Strings: values, Null: nulls})
}

func (t *Table) add(c *Column) error {
	if _, exists := t.index[c.Name]; exists {
		return fmt.Errorf("dataset: duplicate column %s", c.Name)
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// DropNulls returns a copy keeping only rows fully observed in the named
// columns (listwise deletion), plus the number of rows dropped.
func (t *Table) DropNulls(names ...string) (*Table, int, error) {
	keep := make([]bool, t.n)
	for i := range keep {
		keep[i] = true
	}
	for _, name := range names {
		c := t.Column(name)
		if c == nil {
			return nil, 0, fmt.Errorf("dataset: unknown column %s", name)
		}
		for i := 0; i < t.n; i++ {
			if c.Null[i] {
				keep[i] = false
			}
			if c.Kind == Float && !c.Null[i] && math.IsNaN(c.Floats[i]) {
				keep[i] = false
			}
		}
	}
	return t.selectRows(keep)
}

// Filter returns the rows where the govaluate expression evaluates truthy.
// Columns become expression parameters by name; null cells make the row
// fail the filter rather than error out.
func (t *Table) Filter(expression string) (*Table, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("dataset: bad filter %q: %w", expression, err)
	}
	keep := make([]bool, t.n)
	for i := 0; i < t.n; i++ {
		params, ok := t.rowParams(i)
		if !ok {
			continue
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			// Unknown parameter or type mismatch for this row.
			continue
		}
		if b, isBool := result.(bool); isBool && b {
			keep[i] = true
		}
	}
	out, _, err := t.selectRows(keep)
	return out, err
}

func (t *Table) rowParams(i int) (map[string]any, bool) {
	params := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		if c.Null[i] {
			return nil, false
		}
		if c.Kind == Float {
			params[c.Name] = c.Floats[i]
		} else {
			params[c.Name] = c.Strings[i]
		}
	}
	return params, true
}

func (t *Table) selectRows(keep []bool) (*Table, int, error) {
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	out := NewTable(kept)
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind, Null: make([]bool, 0, kept)}
		for i := 0; i < t.n; i++ {
			if !keep[i] {
				continue
			}
			if c.Kind == Float {
				nc.Floats = append(nc.Floats, c.Floats[i])
			} else {
				nc.Strings = append(nc.Strings, c.Strings[i])
			}
			nc.Null = append(nc.Null, c.Null[i])
		}
		if err := out.add(nc); err != nil {
			return nil, 0, err
		}
	}
	return out, t.n - kept, nil
}

// Matrix assembles a design matrix from the named float columns, with an
// all-ones intercept in column 0. Rows with nulls must be dropped first.
func (t *Table) Matrix(names []string) (*mat.Dense, []string, error) {
	if t.n == 0 {
		return nil, nil, fmt.Errorf("dataset: empty table")
	}
	X := mat.NewDense(t.n, len(names)+1, nil)
	ones := make([]float64, t.n)
	for i := range ones {
		ones[i] = 1
	}
	X.SetCol(0, ones)
	for j, name := range names {
		c := t.Column(name)
		if c == nil {
			return nil, nil, fmt.Errorf("dataset: unknown column %s", name)
		}
		if c.Kind != Float {
			return nil, nil, fmt.Errorf("dataset: column %s is not numeric", name)
		}
		X.SetCol(j+1, c.Floats)
	}
	return X, append([]string{"intercept"}, names...), nil
}

// Floats returns the values of a numeric column.
func (t *Table) Floats(name string) ([]float64, error) {
	c := t.Column(name)
	if c == nil {
		return nil, fmt.Errorf("dataset: unknown column %s", name)
	}
	if c.Kind != Float {
		return nil, fmt.Errorf("dataset: column %s is not numeric", name)
	}
	return c.Floats, nil
}
