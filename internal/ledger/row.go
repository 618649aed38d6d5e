package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/pkg/money"
)

// Cell is one column of a ledger row
type Cell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Values is the column → value form of a row, as recorded by the sheet
type Values map[string]string

// Row is an ordered, immutable ledger row
type Row struct {
	cells []Cell
	index map[string]int
}

// NewRow builds a row from cells in the given order. A repeated column keeps its last value.
func NewRow(cells []Cell) *Row {
	r := &Row{
		cells: make([]Cell, 0, len(cells)),
		index: make(map[string]int, len(cells)),
	}
	for _, c := range cells {
		if i, ok := r.index[c.Column]; ok {
			r.cells[i].Value = c.Value
			continue
		}
		r.index[c.Column] = len(r.cells)
		r.cells = append(r.cells, c)
	}
	return r
}

// RowFromValues rebuilds a previous row from its map form. Column order is alphabetical.
func RowFromValues(v Values) *Row {
	if v == nil {
		return nil
	}
	cols := make([]string, 0, len(v))
	for c := range v {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	cells := make([]Cell, len(cols))
	for i, c := range cols {
		cells[i] = Cell{Column: c, Value: v[c]}
	}
	return NewRow(cells)
}

// Cells returns a copy of the row's cells in order
func (r *Row) Cells() []Cell {
	if r == nil {
		return nil
	}
	out := make([]Cell, len(r.cells))
	copy(out, r.cells)
	return out
}

// Columns returns the column names in order
func (r *Row) Columns() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.cells))
	for i, c := range r.cells {
		out[i] = c.Column
	}
	return out
}

// Values returns the map form of the row
func (r *Row) Values() Values {
	if r == nil {
		return nil
	}
	out := make(Values, len(r.cells))
	for _, c := range r.cells {
		out[c.Column] = c.Value
	}
	return out
}

// Get returns the raw value of a column. A nil row has no columns.
func (r *Row) Get(column string) (string, bool) {
	if r == nil {
		return "", false
	}
	i, ok := r.index[column]
	if !ok {
		return "", false
	}
	return r.cells[i].Value, true
}

// Decimal parses a column loosely (currency signs, separators and spaces are ignored).
// found is false when the row or the column is absent.
func (r *Row) Decimal(column string) (value decimal.Decimal, found bool, err error) {
	raw, ok := r.Get(column)
	if !ok {
		return decimal.Zero, false, nil
	}
	v, err := money.ParseLoose(raw)
	if err != nil {
		return decimal.Zero, true, err
	}
	return v, true, nil
}
