package history

import (
	"sort"
	"time"
)

// Table is an immutable query result: rows ordered by ascending timestamp,
// one float64 column per asset symbol. Missing cells hold the NaN sentinel.
// The constructor copies its inputs and every accessor returns copies, so a
// table handed to a caller never aliases a live buffer.
type Table struct {
	index   []time.Time
	columns map[string][]float64
}

// NewTable builds a table from a shared row index and per-symbol columns.
// Columns shorter or longer than the index are truncated or padded with the
// missing sentinel so every column matches the index length.
func NewTable(index []time.Time, columns map[string][]float64) *Table {
	idx := make([]time.Time, len(index))
	copy(idx, index)

	cols := make(map[string][]float64, len(columns))
	for symbol, values := range columns {
		col := make([]float64, len(idx))
		for i := range col {
			if i < len(values) {
				col[i] = values[i]
			} else {
				col[i] = Missing()
			}
		}
		cols[symbol] = col
	}
	return &Table{index: idx, columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.index)
}

// Index returns a copy of the row timestamps in ascending order.
func (t *Table) Index() []time.Time {
	idx := make([]time.Time, len(t.index))
	copy(idx, t.index)
	return idx
}

// Symbols returns the column identifiers in lexical order.
func (t *Table) Symbols() []string {
	symbols := make([]string, 0, len(t.columns))
	for symbol := range t.columns {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Column returns a copy of one symbol's values.
func (t *Table) Column(symbol string) ([]float64, bool) {
	values, ok := t.columns[symbol]
	if !ok {
		return nil, false
	}
	col := make([]float64, len(values))
	copy(col, values)
	return col, true
}

// Value returns the cell at row i for the given symbol.
func (t *Table) Value(i int, symbol string) (float64, bool) {
	values, ok := t.columns[symbol]
	if !ok || i < 0 || i >= len(values) {
		return 0, false
	}
	return values[i], true
}
