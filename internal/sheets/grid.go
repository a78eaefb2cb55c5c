package sheets

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// ValueKind discriminates the four effective-value variants a cell can hold.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// CellValue is the typed effective value of one cell. Exactly one of the
// payload fields is meaningful, selected by Kind.
type CellValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// GridCell carries both representations of a cell: the precise effective
// value and the locale-rendered display string. Date columns must be read
// through Formatted, everything else through Value.
type GridCell struct {
	Value     CellValue
	Formatted string
}

// GridRow is one row of a fetched grid snapshot.
type GridRow struct {
	Cells []GridCell
}

// ColorRange is a rectangular region tagged with a background fill.
// Rows and columns are 1-based; all bounds are inclusive.
type ColorRange struct {
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
	Color    *sheetsv4.Color
}

// FormatRange is a rectangular region tagged with a number-format pattern.
// Rows and columns are 1-based; all bounds are inclusive.
type FormatRange struct {
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
	Type     string // "NUMBER" or "PERCENT"
	Pattern  string
}

// StringValue returns a new string-kind cell value.
func StringValue(s string) CellValue { return CellValue{Kind: KindString, Str: s} }

// NumberValue returns a new number-kind cell value.
func NumberValue(f float64) CellValue { return CellValue{Kind: KindNumber, Num: f} }

// BoolValue returns a new bool-kind cell value.
func BoolValue(b bool) CellValue { return CellValue{Kind: KindBool, Bool: b} }

// IsEmpty reports whether the cell holds none of the three value kinds.
func (v CellValue) IsEmpty() bool { return v.Kind == KindEmpty }

// String renders the effective value as text without normalization.
func (v CellValue) String() string {
	switch v.Kind {
	case KindEmpty:
		return ""
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// Float returns the numeric value, or 0 for every other kind.
func (v CellValue) Float() float64 {
	if v.Kind == KindNumber {
		return v.Num
	}
	return 0
}

// Normalize renders the value in the canonical form used by duplicate
// keys: integral numbers lose their decimal point (2.0 -> "2") and
// strings lose thousands-separator commas ("28,230" -> "28230"), so a
// value round-tripped through the sheet compares equal to a freshly
// parsed one.
func (v CellValue) Normalize() string {
	switch v.Kind {
	case KindEmpty:
		return ""
	case KindString:
		return strings.ReplaceAll(v.Str, ",", "")
	case KindNumber:
		return decimal.NewFromFloat(v.Num).String()
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// cellFromAPI decodes one API cell into the dual representation.
func cellFromAPI(cd *sheetsv4.CellData) GridCell {
	cell := GridCell{Formatted: cd.FormattedValue}
	ev := cd.EffectiveValue
	if ev == nil {
		return cell
	}
	switch {
	case ev.StringValue != nil:
		cell.Value = StringValue(*ev.StringValue)
	case ev.NumberValue != nil:
		cell.Value = NumberValue(*ev.NumberValue)
	case ev.BoolValue != nil:
		cell.Value = BoolValue(*ev.BoolValue)
	}
	return cell
}

// rowsFromAPI converts a fetched GridData block into GridRows.
func rowsFromAPI(data *sheetsv4.GridData) []GridRow {
	if data == nil {
		return nil
	}
	rows := make([]GridRow, 0, len(data.RowData))
	for _, rd := range data.RowData {
		row := GridRow{Cells: make([]GridCell, 0, len(rd.Values))}
		for _, cd := range rd.Values {
			row.Cells = append(row.Cells, cellFromAPI(cd))
		}
		rows = append(rows, row)
	}
	return rows
}

// IsEmpty reports whether no cell in the row holds an effective value.
func (r GridRow) IsEmpty() bool {
	for _, c := range r.Cells {
		if !c.Value.IsEmpty() {
			return false
		}
	}
	return true
}
