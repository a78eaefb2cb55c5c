package ledger

import (
	"sort"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// Span is a maximal run of adjacent integers, inclusive on both ends.
type Span struct {
	Start int
	End   int
}

// GroupContiguous merges a set of indices into the minimal list of
// ascending inclusive spans covering exactly the input. The backing API
// bills by request count, not cell count, so collapsing same-treatment
// rows into the fewest rectangles is a real cost concern.
func GroupContiguous(indices []int) []Span {
	if len(indices) == 0 {
		return nil
	}
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	spans := []Span{{Start: sorted[0], End: sorted[0]}}
	for _, idx := range sorted[1:] {
		last := &spans[len(spans)-1]
		if idx == last.End {
			continue // duplicate index
		}
		if idx == last.End+1 {
			last.End = idx
			continue
		}
		spans = append(spans, Span{Start: idx, End: idx})
	}
	return spans
}

// Eight light fills rotated across date groups.
var colorPalette = []*sheetsv4.Color{
	{Red: 1.0, Green: 0.9, Blue: 0.9},
	{Red: 0.9, Green: 1.0, Blue: 0.9},
	{Red: 0.9, Green: 0.9, Blue: 1.0},
	{Red: 1.0, Green: 1.0, Blue: 0.9},
	{Red: 1.0, Green: 0.9, Blue: 1.0},
	{Red: 0.9, Green: 1.0, Blue: 1.0},
	{Red: 0.95, Green: 0.95, Blue: 0.85},
	{Red: 0.85, Green: 0.95, Blue: 0.95},
}

// DateColorRanges assigns one palette color per trade date, cycling in
// order of each date's first appearance, and emits the fewest rectangles
// covering the rows of each date.
func DateColorRanges(records []models.TradeRecord, startRow, startCol, endCol int) []sheets.ColorRange {
	byDate := make(map[string][]int)
	var order []string
	for i, r := range records {
		if _, seen := byDate[r.Date]; !seen {
			order = append(order, r.Date)
		}
		byDate[r.Date] = append(byDate[r.Date], i)
	}

	var ranges []sheets.ColorRange
	for gi, date := range order {
		color := colorPalette[gi%len(colorPalette)]
		for _, span := range GroupContiguous(byDate[date]) {
			ranges = append(ranges, sheets.ColorRange{
				StartRow: startRow + span.Start,
				EndRow:   startRow + span.End,
				StartCol: startCol,
				EndCol:   endCol,
				Color:    color,
			})
		}
	}
	return ranges
}

// NumberFormatRanges builds the format rectangles for an inserted block:
// the layout's common formats once over the full range, plus, for
// layouts with trade-currency columns, a per-currency pattern applied to
// the fewest rectangles covering each currency's rows.
func NumberFormatRanges(records []models.TradeRecord, startRow int, kind LayoutKind) []sheets.FormatRange {
	if len(records) == 0 {
		return nil
	}
	endRow := startRow + len(records) - 1

	var ranges []sheets.FormatRange
	for _, cf := range kind.CommonFormats() {
		ranges = append(ranges, sheets.FormatRange{
			StartRow: startRow,
			EndRow:   endRow,
			StartCol: cf.Col,
			EndCol:   cf.Col,
			Type:     cf.Type,
			Pattern:  cf.Pattern,
		})
	}

	fxCols := kind.FXColumns()
	if len(fxCols) == 0 {
		return ranges
	}

	byCurrency := make(map[string][]int)
	var order []string
	for i, r := range records {
		if _, seen := byCurrency[r.Currency]; !seen {
			order = append(order, r.Currency)
		}
		byCurrency[r.Currency] = append(byCurrency[r.Currency], i)
	}

	for _, currency := range order {
		pattern := CurrencyPattern(currency)
		for _, span := range GroupContiguous(byCurrency[currency]) {
			for _, col := range fxCols {
				ranges = append(ranges, sheets.FormatRange{
					StartRow: startRow + span.Start,
					EndRow:   startRow + span.End,
					StartCol: col,
					EndCol:   col,
					Pattern:  pattern,
				})
			}
		}
	}
	return ranges
}
