package ledger

import (
	"strings"

	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// Extent is the inferred append point of one sheet: the next writable
// row, and the column window the last data row actually used.
type Extent struct {
	NextRow  int
	StartCol int
	EndCol   int
}

// Default column window when a sheet has no data rows beyond the header.
const (
	defaultStartCol = 2
	defaultEndCol   = 9
)

// ScanExtent walks a grid snapshot from row 1 and locates the last
// non-empty row, then re-examines only that row for its first and last
// populated column. A run of emptyRowThreshold consecutive empty rows
// ends the walk, which bounds cost on huge, mostly-empty sheets while
// tolerating isolated blank rows inside real data.
//
// The append point and the column window are inferred independently: a
// human may have merged or widened columns since the last run, so a
// fixed window would be unsafe.
func ScanExtent(rows []sheets.GridRow, emptyRowThreshold int) Extent {
	lastDataRow := 1 // the header row at minimum
	streak := 0

	for i, row := range rows {
		if row.IsEmpty() {
			streak++
			if streak >= emptyRowThreshold {
				break
			}
			continue
		}
		lastDataRow = i + 1
		streak = 0
	}

	ext := Extent{
		NextRow:  lastDataRow + 1,
		StartCol: defaultStartCol,
		EndCol:   defaultEndCol,
	}
	if lastDataRow <= 1 || lastDataRow > len(rows) {
		return ext
	}

	startCol, endCol := 0, 0
	for ci, cell := range rows[lastDataRow-1].Cells {
		if cell.Value.IsEmpty() {
			continue
		}
		// Blank-string cells are present but carry no data.
		if strings.TrimSpace(cell.Value.String()) == "" {
			continue
		}
		if startCol == 0 {
			startCol = ci + 1
		}
		endCol = ci + 1
	}
	if startCol == 0 {
		return ext
	}
	if endCol < startCol {
		endCol = startCol + 7
	}
	ext.StartCol = startCol
	ext.EndCol = endCol
	return ext
}
