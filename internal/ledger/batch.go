package ledger

import (
	"fmt"

	"github.com/kenshin579/auto-trading-journal/internal/models"
)

// RangeWrite is one rectangular block of scalar values addressed in A1
// notation, ready for a batch value update.
type RangeWrite struct {
	Range string
	Rows  [][]interface{}
}

// BuildRangeWrite projects ordered records into a write block spanning
// the full layout width starting at startRow.
func BuildRangeWrite(records []models.TradeRecord, startRow int, kind LayoutKind) RangeWrite {
	return BuildWindowedRangeWrite(records, startRow, 1, kind.ColumnCount(), kind)
}

// BuildWindowedRangeWrite projects records into a caller-supplied column
// window. Rows whose natural projection is wider than the window are
// truncated; narrower ones are right-padded with empty strings, so every
// row matches the window width exactly.
func BuildWindowedRangeWrite(records []models.TradeRecord, startRow, startCol, endCol int, kind LayoutKind) RangeWrite {
	width := endCol - startCol + 1
	rows := make([][]interface{}, 0, len(records))
	for i := range records {
		rows = append(rows, fitRow(kind.Row(&records[i]), width))
	}
	endRow := startRow + len(records) - 1
	return RangeWrite{
		Range: fmt.Sprintf("%s%d:%s%d", ColLetter(startCol), startRow, ColLetter(endCol), endRow),
		Rows:  rows,
	}
}

func fitRow(row []interface{}, width int) []interface{} {
	if len(row) > width {
		return row[:width]
	}
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

// ColLetter converts a 1-based column number to its letter form
// (1 -> A, 26 -> Z, 27 -> AA).
func ColLetter(col int) string {
	letters := ""
	for col > 0 {
		col--
		letters = string(rune('A'+col%26)) + letters
		col /= 26
	}
	return letters
}
