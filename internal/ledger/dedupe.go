package ledger

import (
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// KeyIndex is the set of duplicate keys already present in a sheet.
type KeyIndex map[models.DuplicateKey]struct{}

// BuildKeyIndex derives one key per existing data row. The date comes
// from the formatted cell value: the effective value of a date cell is a
// serial number whose rendering depends on sheet locale settings, and
// comparing serials against ISO date strings silently breaks duplicate
// detection. Quantity and price go through the shared normalization so
// "28,230", 28230.0 and 28230 all index identically.
func BuildKeyIndex(rows []sheets.GridRow, kind LayoutKind) KeyIndex {
	cols := kind.KeyColumns()
	need := 0
	for _, c := range cols {
		if c > need {
			need = c
		}
	}

	index := make(KeyIndex)
	for _, row := range rows {
		if len(row.Cells) < need {
			continue
		}
		date := row.Cells[cols[0]-1].Formatted
		if date == "" {
			continue
		}
		index[models.DuplicateKey{
			Date:     date,
			Side:     row.Cells[cols[1]-1].Value.String(),
			Name:     row.Cells[cols[2]-1].Value.String(),
			Quantity: row.Cells[cols[3]-1].Value.Normalize(),
			Price:    row.Cells[cols[4]-1].Value.Normalize(),
		}] = struct{}{}
	}
	return index
}

// FilterNew returns the records whose keys are absent from the index, in
// their original order, together with the number rejected. The input
// slice is never mutated.
func (idx KeyIndex) FilterNew(records []models.TradeRecord) ([]models.TradeRecord, int) {
	accepted := make([]models.TradeRecord, 0, len(records))
	rejected := 0
	for _, r := range records {
		if _, dup := idx[r.Key()]; dup {
			rejected++
			continue
		}
		accepted = append(accepted, r)
	}
	return accepted, rejected
}
