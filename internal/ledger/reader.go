package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// ReadAllRecords rebuilds trade records from every sheet whose header
// row matches a known layout. Dashboards and scratch sheets are skipped.
// A sheet whose grid cannot be read contributes no records; the failure
// is logged and the remaining sheets are still read.
//
// Every write-time transformation is inverted here: the date comes from
// the formatted cell value, numeric columns from the effective value,
// and the stored profit-rate fraction is scaled back to a percentage.
func (e *Engine) ReadAllRecords(ctx context.Context) ([]models.TradeRecord, error) {
	var names []string
	err := e.retry.Do(ctx, "list sheets", func() error {
		var err error
		names, err = e.api.ListSheets(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not list sheets: %w", err)
	}

	var all []models.TradeRecord
	for _, name := range names {
		kind, ok := e.classifySheet(ctx, name)
		if !ok {
			continue
		}
		all = append(all, e.readSheet(ctx, name, kind)...)
	}
	e.logger.Info("Read records from spreadsheet", zap.Int("records", len(all)))
	return all, nil
}

// classifySheet matches a sheet's header row against the known layouts.
func (e *Engine) classifySheet(ctx context.Context, sheetName string) (LayoutKind, bool) {
	var rows []sheets.GridRow
	err := e.retry.Do(ctx, "fetch header row", func() error {
		var err error
		rows, err = e.api.FetchGrid(ctx, sheetName,
			fmt.Sprintf("A1:%s1", ColLetter(LayoutForeign.ColumnCount())))
		return err
	})
	if err != nil {
		e.logger.Warn("Could not read header row, skipping sheet",
			zap.String("sheet", sheetName),
			zap.Error(err))
		return LayoutDomestic, false
	}
	if len(rows) == 0 {
		return LayoutDomestic, false
	}

	headers := make([]string, 0, len(rows[0].Cells))
	for _, cell := range rows[0].Cells {
		headers = append(headers, cell.Value.String())
	}
	return DetectLayout(headers)
}

func (e *Engine) readSheet(ctx context.Context, sheetName string, kind LayoutKind) []models.TradeRecord {
	rowCount := e.rowCount(ctx, sheetName)

	var rows []sheets.GridRow
	err := e.retry.Do(ctx, "fetch grid for read-back", func() error {
		var err error
		rows, err = e.api.FetchGrid(ctx, sheetName,
			fmt.Sprintf("A2:%s%d", ColLetter(kind.ColumnCount()), rowCount))
		return err
	})
	if err != nil {
		e.logger.Warn("Could not read sheet, skipping",
			zap.String("sheet", sheetName),
			zap.Error(err))
		return nil
	}

	records := make([]models.TradeRecord, 0, len(rows))
	for _, row := range rows {
		if rec, ok := rowToRecord(row.Cells, kind, sheetName); ok {
			records = append(records, rec)
		}
	}
	e.logger.Debug("Read sheet",
		zap.String("sheet", sheetName),
		zap.String("layout", kind.String()),
		zap.Int("records", len(records)))
	return records
}

// rowToRecord rebuilds one record from a grid row. Rows with an empty
// date or fewer cells than the layout requires are not records.
func rowToRecord(cells []sheets.GridCell, kind LayoutKind, account string) (models.TradeRecord, bool) {
	if len(cells) < kind.ColumnCount() {
		return models.TradeRecord{}, false
	}
	date := cells[0].Formatted
	if date == "" {
		return models.TradeRecord{}, false
	}

	str := func(i int) string { return cells[i].Value.String() }
	num := func(i int) decimal.Decimal { return decimal.NewFromFloat(cells[i].Value.Float()) }

	if kind == LayoutForeign {
		return models.TradeRecord{
			Date:       date,
			Side:       models.Side(str(1)),
			Currency:   str(2),
			Code:       str(3),
			Name:       str(4),
			Quantity:   num(5),
			Price:      num(6),
			Gross:      num(7),
			Rate:       num(8),
			GrossHome:  num(9),
			Fee:        num(10),
			Tax:        num(11),
			Profit:     num(12),
			ProfitHome: num(13),
			ProfitRate: num(14).Shift(2),
			Account:    account,
		}, true
	}

	gross := num(5)
	profit := num(7)
	return models.TradeRecord{
		Date:       date,
		Side:       models.Side(str(1)),
		Name:       str(2),
		Quantity:   num(3),
		Price:      num(4),
		Gross:      gross,
		Currency:   "KRW",
		Rate:       decimal.NewFromInt(1),
		GrossHome:  gross,
		Fee:        num(6),
		Profit:     profit,
		ProfitHome: profit,
		ProfitRate: num(8).Shift(2),
		Account:    account,
	}, true
}
