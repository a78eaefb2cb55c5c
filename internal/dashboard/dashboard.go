// Package dashboard rebuilds the Dashboard sheet from records read back
// out of the trade sheets: portfolio totals, monthly performance,
// per-instrument breakdown and a handful of investment metrics.
package dashboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kenshin579/auto-trading-journal/internal/ledger"
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// SheetName is the dashboard's fixed sheet title.
const SheetName = "Dashboard"

var percentFormat = sheets.FormatRange{Type: "PERCENT", Pattern: "0.00%"}

// Generator writes the dashboard. It owns no record state; every call
// rebuilds the sheet from the records it is given.
type Generator struct {
	logger *zap.Logger
	api    sheets.API
	retry  *ledger.Retryer
}

// NewGenerator creates a dashboard generator.
func NewGenerator(logger *zap.Logger, api sheets.API, retry *ledger.Retryer) *Generator {
	return &Generator{logger: logger, api: api, retry: retry}
}

// Generate clears and rewrites the dashboard sheet from the given
// records.
func (g *Generator) Generate(ctx context.Context, records []models.TradeRecord) error {
	if err := g.ensureSheet(ctx); err != nil {
		return err
	}

	row := 1
	row, err := g.writePortfolioSummary(ctx, records, row)
	if err != nil {
		return err
	}
	row++ // blank separator row
	monthlyStart := row
	row, err = g.writeMonthlySummary(ctx, records, row)
	if err != nil {
		return err
	}
	row++
	instrumentStart := row
	row, err = g.writeInstrumentSummary(ctx, records, row)
	if err != nil {
		return err
	}
	row++
	metricsStart := row
	row, err = g.writeMetrics(ctx, records, row)
	if err != nil {
		return err
	}

	if err := g.applyFormats(ctx, monthlyStart, instrumentStart, metricsStart, row); err != nil {
		return err
	}

	g.logger.Info("Dashboard regenerated", zap.Int("records", len(records)))
	return nil
}

func (g *Generator) ensureSheet(ctx context.Context) error {
	var names []string
	err := g.retry.Do(ctx, "list sheets", func() error {
		var err error
		names, err = g.api.ListSheets(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("could not list sheets: %w", err)
	}

	exists := false
	for _, n := range names {
		if n == SheetName {
			exists = true
			break
		}
	}
	if !exists {
		if err := g.retry.Do(ctx, "create dashboard", func() error {
			return g.api.CreateSheet(ctx, SheetName)
		}); err != nil {
			return fmt.Errorf("could not create dashboard sheet: %w", err)
		}
	} else {
		if err := g.retry.Do(ctx, "clear dashboard", func() error {
			return g.api.ClearRange(ctx, SheetName, "A1:Z")
		}); err != nil {
			return fmt.Errorf("could not clear dashboard: %w", err)
		}
		if err := g.retry.Do(ctx, "clear dashboard colors", func() error {
			return g.api.ClearBackgroundColors(ctx, SheetName, 1000, 26)
		}); err != nil {
			return fmt.Errorf("could not clear dashboard colors: %w", err)
		}
	}

	return g.retry.Do(ctx, "freeze dashboard header", func() error {
		return g.api.FreezeRows(ctx, SheetName, 1)
	})
}

// writePortfolioSummary emits the two-row headline section and returns
// the next free row.
func (g *Generator) writePortfolioSummary(ctx context.Context, records []models.TradeRecord, startRow int) (int, error) {
	var totalBuy, totalSell, totalProfit decimal.Decimal
	sellCount, winCount := 0, 0
	for _, r := range records {
		switch r.Side {
		case models.SideBuy:
			totalBuy = totalBuy.Add(r.GrossHome)
		case models.SideSell:
			totalSell = totalSell.Add(r.GrossHome)
			totalProfit = totalProfit.Add(r.ProfitHome)
			sellCount++
			if r.ProfitHome.IsPositive() {
				winCount++
			}
		}
	}

	totalReturn := 0.0
	if !totalSell.IsZero() {
		totalReturn = totalProfit.Div(totalSell).InexactFloat64()
	}
	winRate := 0.0
	if sellCount > 0 {
		winRate = float64(winCount) / float64(sellCount)
	}

	headers := []interface{}{
		"Metric", "Total Buy (KRW)", "Total Sell (KRW)", "Realized P/L (KRW)",
		"Total Return (%)", "Trades", "Win Rate (%)",
	}
	values := []interface{}{
		"Value", totalBuy.InexactFloat64(), totalSell.InexactFloat64(),
		totalProfit.InexactFloat64(), totalReturn, len(records), winRate,
	}

	err := g.retry.Do(ctx, "write portfolio summary", func() error {
		return g.api.BatchUpdateCells(ctx, SheetName, map[string][][]interface{}{
			fmt.Sprintf("A%d:G%d", startRow, startRow):     {headers},
			fmt.Sprintf("A%d:G%d", startRow+1, startRow+1): {values},
		})
	})
	if err != nil {
		return 0, fmt.Errorf("could not write portfolio summary: %w", err)
	}
	return startRow + 2, nil
}

type monthlyGroup struct {
	month, account string
	buyCount       int
	buyAmount      decimal.Decimal
	sellCount      int
	sellAmount     decimal.Decimal
	profit         decimal.Decimal
}

// writeMonthlySummary emits one row per (month, account) and returns
// the next free row.
func (g *Generator) writeMonthlySummary(ctx context.Context, records []models.TradeRecord, startRow int) (int, error) {
	groups := make(map[string]*monthlyGroup)
	for _, r := range records {
		if len(r.Date) < 7 {
			continue
		}
		month := r.Date[:7]
		key := month + "\x00" + r.Account
		grp, ok := groups[key]
		if !ok {
			grp = &monthlyGroup{month: month, account: r.Account}
			groups[key] = grp
		}
		switch r.Side {
		case models.SideBuy:
			grp.buyCount++
			grp.buyAmount = grp.buyAmount.Add(r.GrossHome)
		case models.SideSell:
			grp.sellCount++
			grp.sellAmount = grp.sellAmount.Add(r.GrossHome)
			grp.profit = grp.profit.Add(r.ProfitHome)
		}
	}

	ordered := make([]*monthlyGroup, 0, len(groups))
	for _, grp := range groups {
		ordered = append(ordered, grp)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].month != ordered[j].month {
			return ordered[i].month < ordered[j].month
		}
		return ordered[i].account < ordered[j].account
	})

	headers := []interface{}{
		"Month", "Account", "Buys", "Buy Amount (KRW)",
		"Sells", "Sell Amount (KRW)", "Realized P/L (KRW)", "Return (%)",
	}
	rows := make([][]interface{}, 0, len(ordered))
	for _, grp := range ordered {
		ret := 0.0
		if !grp.sellAmount.IsZero() {
			ret = grp.profit.Div(grp.sellAmount).InexactFloat64()
		}
		rows = append(rows, []interface{}{
			grp.month, grp.account,
			grp.buyCount, grp.buyAmount.InexactFloat64(),
			grp.sellCount, grp.sellAmount.InexactFloat64(),
			grp.profit.InexactFloat64(), ret,
		})
	}

	return g.writeSection(ctx, "monthly summary", headers, rows, startRow, "H")
}

type instrumentGroup struct {
	name, code, account, currency string
	buyQty, buyAmount             decimal.Decimal
	sellQty, sellAmount           decimal.Decimal
	profit                        decimal.Decimal
}

// writeInstrumentSummary emits one row per instrument and returns the
// next free row.
func (g *Generator) writeInstrumentSummary(ctx context.Context, records []models.TradeRecord, startRow int) (int, error) {
	groups := make(map[string]*instrumentGroup)
	for _, r := range records {
		key := r.Name + "\x00" + r.Code + "\x00" + r.Account + "\x00" + r.Currency
		grp, ok := groups[key]
		if !ok {
			grp = &instrumentGroup{name: r.Name, code: r.Code, account: r.Account, currency: r.Currency}
			groups[key] = grp
		}
		switch r.Side {
		case models.SideBuy:
			grp.buyQty = grp.buyQty.Add(r.Quantity)
			grp.buyAmount = grp.buyAmount.Add(r.GrossHome)
		case models.SideSell:
			grp.sellQty = grp.sellQty.Add(r.Quantity)
			grp.sellAmount = grp.sellAmount.Add(r.GrossHome)
			grp.profit = grp.profit.Add(r.ProfitHome)
		}
	}

	var totalBuy decimal.Decimal
	ordered := make([]*instrumentGroup, 0, len(groups))
	for _, grp := range groups {
		totalBuy = totalBuy.Add(grp.buyAmount)
		ordered = append(ordered, grp)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })

	headers := []interface{}{
		"Name", "Code", "Account", "Currency",
		"Buy Qty", "Buy Amount (KRW)", "Sell Qty", "Sell Amount (KRW)",
		"Realized P/L (KRW)", "Return (%)", "Weight (%)",
	}
	rows := make([][]interface{}, 0, len(ordered))
	for _, grp := range ordered {
		ret, weight := 0.0, 0.0
		if !grp.sellAmount.IsZero() {
			ret = grp.profit.Div(grp.sellAmount).InexactFloat64()
		}
		if !totalBuy.IsZero() {
			weight = grp.buyAmount.Div(totalBuy).InexactFloat64()
		}
		rows = append(rows, []interface{}{
			grp.name, grp.code, grp.account, grp.currency,
			grp.buyQty.InexactFloat64(), grp.buyAmount.InexactFloat64(),
			grp.sellQty.InexactFloat64(), grp.sellAmount.InexactFloat64(),
			grp.profit.InexactFloat64(), ret, weight,
		})
	}

	return g.writeSection(ctx, "instrument summary", headers, rows, startRow, "K")
}

// writeMetrics emits the two-column metrics block and returns the next
// free row.
func (g *Generator) writeMetrics(ctx context.Context, records []models.TradeRecord, startRow int) (int, error) {
	var totalBuy decimal.Decimal
	accountBuy := make(map[string]decimal.Decimal)
	currencyBuy := make(map[string]decimal.Decimal)
	instrumentBuy := make(map[string]decimal.Decimal)
	var sells []models.TradeRecord
	for _, r := range records {
		switch r.Side {
		case models.SideBuy:
			totalBuy = totalBuy.Add(r.GrossHome)
			accountBuy[r.Account] = accountBuy[r.Account].Add(r.GrossHome)
			currencyBuy[r.Currency] = currencyBuy[r.Currency].Add(r.GrossHome)
			instrumentBuy[r.Name] = instrumentBuy[r.Name].Add(r.GrossHome)
		case models.SideSell:
			sells = append(sells, r)
		}
	}

	weight := func(amount decimal.Decimal) float64 {
		if totalBuy.IsZero() {
			return 0
		}
		return amount.Div(totalBuy).InexactFloat64()
	}

	rows := [][]interface{}{{"[Investment Metrics]", ""}}

	rows = append(rows, []interface{}{"Weight by account", ""})
	for _, account := range sortedKeys(accountBuy) {
		rows = append(rows, []interface{}{"  " + account, weight(accountBuy[account])})
	}

	rows = append(rows, []interface{}{"Weight by currency", ""})
	for _, currency := range sortedKeys(currencyBuy) {
		rows = append(rows, []interface{}{"  " + currency, weight(currencyBuy[currency])})
	}

	// Top-5 concentration over buy amounts.
	amounts := make([]decimal.Decimal, 0, len(instrumentBuy))
	for _, amount := range instrumentBuy {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].GreaterThan(amounts[j]) })
	var top5 decimal.Decimal
	for i, amount := range amounts {
		if i == 5 {
			break
		}
		top5 = top5.Add(amount)
	}
	rows = append(rows, []interface{}{"Top-5 concentration", weight(top5)})

	// Average win and loss rates as fractions, then payoff ratio.
	var winSum, lossSum decimal.Decimal
	winN, lossN := 0, 0
	for _, r := range sells {
		switch {
		case r.ProfitRate.IsPositive():
			winSum = winSum.Add(r.ProfitRate)
			winN++
		case r.ProfitRate.IsNegative():
			lossSum = lossSum.Add(r.ProfitRate)
			lossN++
		}
	}
	avgWin, avgLoss := 0.0, 0.0
	if winN > 0 {
		avgWin = winSum.Div(decimal.NewFromInt(int64(winN))).Shift(-2).InexactFloat64()
	}
	if lossN > 0 {
		avgLoss = lossSum.Div(decimal.NewFromInt(int64(lossN))).Shift(-2).InexactFloat64()
	}
	rows = append(rows, []interface{}{"Average win rate", avgWin})
	rows = append(rows, []interface{}{"Average loss rate", avgLoss})

	payoff := 0.0
	if avgLoss != 0 {
		payoff = avgWin / avgLoss
		if payoff < 0 {
			payoff = -payoff
		}
	}
	rows = append(rows, []interface{}{"Payoff ratio", payoff})

	if len(sells) > 0 {
		best, worst := sells[0], sells[0]
		for _, r := range sells[1:] {
			if r.ProfitHome.GreaterThan(best.ProfitHome) {
				best = r
			}
			if r.ProfitHome.LessThan(worst.ProfitHome) {
				worst = r
			}
		}
		rows = append(rows,
			[]interface{}{"Best trade", fmt.Sprintf("%s (%s)", best.Name, best.ProfitHome.StringFixed(0))},
			[]interface{}{"Worst trade", fmt.Sprintf("%s (%s)", worst.Name, worst.ProfitHome.StringFixed(0))},
		)
	}

	endRow := startRow + len(rows) - 1
	err := g.retry.Do(ctx, "write metrics", func() error {
		return g.api.BatchUpdateCells(ctx, SheetName, map[string][][]interface{}{
			fmt.Sprintf("A%d:B%d", startRow, endRow): rows,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("could not write metrics: %w", err)
	}
	return endRow + 1, nil
}

// writeSection writes a header row followed by data rows spanning
// columns A..endColLetter and returns the next free row.
func (g *Generator) writeSection(ctx context.Context, name string, headers []interface{}, rows [][]interface{}, startRow int, endColLetter string) (int, error) {
	payload := map[string][][]interface{}{
		fmt.Sprintf("A%d:%s%d", startRow, endColLetter, startRow): {headers},
	}
	if len(rows) > 0 {
		payload[fmt.Sprintf("A%d:%s%d", startRow+1, endColLetter, startRow+len(rows))] = rows
	}
	err := g.retry.Do(ctx, "write "+name, func() error {
		return g.api.BatchUpdateCells(ctx, SheetName, payload)
	})
	if err != nil {
		return 0, fmt.Errorf("could not write %s: %w", name, err)
	}
	return startRow + 1 + len(rows), nil
}

// applyFormats sets the number formats of each section in one batch.
func (g *Generator) applyFormats(ctx context.Context, monthlyStart, instrumentStart, metricsStart, endRow int) error {
	var ranges []sheets.FormatRange

	numberCols := func(startRow, endRow int, cols []int) {
		for _, col := range cols {
			ranges = append(ranges, sheets.FormatRange{
				StartRow: startRow, EndRow: endRow,
				StartCol: col, EndCol: col,
				Pattern: "#,##0",
			})
		}
	}
	percentCols := func(startRow, endRow int, cols []int) {
		for _, col := range cols {
			ranges = append(ranges, sheets.FormatRange{
				StartRow: startRow, EndRow: endRow,
				StartCol: col, EndCol: col,
				Type: percentFormat.Type, Pattern: percentFormat.Pattern,
			})
		}
	}

	// Portfolio summary values live on row 2.
	numberCols(2, 2, []int{2, 3, 4, 6})
	percentCols(2, 2, []int{5, 7})

	if monthlyEnd := instrumentStart - 2; monthlyEnd > monthlyStart {
		numberCols(monthlyStart+1, monthlyEnd, []int{3, 4, 5, 6, 7})
		percentCols(monthlyStart+1, monthlyEnd, []int{8})
	}
	if instrumentEnd := metricsStart - 2; instrumentEnd > instrumentStart {
		numberCols(instrumentStart+1, instrumentEnd, []int{5, 6, 7, 8, 9})
		percentCols(instrumentStart+1, instrumentEnd, []int{10, 11})
	}
	if endRow > metricsStart {
		percentCols(metricsStart+1, endRow-1, []int{2})
	}

	err := g.retry.Do(ctx, "apply dashboard formats", func() error {
		return g.api.ApplyNumberFormats(ctx, SheetName, ranges)
	})
	if err != nil {
		return fmt.Errorf("could not format dashboard: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
