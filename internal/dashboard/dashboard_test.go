package dashboard

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kenshin579/auto-trading-journal/internal/ledger"
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// fakeAPI records every call; the dashboard only writes, so no grid
// state is needed.
type fakeAPI struct {
	sheetNames []string

	created       []string
	cleared       []string
	colorsCleared bool
	frozen        int
	payloads      map[string][][]interface{}
	formats       []sheets.FormatRange
}

var _ sheets.API = (*fakeAPI)(nil)

func newFakeAPI(names ...string) *fakeAPI {
	return &fakeAPI{sheetNames: names, payloads: make(map[string][][]interface{})}
}

func (f *fakeAPI) ListSheets(context.Context) ([]string, error) { return f.sheetNames, nil }

func (f *fakeAPI) RowCount(context.Context, string) (int64, error) { return 100, nil }

func (f *fakeAPI) FetchGrid(context.Context, string, string) ([]sheets.GridRow, error) {
	return nil, nil
}

func (f *fakeAPI) UpdateCells(_ context.Context, _, rng string, values [][]interface{}) error {
	f.payloads[rng] = values
	return nil
}

func (f *fakeAPI) BatchUpdateCells(_ context.Context, _ string, ranges map[string][][]interface{}) error {
	for rng, values := range ranges {
		f.payloads[rng] = values
	}
	return nil
}

func (f *fakeAPI) ApplyColors(context.Context, string, []sheets.ColorRange) error { return nil }

func (f *fakeAPI) ApplyNumberFormats(_ context.Context, _ string, ranges []sheets.FormatRange) error {
	f.formats = append(f.formats, ranges...)
	return nil
}

func (f *fakeAPI) CreateSheet(_ context.Context, name string) error {
	f.created = append(f.created, name)
	f.sheetNames = append(f.sheetNames, name)
	return nil
}

func (f *fakeAPI) ClearRange(_ context.Context, _, rng string) error {
	f.cleared = append(f.cleared, rng)
	return nil
}

func (f *fakeAPI) ClearBackgroundColors(context.Context, string, int, int) error {
	return nil
}

func (f *fakeAPI) FreezeRows(_ context.Context, _ string, count int) error {
	f.frozen = count
	return nil
}

func (f *fakeAPI) SetBasicFilter(context.Context, string, int, int, int) error { return nil }

func newGenerator(api sheets.API) *Generator {
	return NewGenerator(zap.NewNop(), api, ledger.NewRetryer(1, 0, zap.NewNop()))
}

func sampleRecords() []models.TradeRecord {
	return []models.TradeRecord{
		{Date: "2025-01-02", Side: models.SideBuy, Name: "SampleCo", Account: "Brokerage",
			Currency: "KRW", Quantity: decimal.NewFromInt(10),
			GrossHome: decimal.NewFromInt(1000)},
		{Date: "2025-01-10", Side: models.SideBuy, Name: "GlobalTech", Account: "Overseas",
			Currency: "USD", Quantity: decimal.NewFromInt(5),
			GrossHome: decimal.NewFromInt(500)},
		{Date: "2025-02-03", Side: models.SideSell, Name: "SampleCo", Account: "Brokerage",
			Currency: "KRW", Quantity: decimal.NewFromInt(10),
			GrossHome:  decimal.NewFromInt(800),
			ProfitHome: decimal.NewFromInt(200),
			ProfitRate: decimal.NewFromFloat(25.0)},
	}
}

func TestGenerateCreatesMissingSheet(t *testing.T) {
	api := newFakeAPI("Brokerage", "Overseas")
	err := newGenerator(api).Generate(context.Background(), sampleRecords())
	assert.NoError(t, err)

	assert.Equal(t, []string{SheetName}, api.created)
	assert.Empty(t, api.cleared)
	assert.Equal(t, 1, api.frozen)
	assert.NotEmpty(t, api.payloads)
	assert.NotEmpty(t, api.formats)
}

func TestGenerateClearsExistingSheet(t *testing.T) {
	api := newFakeAPI("Brokerage", SheetName)
	err := newGenerator(api).Generate(context.Background(), sampleRecords())
	assert.NoError(t, err)

	assert.Empty(t, api.created)
	assert.Equal(t, []string{"A1:Z"}, api.cleared)
}

func TestGeneratePortfolioTotals(t *testing.T) {
	api := newFakeAPI(SheetName)
	err := newGenerator(api).Generate(context.Background(), sampleRecords())
	assert.NoError(t, err)

	values, ok := api.payloads["A2:G2"]
	assert.True(t, ok, "portfolio value row missing")
	row := values[0]

	assert.Equal(t, 1500.0, row[1]) // total buy
	assert.Equal(t, 800.0, row[2])  // total sell
	assert.Equal(t, 200.0, row[3])  // realized profit
	// Return is profit over sell amount, stored as a fraction for the
	// percent format.
	assert.InDelta(t, 0.25, row[4].(float64), 1e-9)
	assert.Equal(t, 3, row[5])
	// The single sell is a winner.
	assert.InDelta(t, 1.0, row[6].(float64), 1e-9)
}

func TestGenerateMonthlyRows(t *testing.T) {
	api := newFakeAPI(SheetName)
	err := newGenerator(api).Generate(context.Background(), sampleRecords())
	assert.NoError(t, err)

	// Monthly section: header at row 4, three (month, account) groups.
	rows, ok := api.payloads["A5:H7"]
	assert.True(t, ok, "monthly rows missing")
	assert.Len(t, rows, 3)

	// Sorted by month, then account.
	assert.Equal(t, "2025-01", rows[0][0])
	assert.Equal(t, "Brokerage", rows[0][1])
	assert.Equal(t, "2025-01", rows[1][0])
	assert.Equal(t, "Overseas", rows[1][1])
	assert.Equal(t, "2025-02", rows[2][0])

	// The February row carries the sell.
	assert.Equal(t, 1, rows[2][4])
	assert.Equal(t, 800.0, rows[2][5])
	assert.Equal(t, 200.0, rows[2][6])
	assert.InDelta(t, 0.25, rows[2][7].(float64), 1e-9)
}

func TestGenerateEmptyRecords(t *testing.T) {
	api := newFakeAPI(SheetName)
	err := newGenerator(api).Generate(context.Background(), nil)
	assert.NoError(t, err)

	// The headline section still lands, with zeroed totals.
	values, ok := api.payloads["A2:G2"]
	assert.True(t, ok)
	assert.Equal(t, 0.0, values[0][1])
	assert.Equal(t, 0, values[0][5])
}
