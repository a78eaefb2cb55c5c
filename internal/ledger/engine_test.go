package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kenshin579/auto-trading-journal/internal/config"
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// fakeAPI is an in-memory spreadsheet: writes land in the grid so a
// second engine pass observes what the first one inserted.
type fakeAPI struct {
	grids map[string][]sheets.GridRow
	order []string

	listErr     error
	rowCountErr error
	fetchErr    error
	writeErr    error
	colorErr    error
	formatErr   error

	writtenRanges []string
	colorCalls    [][]sheets.ColorRange
	formatCalls   [][]sheets.FormatRange
	created       []string
	frozen        map[string]int
	filtered      map[string]int
	cleared       []string
}

var _ sheets.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		grids:    make(map[string][]sheets.GridRow),
		frozen:   make(map[string]int),
		filtered: make(map[string]int),
	}
}

func (f *fakeAPI) addSheet(name string, rows ...sheets.GridRow) {
	f.grids[name] = rows
	f.order = append(f.order, name)
}

func (f *fakeAPI) ListSheets(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeAPI) RowCount(_ context.Context, sheetName string) (int64, error) {
	if f.rowCountErr != nil {
		return 0, f.rowCountErr
	}
	return 100, nil
}

func (f *fakeAPI) FetchGrid(_ context.Context, sheetName, rng string) ([]sheets.GridRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	rows := f.grids[sheetName]
	if strings.HasPrefix(rng, "A2") {
		if len(rows) <= 1 {
			return nil, nil
		}
		return rows[1:], nil
	}
	return rows, nil
}

func (f *fakeAPI) UpdateCells(_ context.Context, sheetName, rng string, values [][]interface{}) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writtenRanges = append(f.writtenRanges, rng)
	f.apply(sheetName, rng, values)
	return nil
}

func (f *fakeAPI) BatchUpdateCells(_ context.Context, sheetName string, ranges map[string][][]interface{}) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	for rng, values := range ranges {
		f.writtenRanges = append(f.writtenRanges, rng)
		f.apply(sheetName, rng, values)
	}
	return nil
}

func (f *fakeAPI) ApplyColors(_ context.Context, sheetName string, ranges []sheets.ColorRange) error {
	if f.colorErr != nil {
		return f.colorErr
	}
	f.colorCalls = append(f.colorCalls, ranges)
	return nil
}

func (f *fakeAPI) ApplyNumberFormats(_ context.Context, sheetName string, ranges []sheets.FormatRange) error {
	if f.formatErr != nil {
		return f.formatErr
	}
	f.formatCalls = append(f.formatCalls, ranges)
	return nil
}

func (f *fakeAPI) CreateSheet(_ context.Context, sheetName string) error {
	f.created = append(f.created, sheetName)
	f.addSheet(sheetName)
	return nil
}

func (f *fakeAPI) ClearRange(_ context.Context, sheetName, rng string) error {
	f.cleared = append(f.cleared, sheetName+"!"+rng)
	return nil
}

func (f *fakeAPI) ClearBackgroundColors(_ context.Context, sheetName string, endRow, endCol int) error {
	return nil
}

func (f *fakeAPI) FreezeRows(_ context.Context, sheetName string, count int) error {
	f.frozen[sheetName] = count
	return nil
}

func (f *fakeAPI) SetBasicFilter(_ context.Context, sheetName string, startRow, startCol, endCol int) error {
	f.filtered[sheetName] = endCol
	return nil
}

// apply lands a value block in the fake grid at its A1 position.
func (f *fakeAPI) apply(sheetName, rng string, values [][]interface{}) {
	col, row := parseCellRef(strings.SplitN(rng, ":", 2)[0])
	grid := f.grids[sheetName]
	for i, rowVals := range values {
		ri := row - 1 + i
		for len(grid) <= ri {
			grid = append(grid, sheets.GridRow{})
		}
		cells := grid[ri].Cells
		for j, v := range rowVals {
			ci := col - 1 + j
			for len(cells) <= ci {
				cells = append(cells, sheets.GridCell{})
			}
			cells[ci] = cellForValue(v)
		}
		grid[ri].Cells = cells
	}
	f.grids[sheetName] = grid
}

func parseCellRef(ref string) (col, row int) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A') + 1
		i++
	}
	row, _ = strconv.Atoi(ref[i:])
	return col, row
}

func cellForValue(v interface{}) sheets.GridCell {
	switch tv := v.(type) {
	case string:
		if tv == "" {
			return sheets.GridCell{}
		}
		return sheets.GridCell{Value: sheets.StringValue(tv), Formatted: tv}
	case float64:
		return sheets.GridCell{Value: sheets.NumberValue(tv)}
	case int:
		return sheets.GridCell{Value: sheets.NumberValue(float64(tv))}
	}
	return sheets.GridCell{}
}

func testConfig() *config.Config {
	return &config.Config{
		Sheets: config.Sheets{
			EmptyRowThreshold: 100,
			RetryAttempts:     1,
		},
	}
}

func headerRow(kind LayoutKind) sheets.GridRow {
	row := sheets.GridRow{}
	for _, h := range kind.Headers() {
		row.Cells = append(row.Cells, sheets.GridCell{
			Value: sheets.StringValue(h), Formatted: h,
		})
	}
	return row
}

func sampleRecords() []models.TradeRecord {
	return []models.TradeRecord{
		{Date: "2025-01-02", Side: models.SideBuy, Name: "SampleCo",
			Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(28230),
			Gross: decimal.NewFromInt(282300), Currency: "KRW",
			Rate: decimal.NewFromInt(1), GrossHome: decimal.NewFromInt(282300)},
		{Date: "2025-01-03", Side: models.SideBuy, Name: "SampleCo",
			Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(28100),
			Gross: decimal.NewFromInt(140500), Currency: "KRW",
			Rate: decimal.NewFromInt(1), GrossHome: decimal.NewFromInt(140500)},
	}
}

func TestAppendRecordsEmptySheet(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Data lands at the full layout width right under the header.
	assert.Equal(t, []string{"A2:I3"}, api.writtenRanges)

	// Formats were applied and the two distinct dates got two distinct
	// single-row color rectangles.
	assert.Len(t, api.formatCalls, 1)
	assert.Len(t, api.colorCalls, 1)
	colors := api.colorCalls[0]
	assert.Len(t, colors, 2)
	assert.Equal(t, 2, colors[0].StartRow)
	assert.Equal(t, 3, colors[1].StartRow)
	assert.NotEqual(t, colors[0].Color, colors[1].Color)
}

func TestAppendRecordsIdempotentRerun(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)
	ctx := context.Background()

	first, err := engine.AppendRecords(ctx, "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 2, first)

	// The identical batch again: every record is now a duplicate.
	second, err := engine.AppendRecords(ctx, "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Zero(t, second)
	assert.Len(t, api.writtenRanges, 1)
}

func TestAppendRecordsAppendsBelowExistingData(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)
	ctx := context.Background()

	_, err := engine.AppendRecords(ctx, "Brokerage", sampleRecords()[:1], LayoutDomestic)
	assert.NoError(t, err)

	inserted, err := engine.AppendRecords(ctx, "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, []string{"A2:I2", "A3:I3"}, api.writtenRanges)
}

func TestAppendRecordsLegacyWindow(t *testing.T) {
	// A sheet whose previous writer used a narrow window off column A:
	// new rows must match its shape, and column-mapped number formats
	// are skipped because they no longer line up.
	api := newFakeAPI()
	api.addSheet("Legacy",
		headerRow(LayoutDomestic),
		gridRow(nil, "2024-12-30", "SELL", "OldCo", 1.0, 100.0),
	)
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Legacy", sampleRecords()[:1], LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, []string{"B3:F3"}, api.writtenRanges)
	assert.Empty(t, api.formatCalls)

	assert.Len(t, api.colorCalls, 1)
	assert.Equal(t, 2, api.colorCalls[0][0].StartCol)
	assert.Equal(t, 6, api.colorCalls[0][0].EndCol)
}

func TestAppendRecordsWriteFailure(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	api.writeErr = errors.New("quota exceeded")
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.Error(t, err)
	assert.Zero(t, inserted)
}

func TestAppendRecordsColorFailureAfterWrite(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	api.colorErr = errors.New("boom")
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	// The data write landed, so the count comes back with the error.
	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.Error(t, err)
	assert.Equal(t, 2, inserted)
	assert.Len(t, api.writtenRanges, 1)
}

func TestAppendRecordsFailOpenOnUnreadableGrid(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	api.fetchErr = errors.New("backend unavailable")
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	// Extent and index reads both fail; the engine still makes forward
	// progress at the default append point without duplicate detection.
	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, []string{"A2:I3"}, api.writtenRanges)
}

func TestAppendRecordsStrictDedupe(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	api.fetchErr = errors.New("backend unavailable")

	cfg := testConfig()
	cfg.Sheets.StrictDedupe = true
	engine := NewEngine(zap.NewNop(), cfg, api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.Error(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, api.writtenRanges)
}

func TestAppendRecordsDryRun(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))

	cfg := testConfig()
	cfg.Journal.DryRun = true
	engine := NewEngine(zap.NewNop(), cfg, api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", sampleRecords(), LayoutDomestic)
	assert.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Empty(t, api.writtenRanges)
	assert.Empty(t, api.colorCalls)
}

func TestAppendRecordsNoInput(t *testing.T) {
	api := newFakeAPI()
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	inserted, err := engine.AppendRecords(context.Background(), "Brokerage", nil, LayoutDomestic)
	assert.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Empty(t, api.writtenRanges)
}

func TestEnsureSheetCreatesMissingSheet(t *testing.T) {
	api := newFakeAPI()
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	created, err := engine.EnsureSheet(context.Background(), "Overseas", LayoutForeign)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"Overseas"}, api.created)

	// Header row landed over the full layout width, header frozen,
	// filter spans all columns.
	assert.Equal(t, []string{"A1:O1"}, api.writtenRanges)
	assert.Equal(t, 1, api.frozen["Overseas"])
	assert.Equal(t, 15, api.filtered["Overseas"])
}

func TestEnsureSheetExistingSheet(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Brokerage", headerRow(LayoutDomestic))
	engine := NewEngine(zap.NewNop(), testConfig(), api, nil)

	created, err := engine.EnsureSheet(context.Background(), "Brokerage", LayoutDomestic)
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, api.created)

	// Formatting is reapplied even when the sheet already exists.
	assert.Equal(t, 1, api.frozen["Brokerage"])
}

func TestEnsureSheetDryRun(t *testing.T) {
	api := newFakeAPI()

	cfg := testConfig()
	cfg.Journal.DryRun = true
	engine := NewEngine(zap.NewNop(), cfg, api, nil)

	created, err := engine.EnsureSheet(context.Background(), "Overseas", LayoutForeign)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, api.created)
	assert.Empty(t, api.writtenRanges)
}
