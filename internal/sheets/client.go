package sheets

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/kenshin579/auto-trading-journal/internal/config"
)

// API defines the operations the reconciliation engine needs from the
// backing spreadsheet. Row and column coordinates are 1-based throughout.
type API interface {
	ListSheets(ctx context.Context) ([]string, error)
	RowCount(ctx context.Context, sheetName string) (int64, error)
	FetchGrid(ctx context.Context, sheetName, rng string) ([]GridRow, error)
	UpdateCells(ctx context.Context, sheetName, rng string, values [][]interface{}) error
	BatchUpdateCells(ctx context.Context, sheetName string, ranges map[string][][]interface{}) error
	ApplyColors(ctx context.Context, sheetName string, ranges []ColorRange) error
	ApplyNumberFormats(ctx context.Context, sheetName string, ranges []FormatRange) error
	CreateSheet(ctx context.Context, sheetName string) error
	ClearRange(ctx context.Context, sheetName, rng string) error
	ClearBackgroundColors(ctx context.Context, sheetName string, endRow, endCol int) error
	FreezeRows(ctx context.Context, sheetName string, count int) error
	SetBasicFilter(ctx context.Context, sheetName string, startRow, startCol, endCol int) error
}

// Client wraps the Sheets v4 service for one spreadsheet. It keeps a
// sheet-name list cache and a name->sheetId cache; both must be
// invalidated after any sheet creation, and a Client must not be shared
// across independent sessions.
type Client struct {
	svc           *sheetsv4.Service
	spreadsheetID string
	logger        *zap.Logger
	limiter       *rate.Limiter

	nameCache []string
	idCache   map[string]int64
}

var _ API = (*Client)(nil)

// NewClient authenticates with the service-account key from the config
// and returns a client bound to the configured spreadsheet.
func NewClient(ctx context.Context, cfg *config.Sheets, logger *zap.Logger) (*Client, error) {
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account key: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(key, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}

	svc, err := sheetsv4.NewService(ctx, option.WithTokenSource(jwt.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		idCache:       make(map[string]int64),
	}, nil
}

// Invalidate clears both metadata caches. Call after creating a sheet,
// or lookups within the same run observe stale state.
func (c *Client) Invalidate() {
	c.nameCache = nil
	c.idCache = make(map[string]int64)
}

// refreshMetadata fetches sheet properties and repopulates both caches.
func (c *Client) refreshMetadata(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}

	c.nameCache = make([]string, 0, len(meta.Sheets))
	c.idCache = make(map[string]int64, len(meta.Sheets))
	for _, s := range meta.Sheets {
		if s.Properties == nil {
			continue
		}
		c.nameCache = append(c.nameCache, s.Properties.Title)
		c.idCache[s.Properties.Title] = s.Properties.SheetId
	}
	return nil
}

// ListSheets returns the titles of all sheets in the spreadsheet.
func (c *Client) ListSheets(ctx context.Context) ([]string, error) {
	if c.nameCache == nil {
		if err := c.refreshMetadata(ctx); err != nil {
			return nil, err
		}
	}
	names := make([]string, len(c.nameCache))
	copy(names, c.nameCache)
	return names, nil
}

// sheetID resolves a sheet title to its numeric id through the cache.
func (c *Client) sheetID(ctx context.Context, sheetName string) (int64, error) {
	if _, ok := c.idCache[sheetName]; !ok {
		if err := c.refreshMetadata(ctx); err != nil {
			return 0, err
		}
	}
	id, ok := c.idCache[sheetName]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", sheetName)
	}
	return id, nil
}

// RowCount returns the declared grid row count of a sheet. The declared
// count bounds every grid fetch; the fetched grid is never assumed to be
// smaller than it.
func (c *Client) RowCount(ctx context.Context, sheetName string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == sheetName {
			if s.Properties.GridProperties != nil {
				return s.Properties.GridProperties.RowCount, nil
			}
		}
	}
	return 0, fmt.Errorf("sheet %q not found", sheetName)
}

// FetchGrid fetches a rectangular snapshot carrying both the effective
// and the formatted value of every cell.
func (c *Client) FetchGrid(ctx context.Context, sheetName, rng string) ([]GridRow, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Ranges(fmt.Sprintf("%s!%s", sheetName, rng)).
		Fields("sheets.data.rowData.values(effectiveValue,formattedValue)").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grid %s!%s: %w", sheetName, rng, err)
	}
	if len(resp.Sheets) == 0 || len(resp.Sheets[0].Data) == 0 {
		return nil, nil
	}
	return rowsFromAPI(resp.Sheets[0].Data[0]), nil
}

// UpdateCells writes one rectangular block of values.
func (c *Client) UpdateCells(ctx context.Context, sheetName, rng string, values [][]interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	_, err := c.svc.Spreadsheets.Values.Update(
		c.spreadsheetID,
		fmt.Sprintf("%s!%s", sheetName, rng),
		&sheetsv4.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s!%s: %w", sheetName, rng, err)
	}
	return nil
}

// BatchUpdateCells writes several rectangular blocks in one request.
func (c *Client) BatchUpdateCells(ctx context.Context, sheetName string, ranges map[string][][]interface{}) error {
	if len(ranges) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	data := make([]*sheetsv4.ValueRange, 0, len(ranges))
	for rng, values := range ranges {
		data = append(data, &sheetsv4.ValueRange{
			Range:  fmt.Sprintf("%s!%s", sheetName, rng),
			Values: values,
		})
	}

	resp, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &sheetsv4.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update on %q failed: %w", sheetName, err)
	}

	c.logger.Debug("Batch value update complete",
		zap.String("sheet", sheetName),
		zap.Int64("updated_cells", resp.TotalUpdatedCells))
	return nil
}

// ApplyColors applies background fills to a set of rectangles in one
// batch request. The API bills by request count, so the caller is
// expected to pass pre-grouped contiguous ranges.
func (c *Client) ApplyColors(ctx context.Context, sheetName string, ranges []ColorRange) error {
	if len(ranges) == 0 {
		return nil
	}
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}

	requests := make([]*sheetsv4.Request, 0, len(ranges))
	for _, r := range ranges {
		requests = append(requests, &sheetsv4.Request{
			RepeatCell: &sheetsv4.RepeatCellRequest{
				Range: &sheetsv4.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(r.StartRow - 1),
					EndRowIndex:      int64(r.EndRow),
					StartColumnIndex: int64(r.StartCol - 1),
					EndColumnIndex:   int64(r.EndCol),
				},
				Cell: &sheetsv4.CellData{
					UserEnteredFormat: &sheetsv4.CellFormat{BackgroundColor: r.Color},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}
	return c.batchUpdate(ctx, sheetName, requests)
}

// ApplyNumberFormats applies number-format patterns to a set of
// rectangles in one batch request.
func (c *Client) ApplyNumberFormats(ctx context.Context, sheetName string, ranges []FormatRange) error {
	if len(ranges) == 0 {
		return nil
	}
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}

	requests := make([]*sheetsv4.Request, 0, len(ranges))
	for _, r := range ranges {
		formatType := r.Type
		if formatType == "" {
			formatType = "NUMBER"
		}
		requests = append(requests, &sheetsv4.Request{
			RepeatCell: &sheetsv4.RepeatCellRequest{
				Range: &sheetsv4.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(r.StartRow - 1),
					EndRowIndex:      int64(r.EndRow),
					StartColumnIndex: int64(r.StartCol - 1),
					EndColumnIndex:   int64(r.EndCol),
				},
				Cell: &sheetsv4.CellData{
					UserEnteredFormat: &sheetsv4.CellFormat{
						NumberFormat: &sheetsv4.NumberFormat{
							Type:    formatType,
							Pattern: r.Pattern,
						},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		})
	}
	return c.batchUpdate(ctx, sheetName, requests)
}

// CreateSheet adds a new named sheet and invalidates both caches.
func (c *Client) CreateSheet(ctx context.Context, sheetName string) error {
	err := c.batchUpdate(ctx, sheetName, []*sheetsv4.Request{{
		AddSheet: &sheetsv4.AddSheetRequest{
			Properties: &sheetsv4.SheetProperties{Title: sheetName},
		},
	}})
	if err != nil {
		return err
	}
	c.Invalidate()
	c.logger.Info("Created sheet", zap.String("sheet", sheetName))
	return nil
}

// ClearRange clears values in the given range, leaving formatting alone.
func (c *Client) ClearRange(ctx context.Context, sheetName, rng string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	_, err := c.svc.Spreadsheets.Values.Clear(
		c.spreadsheetID,
		fmt.Sprintf("%s!%s", sheetName, rng),
		&sheetsv4.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s!%s: %w", sheetName, rng, err)
	}
	return nil
}

// ClearBackgroundColors resets fills over the top-left endRow x endCol
// rectangle of the sheet.
func (c *Client) ClearBackgroundColors(ctx context.Context, sheetName string, endRow, endCol int) error {
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}
	return c.batchUpdate(ctx, sheetName, []*sheetsv4.Request{{
		RepeatCell: &sheetsv4.RepeatCellRequest{
			Range: &sheetsv4.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    0,
				EndRowIndex:      int64(endRow),
				StartColumnIndex: 0,
				EndColumnIndex:   int64(endCol),
			},
			Cell:   &sheetsv4.CellData{UserEnteredFormat: &sheetsv4.CellFormat{}},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}})
}

// FreezeRows pins the top count rows of the sheet.
func (c *Client) FreezeRows(ctx context.Context, sheetName string, count int) error {
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}
	return c.batchUpdate(ctx, sheetName, []*sheetsv4.Request{{
		UpdateSheetProperties: &sheetsv4.UpdateSheetPropertiesRequest{
			Properties: &sheetsv4.SheetProperties{
				SheetId:        sheetID,
				GridProperties: &sheetsv4.GridProperties{FrozenRowCount: int64(count)},
			},
			Fields: "gridProperties.frozenRowCount",
		},
	}})
}

// SetBasicFilter replaces the sheet's auto-filter with one spanning the
// given columns from startRow down.
func (c *Client) SetBasicFilter(ctx context.Context, sheetName string, startRow, startCol, endCol int) error {
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}

	// Clearing a filter that does not exist is a no-op error; ignore it.
	_ = c.batchUpdate(ctx, sheetName, []*sheetsv4.Request{{
		ClearBasicFilter: &sheetsv4.ClearBasicFilterRequest{SheetId: sheetID},
	}})

	return c.batchUpdate(ctx, sheetName, []*sheetsv4.Request{{
		SetBasicFilter: &sheetsv4.SetBasicFilterRequest{
			Filter: &sheetsv4.BasicFilter{
				Range: &sheetsv4.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(startRow - 1),
					StartColumnIndex: int64(startCol - 1),
					EndColumnIndex:   int64(endCol),
				},
			},
		},
	}})
}

// batchUpdate issues a structural batchUpdate request.
func (c *Client) batchUpdate(ctx context.Context, sheetName string, requests []*sheetsv4.Request) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update on %q failed: %w", sheetName, err)
	}
	return nil
}
