package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kenshin579/auto-trading-journal/internal/config"
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// fallbackRowCount bounds grid fetches when sheet metadata is
// unavailable.
const fallbackRowCount = int64(10000)

// Engine reconciles parsed trade records against the spreadsheet:
// extent scan, duplicate filtering, batched write, then formatting and
// coloring. All steps for one sheet run strictly sequentially because
// each depends on the previous step's up-to-date read.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config
	api    sheets.API
	db     *gorm.DB
	retry  *Retryer
	runID  string
}

// NewEngine creates a reconciliation engine. db may be nil, in which
// case no audit rows are recorded.
func NewEngine(logger *zap.Logger, cfg *config.Config, api sheets.API, db *gorm.DB) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
		api:    api,
		db:     db,
		retry: NewRetryer(
			cfg.Sheets.RetryAttempts,
			time.Duration(cfg.Sheets.RetryInitialSecs)*time.Second,
			logger,
		),
		runID: ulid.Make().String(),
	}
}

// RunID identifies this engine session in the audit journal.
func (e *Engine) RunID() string { return e.runID }

// EnsureSheet creates the named sheet with the layout's header row if it
// does not exist, and (re)applies the frozen header row and auto-filter
// either way. Returns whether the sheet was created.
func (e *Engine) EnsureSheet(ctx context.Context, sheetName string, kind LayoutKind) (bool, error) {
	var names []string
	err := e.retry.Do(ctx, "list sheets", func() error {
		var err error
		names, err = e.api.ListSheets(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("could not list sheets: %w", err)
	}

	for _, name := range names {
		if name == sheetName {
			return false, e.applySheetFormatting(ctx, sheetName, kind)
		}
	}

	if e.cfg.Journal.DryRun {
		e.logger.Warn("[Dry Run] Would create sheet",
			zap.String("sheet", sheetName),
			zap.String("layout", kind.String()))
		return true, nil
	}

	if err := e.retry.Do(ctx, "create sheet", func() error {
		return e.api.CreateSheet(ctx, sheetName)
	}); err != nil {
		return false, fmt.Errorf("could not create sheet %q: %w", sheetName, err)
	}

	headers := kind.Headers()
	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := e.retry.Do(ctx, "write header", func() error {
		return e.api.UpdateCells(ctx, sheetName,
			fmt.Sprintf("A1:%s1", ColLetter(kind.ColumnCount())),
			[][]interface{}{headerRow})
	}); err != nil {
		return true, fmt.Errorf("could not write header on %q: %w", sheetName, err)
	}

	e.logger.Info("Created sheet with header",
		zap.String("sheet", sheetName),
		zap.String("layout", kind.String()))
	return true, e.applySheetFormatting(ctx, sheetName, kind)
}

// AppendRecords inserts the records that are not already present in the
// sheet, then applies number formats and per-date colors. The returned
// count reflects rows actually written; when formatting fails after the
// data write landed, the count is returned together with the error.
func (e *Engine) AppendRecords(ctx context.Context, sheetName string, records []models.TradeRecord, kind LayoutKind) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rowCount := e.rowCount(ctx, sheetName)
	ext := e.scanExtent(ctx, sheetName, rowCount)

	index, err := e.buildIndex(ctx, sheetName, kind, rowCount)
	if err != nil {
		return 0, err
	}

	accepted, rejected := index.FilterNew(records)
	if rejected > 0 {
		e.logger.Warn("Skipping duplicate records",
			zap.String("sheet", sheetName),
			zap.Int("duplicates", rejected))
	}
	if len(accepted) == 0 {
		e.logger.Info("All records already present",
			zap.String("sheet", sheetName),
			zap.Int("records", len(records)))
		e.recordRun(sheetName, kind, 0, rejected)
		return 0, nil
	}

	// The extent scanner reports where the last writer actually put its
	// data. A window that starts off column A means the sheet follows
	// the legacy narrow convention and the new rows must match its
	// shape; otherwise the full layout width starting at column A wins.
	legacy := ext.NextRow > 2 && ext.StartCol > 1
	var write RangeWrite
	startCol, endCol := 1, kind.ColumnCount()
	if legacy {
		startCol, endCol = ext.StartCol, ext.EndCol
		write = BuildWindowedRangeWrite(accepted, ext.NextRow, startCol, endCol, kind)
	} else {
		write = BuildRangeWrite(accepted, ext.NextRow, kind)
	}

	if e.cfg.Journal.DryRun {
		e.logger.Warn("[Dry Run] Would write records",
			zap.String("sheet", sheetName),
			zap.String("range", write.Range),
			zap.Int("records", len(accepted)))
		e.recordRun(sheetName, kind, len(accepted), rejected)
		return len(accepted), nil
	}

	if err := e.retry.Do(ctx, "write records", func() error {
		return e.api.BatchUpdateCells(ctx, sheetName, map[string][][]interface{}{
			write.Range: write.Rows,
		})
	}); err != nil {
		return 0, fmt.Errorf("could not write %d records to %q: %w", len(accepted), sheetName, err)
	}
	e.logger.Info("Inserted records",
		zap.String("sheet", sheetName),
		zap.String("range", write.Range),
		zap.Int("inserted", len(accepted)),
		zap.Int("duplicates", rejected))

	e.recordRun(sheetName, kind, len(accepted), rejected)

	if !legacy {
		formats := NumberFormatRanges(accepted, ext.NextRow, kind)
		if err := e.retry.Do(ctx, "apply number formats", func() error {
			return e.api.ApplyNumberFormats(ctx, sheetName, formats)
		}); err != nil {
			return len(accepted), fmt.Errorf("records written but number formats failed on %q: %w", sheetName, err)
		}
	}

	colors := DateColorRanges(accepted, ext.NextRow, startCol, endCol)
	if err := e.retry.Do(ctx, "apply date colors", func() error {
		return e.api.ApplyColors(ctx, sheetName, colors)
	}); err != nil {
		return len(accepted), fmt.Errorf("records written but date colors failed on %q: %w", sheetName, err)
	}

	return len(accepted), nil
}

// applySheetFormatting freezes the header row and resets the
// auto-filter over the layout's columns.
func (e *Engine) applySheetFormatting(ctx context.Context, sheetName string, kind LayoutKind) error {
	if e.cfg.Journal.DryRun {
		return nil
	}
	if err := e.retry.Do(ctx, "freeze header", func() error {
		return e.api.FreezeRows(ctx, sheetName, 1)
	}); err != nil {
		return fmt.Errorf("could not freeze header on %q: %w", sheetName, err)
	}
	if err := e.retry.Do(ctx, "set filter", func() error {
		return e.api.SetBasicFilter(ctx, sheetName, 1, 1, kind.ColumnCount())
	}); err != nil {
		return fmt.Errorf("could not set filter on %q: %w", sheetName, err)
	}
	return nil
}

// rowCount reads the sheet's declared row count, falling back to a
// bounded default when metadata is unavailable.
func (e *Engine) rowCount(ctx context.Context, sheetName string) int64 {
	var count int64
	err := e.retry.Do(ctx, "sheet row count", func() error {
		var err error
		count, err = e.api.RowCount(ctx, sheetName)
		return err
	})
	if err != nil || count <= 0 {
		e.logger.Warn("Sheet metadata unavailable, using fallback row bound",
			zap.String("sheet", sheetName),
			zap.Int64("fallback", fallbackRowCount),
			zap.Error(err))
		return fallbackRowCount
	}
	return count
}

// scanExtent fetches the grid and infers the append point. A failed read
// falls back to the documented default extent so that insertion makes
// forward progress; the trade-off is logged, not raised.
func (e *Engine) scanExtent(ctx context.Context, sheetName string, rowCount int64) Extent {
	var rows []sheets.GridRow
	err := e.retry.Do(ctx, "fetch grid for extent scan", func() error {
		var err error
		rows, err = e.api.FetchGrid(ctx, sheetName, fmt.Sprintf("A1:Z%d", rowCount))
		return err
	})
	if err != nil {
		e.logger.Warn("Extent scan failed, using default append point",
			zap.String("sheet", sheetName),
			zap.Error(err))
		return Extent{NextRow: 2, StartCol: defaultStartCol, EndCol: defaultEndCol}
	}
	ext := ScanExtent(rows, e.cfg.Sheets.EmptyRowThreshold)
	e.logger.Debug("Scanned sheet extent",
		zap.String("sheet", sheetName),
		zap.Int("next_row", ext.NextRow),
		zap.String("window", fmt.Sprintf("%s-%s", ColLetter(ext.StartCol), ColLetter(ext.EndCol))))
	return ext
}

// buildIndex loads the existing duplicate-key set. By default an
// unreadable index degrades to an empty one: records proceed to write,
// trading possible duplication for availability. StrictDedupe turns the
// same failure into an error instead.
func (e *Engine) buildIndex(ctx context.Context, sheetName string, kind LayoutKind, rowCount int64) (KeyIndex, error) {
	var rows []sheets.GridRow
	err := e.retry.Do(ctx, "fetch grid for duplicate index", func() error {
		var err error
		rows, err = e.api.FetchGrid(ctx, sheetName,
			fmt.Sprintf("A2:%s%d", ColLetter(kind.ColumnCount()), rowCount))
		return err
	})
	if err != nil {
		if e.cfg.Sheets.StrictDedupe {
			return nil, fmt.Errorf("existing-key index unavailable for %q: %w", sheetName, err)
		}
		e.logger.Warn("Existing-key index unavailable, proceeding without duplicate detection",
			zap.String("sheet", sheetName),
			zap.Error(err))
		return KeyIndex{}, nil
	}
	index := BuildKeyIndex(rows, kind)
	e.logger.Debug("Loaded existing keys",
		zap.String("sheet", sheetName),
		zap.Int("keys", len(index)))
	return index, nil
}

// recordRun persists one audit row for this sheet's reconciliation,
// including zero-insert runs.
func (e *Engine) recordRun(sheetName string, kind LayoutKind, inserted, duplicates int) {
	if e.db == nil {
		return
	}
	run := models.AppendRun{
		RunID:      e.runID,
		SheetName:  sheetName,
		Layout:     kind.String(),
		Inserted:   inserted,
		Duplicates: duplicates,
		DryRun:     e.cfg.Journal.DryRun,
	}
	if err := e.db.Create(&run).Error; err != nil {
		e.logger.Error("Failed to record append run", zap.Error(err))
	}
}
