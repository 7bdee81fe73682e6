// Package export writes enriched leads to an .xlsx spreadsheet.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// columns is the ordered export schema. Order matters.
var columns = []string{
	"Name",
	"Category",
	"Location",
	"City",
	"State",
	"Phone No.",
	"Website",
	"Email",
	"Business Info",
}

// columnWidths are fixed per-column widths, tuned for readability.
var columnWidths = []float64{30, 20, 40, 18, 12, 18, 35, 30, 60}

// Exporter writes leads to a destination file and returns the resolved
// absolute path.
type Exporter interface {
	Export(ctx context.Context, leads []model.Lead, destPath string) (string, error)
}

// XLSXExporter writes a fresh workbook on every call. An existing file at
// the destination is replaced, never appended to.
type XLSXExporter struct {
	lockRetries int
	lockWait    time.Duration
}

// NewXLSXExporter creates an exporter from configuration.
func NewXLSXExporter(cfg config.ExportConfig) *XLSXExporter {
	return &XLSXExporter{
		lockRetries: cfg.LockRetries,
		lockWait:    time.Duration(cfg.LockWaitSecs) * time.Second,
	}
}

// Export writes leads to destPath. Duplicates within the batch (by
// normalized name + location, first occurrence wins) are skipped. The
// workbook is written to a temp file in the destination directory and
// renamed into place so an interrupted run never leaves a corrupt file.
// A locked destination is retried with growing waits before giving up
// with an actionable message.
func (e *XLSXExporter) Export(ctx context.Context, leads []model.Lead, destPath string) (string, error) {
	if len(leads) == 0 {
		return "", eris.New("export: no leads to export")
	}

	abs, err := filepath.Abs(destPath)
	if err != nil {
		return "", eris.Wrap(err, "export: resolve output path")
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}

	log := zap.L().With(zap.String("component", "exporter"))

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return "", eris.Wrap(err, "export: add sheet")
	}

	writeHeader(sheet)

	added := 0
	seen := make(map[string]struct{}, len(leads))
	for _, lead := range leads {
		key := dedupKey(lead)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		row := sheet.AddRow()
		for _, v := range []string{
			lead.Name, lead.Category, lead.Location, lead.City, lead.State,
			lead.Phone, lead.Website, lead.Email, lead.BusinessInfo,
		} {
			row.AddCell().Value = v
		}
		added++
	}

	for i, w := range columnWidths {
		sheet.SetColWidth(i, i, w)
	}

	if err := e.saveWithRetry(ctx, file, abs, log); err != nil {
		return "", err
	}

	log.Info("export saved",
		zap.String("path", abs),
		zap.Int("leads_written", added),
		zap.Int("duplicates_skipped", len(leads)-added),
	)
	return abs, nil
}

// writeHeader writes the styled header row and fixes its order.
func writeHeader(sheet *xlsx.Sheet) {
	style := xlsx.NewStyle()
	style.Font = *xlsx.NewFont(11, "Calibri")
	style.Font.Bold = true
	style.Font.Color = "FFFFFFFF"
	style.Fill = *xlsx.NewFill("solid", "FF4472C4", "FF4472C4")
	style.Alignment = xlsx.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	style.ApplyFont = true
	style.ApplyFill = true
	style.ApplyAlignment = true

	row := sheet.AddRow()
	for _, col := range columns {
		cell := row.AddCell()
		cell.Value = col
		cell.SetStyle(style)
	}
}

// saveWithRetry writes the workbook through a temp file and renames it
// into place. A destination held open by a spreadsheet application fails
// the rename; those failures are retried with growing waits.
func (e *XLSXExporter) saveWithRetry(ctx context.Context, file *xlsx.File, dest string, log *zap.Logger) error {
	tmp := dest + ".tmp"
	defer os.Remove(tmp)

	attempts := e.lockRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := file.Save(tmp); err != nil {
			return eris.Wrap(err, "export: write workbook")
		}
		if err := os.Rename(tmp, dest); err != nil {
			lastErr = err
			if attempt < attempts {
				wait := time.Duration(attempt) * e.lockWait
				log.Warn("destination file is locked (open in Excel?), retrying",
					zap.String("path", dest),
					zap.Duration("wait", wait),
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", attempts),
				)
				select {
				case <-ctx.Done():
					return eris.Wrap(ctx.Err(), "export: interrupted")
				case <-time.After(wait):
				}
			}
			continue
		}
		return nil
	}

	return eris.Wrap(lastErr, fmt.Sprintf(
		"export: cannot save to %s, please close the file in Excel and try again", dest))
}

// dedupKey builds the normalized duplicate-detection key from name and
// location. Unicode compatibility normalization keeps visually identical
// listings from slipping past the comparison.
func dedupKey(lead model.Lead) string {
	name := norm.NFKC.String(strings.ToLower(strings.TrimSpace(lead.Name)))
	location := norm.NFKC.String(strings.ToLower(strings.TrimSpace(lead.Location)))
	return name + "||" + location
}
