package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrNoData is returned when an export is requested for an empty table
var ErrNoData = errors.New("no data to export")

const exportSheet = "Products"

var exportHeader = []string{"Product Code", "Description", "Quantity", "Barcode"}

// ExportFilename names an export after the UTC date it was produced
func ExportFilename(now time.Time, ext string) string {
	return "ocr_export_" + now.UTC().Format("2006-01-02") + "." + ext
}

// formatValue renders a number in its shortest decimal form
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cells(r Row) []string {
	return []string{
		strings.TrimSpace(r.Code),
		strings.TrimSpace(r.Description),
		formatValue(r.Value),
		strings.TrimSpace(r.Barcode),
	}
}

func quote(cell string) string {
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// CSV renders rows with a header, every field quoted
func CSV(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	lines := make([]string, 0, len(rows)+1)
	for _, record := range append([][]string{exportHeader}, rowCells(rows)...) {
		quoted := make([]string, len(record))
		for i, c := range record {
			quoted[i] = quote(c)
		}
		lines = append(lines, strings.Join(quoted, ","))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// ClipboardText renders rows as tab separated lines without a header
func ClipboardText(rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", ErrNoData
	}

	lines := make([]string, 0, len(rows))
	for _, record := range rowCells(rows) {
		lines = append(lines, strings.Join(record, "\t"))
	}
	return strings.Join(lines, "\n"), nil
}

// XLSX renders rows into a single-sheet workbook
func XLSX(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	write := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(exportSheet, cell, v)
	}

	for i, h := range exportHeader {
		if err := write(i+1, 1, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	for i, r := range rows {
		line := i + 2
		values := []any{strings.TrimSpace(r.Code), strings.TrimSpace(r.Description), r.Value, strings.TrimSpace(r.Barcode)}
		for col, v := range values {
			if err := write(col+1, line, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", i+1, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 18)
	_ = f.SetColWidth(exportSheet, "B", "B", 48)
	_ = f.SetColWidth(exportSheet, "C", "D", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func rowCells(rows []Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, cells(r))
	}
	return out
}
