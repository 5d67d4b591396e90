// Package export renders tables of requests, students and login attempts
// as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"
)

// Format is an export file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat indicates an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatCSV, FormatPDF, FormatTXT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// FileName is "<kind>_<YYYY-MM-DD>.<ext>".
func FileName(kind string, f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", kind, at.Format("2006-01-02"), f)
}

// Table is a titled grid of string cells. When GroupBy is non-negative the
// PDF rendering starts a section for each distinct value of that column.
type Table struct {
	Title   string
	Sheet   string
	Keys    []string
	Headers []string
	Rows    [][]string
	GroupBy int
}

// Write renders the table in the requested format.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case FormatXLSX:
		return writeXLSX(w, t)
	case FormatCSV:
		return writeCSV(w, t)
	case FormatPDF:
		return writePDF(w, t)
	case FormatTXT:
		return writeTXT(w, t)
	case FormatJSON:
		return writeJSON(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

func writeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	headers := t.Headers
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &t.Rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if len(headers) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("header style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("apply header style: %w", err)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(headers))
		if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, t Table) error {
	// BOM so spreadsheet apps detect UTF-8.
	if _, err := io.WriteString(w, "\xef\xbb\xbf"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeTXT(w io.Writer, t Table) error {
	if t.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", t.Title); err != nil {
			return err
		}
	}
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(t.Headers)
	tw.AppendBulk(t.Rows)
	tw.Render()
	return nil
}

// writeJSON emits one object per row keyed by Keys (or Headers).
func writeJSON(w io.Writer, t Table) error {
	keys := t.Keys
	if len(keys) == 0 {
		keys = t.Headers
	}
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(keys))
		for i, k := range keys {
			if i < len(row) {
				obj[k] = row[i]
			}
		}
		out = append(out, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writePDF(w io.Writer, t Table) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(t.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(max(len(t.Headers), 1))

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(t.Title), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(226, 232, 240)
		for _, h := range t.Headers {
			pdf.CellFormat(colW, 7, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}

	group := "\x00"
	if t.GroupBy < 0 || t.GroupBy >= len(t.Headers) {
		header()
	}
	for _, row := range t.Rows {
		if t.GroupBy >= 0 && t.GroupBy < len(row) && row[t.GroupBy] != group {
			group = row[t.GroupBy]
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s : %s", t.Headers[t.GroupBy], group)), "", 1, "L", false, 0, "")
			header()
		}
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(colW, 6, tr(truncate(cell, 40)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
