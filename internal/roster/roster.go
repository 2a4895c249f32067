// Package roster reads student rosters from and writes class reports to
// Excel workbooks.
package roster

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/logger"
)

// ErrNoNameColumn is returned when the header row lacks a name column.
var ErrNoNameColumn = errors.New("roster header has no name column")

// Row is one importable student.
type Row struct {
	Line          int      `json:"line"`
	Name          string   `json:"name"`
	FingerprintID int      `json:"fingerprint_id,omitempty"`
	Classes       []string `json:"classes,omitempty"`
}

// RowError reports a rejected row by its spreadsheet line number.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportStudents reads the first sheet. The first row is the header; the
// columns name, fingerprint_id and classes (comma separated class ids) are
// matched case-insensitively and only name is required. Blank rows are skipped.
func ImportStudents(r io.Reader) ([]Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.LogWarn("close roster workbook", "error", err)
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, errors.New("excel file does not contain any sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoNameColumn
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil, nil, ErrNoNameColumn
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Row
	var bad []RowError
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		name := ""
		if nameCol < len(row) {
			name = strings.TrimSpace(row[nameCol])
		}
		if name == "" {
			bad = append(bad, RowError{Line: line, Message: "missing name"})
			continue
		}
		item := Row{Line: line, Name: name}
		if v := cell(row, "fingerprint_id"); v != "" {
			fid, err := strconv.Atoi(v)
			if err != nil || fid < 0 {
				bad = append(bad, RowError{Line: line, Message: fmt.Sprintf("invalid fingerprint_id %q", v)})
				continue
			}
			item.FingerprintID = fid
		}
		for _, c := range strings.Split(cell(row, "classes"), ",") {
			if c = strings.TrimSpace(c); c != "" {
				item.Classes = append(item.Classes, c)
			}
		}
		out = append(out, item)
	}
	return out, bad, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteClassReport writes a single-sheet workbook with the report summary
// followed by one line per student.
func WriteClassReport(w io.Writer, report apiclient.ClassReport) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := [][]any{
		{"Class", report.ClassName},
		{"Date", report.Date},
		{"Total Students", report.TotalStudents},
		{"Present", report.PresentStudents},
		{"Absent", report.AbsentStudents},
		{},
		{"Name", "Status"},
	}
	line := 1
	for _, values := range header {
		if len(values) > 0 {
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &values); err != nil {
				return err
			}
		}
		line++
	}
	for _, e := range report.AttendanceList {
		values := []any{e.Name, e.Status}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &values); err != nil {
			return err
		}
		line++
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
