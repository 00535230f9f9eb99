package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetName is the single sheet of the report.
const SheetName = "Attendance"

// WriteWorkbook renders rep into a workbook with one sheet.
func WriteWorkbook(rep Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := rep.Header()
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i := range rep.Rows {
		vals := rep.Values(i)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &vals); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	end, _ := excelize.ColumnNumberToName(len(header))
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(SheetName, "A1", end+"1", bold)
	}
	if center, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "center"}}); err == nil && len(rep.Rows) > 0 && len(rep.Dates) > 0 {
		first, _ := excelize.ColumnNumberToName(4)
		last, _ := excelize.ColumnNumberToName(3 + len(rep.Dates))
		_ = f.SetCellStyle(SheetName, first+"2", fmt.Sprintf("%s%d", last, len(rep.Rows)+1), center)
	}
	for c := 1; c <= len(header); c++ {
		col, _ := excelize.ColumnNumberToName(c)
		w := 12.0
		if c == 3 {
			w = 28
		}
		_ = f.SetColWidth(SheetName, col, col, w)
	}
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, Split: false, XSplit: 3, YSplit: 1, TopLeftCell: "D2", ActivePane: "bottomRight"})

	title := rep.ClassName
	if rep.MonthLabel != "" {
		title += " " + rep.MonthLabel
	}
	_ = f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "classattend"})
	return f, nil
}

// Bytes renders rep as an xlsx payload.
func Bytes(rep Report) ([]byte, error) {
	f, err := WriteWorkbook(rep)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
