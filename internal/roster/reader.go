package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Upload limits.
const (
	MaxUploadSize = 5 << 20
	MaxRows       = 5000
)

var (
	ErrEmpty       = errors.New("file is empty")
	ErrUnsupported = errors.New("unsupported file type, use .xlsx or .csv")
	ErrTooLarge    = errors.New("file too large")
)

// Table is the first sheet of an upload: header row plus data rows.
type Table struct {
	Sheets  []string
	Headers []string
	Rows    []Record
}

// Read parses an .xlsx or .csv upload chosen by file extension.
func Read(filename string, r io.Reader) (Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return Table{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return Table{}, ErrTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, ErrEmpty
	}

	var (
		sheets []string
		grid   [][]string
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		sheets, grid, err = readXLSX(data)
	case ".csv":
		sheets = []string{strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))}
		grid, err = readCSV(data)
	default:
		return Table{}, ErrUnsupported
	}
	if err != nil {
		return Table{}, err
	}
	t := toTable(grid)
	t.Sheets = sheets
	if len(t.Rows) == 0 {
		return t, ErrEmpty
	}
	if len(t.Rows) > MaxRows {
		return Table{}, fmt.Errorf("too many rows: %d (max %d)", len(t.Rows), MaxRows)
	}
	return t, nil
}

func readXLSX(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return sheets, rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// toTable treats the first row as headers and keeps only non-empty cells.
// Rows with no values are skipped.
func toTable(grid [][]string) Table {
	var t Table
	if len(grid) == 0 {
		return t
	}
	headers := grid[0]
	for _, h := range headers {
		if h = strings.TrimSpace(h); h != "" {
			t.Headers = append(t.Headers, h)
		}
	}
	for _, row := range grid[1:] {
		rec := make(Record)
		for i, v := range row {
			if i >= len(headers) {
				break
			}
			h := strings.TrimSpace(headers[i])
			if h == "" || v == "" {
				continue
			}
			rec[h] = v
		}
		if len(rec) > 0 {
			t.Rows = append(t.Rows, rec)
		}
	}
	return t
}
