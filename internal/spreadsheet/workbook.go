package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// ErrEmptyWorkbook is returned when the uploaded file decodes to a workbook
// with zero sheets.
var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// Sheet holds the raw cell matrix of one worksheet. Cells are kept as raw
// strings (serial dates stay numeric); coercion happens later per field.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is the parsed upload, format-agnostic: XLSX, legacy XLS or CSV.
type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the sheet with the given original name, or nil.
func (w *Workbook) Sheet(name string) *Sheet {
	for i := range w.Sheets {
		if w.Sheets[i].Name == name {
			return &w.Sheets[i]
		}
	}
	return nil
}

// Load parses the raw upload bytes. XLSX is tried first, then legacy XLS,
// then CSV (comma or semicolon separated).
func Load(data []byte) (*Workbook, error) {
	if wb, err := loadXLSX(data); err == nil {
		return wb, nil
	}
	if wb, err := loadXLS(data); err == nil {
		return wb, nil
	}
	wb, err := loadCSV(data)
	if err != nil {
		return nil, fmt.Errorf("unsupported or corrupt spreadsheet payload: %w", err)
	}
	return wb, nil
}

func loadXLSX(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

func loadXLS(data []byte) (*Workbook, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	wb := &Workbook{}
	for i := range workbook.GetSheets() {
		sheet, err := workbook.GetSheet(i)
		if err != nil {
			return nil, fmt.Errorf("read xls sheet %d: %w", i, err)
		}
		var rows [][]string
		for _, row := range sheet.GetRows() {
			var cells []string
			for _, col := range row.GetCols() {
				cells = append(cells, col.GetString())
			}
			rows = append(rows, cells)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: sheet.GetName(), Rows: rows})
	}
	return wb, nil
}

func loadCSV(data []byte) (*Workbook, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectCSVDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return &Workbook{Sheets: []Sheet{{Name: "Sheet1", Rows: rows}}}, nil
}

func detectCSVDelimiter(data []byte) rune {
	firstLine := string(data)
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}
