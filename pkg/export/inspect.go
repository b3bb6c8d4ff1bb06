package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/xuri/excelize/v2"
)

// ErrEmptyGrid is returned when there is nothing to export or read.
var ErrEmptyGrid = errors.New("grid is empty")

// SheetSummary describes one worksheet of a workbook.
type SheetSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns int      `json:"columns"`
	Header  []string `json:"header"`
}

// Summarize lists every sheet of the workbook read from r.
func Summarize(r io.Reader) ([]SheetSummary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []SheetSummary
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		s := SheetSummary{Name: name, Rows: len(rows)}
		for _, row := range rows {
			if len(row) > s.Columns {
				s.Columns = len(row)
			}
		}
		if len(rows) > 0 {
			s.Header = rows[0]
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadGrid loads the first sheet of the workbook as a grid. The reader trims
// trailing empty cells, so short rows are padded back to the header width.
func ReadGrid(r io.Reader) (grid.Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return grid.Grid{}, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) == 0 {
		return grid.Grid{}, ErrEmptyGrid
	}
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}
	padded := make([][]string, len(rows))
	for i, row := range rows {
		padded[i] = make([]string, width)
		copy(padded[i], row)
	}
	return grid.New(padded)
}
