// Package export writes and inspects spreadsheet copies of a mapping grid.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/xuri/excelize/v2"
)

const commentAuthor = "edimap"

// Fill colours.
const (
	colorEditable = "DDEBF7"
	colorWarning  = "FFF2CC"
	colorFlag     = "F8CBAD"
)

// maxSheetName is the spreadsheet format's limit.
const maxSheetName = 31

// WriteSnapshot writes g as a single-sheet workbook. Editable columns are
// shaded; warning rows and flagged cells are filled and carry the reason as
// a cell comment.
func WriteSnapshot(w io.Writer, kind flow.Kind, g grid.Grid, o grid.Overlay) (err error) {
	policy, err := flow.Lookup(kind)
	if err != nil {
		return err
	}
	if g.Len() == 0 {
		return fmt.Errorf("snapshot: %w", ErrEmptyGrid)
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sheet := sheetName(policy.Title)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	for r := 0; r < g.Len(); r++ {
		row := g.Row(r)
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		start, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("snapshot: row %d: %w", r, err)
		}
	}

	width := g.Width()
	last, _ := excelize.ColumnNumberToName(width)
	if err := f.SetCellStyle(sheet, "A1", last+"1", styles.header); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if g.Len() > 1 {
		for _, col := range policy.EditableColumns() {
			if col >= width {
				continue
			}
			top, _ := excelize.CoordinatesToCellName(col+1, 2)
			bottom, _ := excelize.CoordinatesToCellName(col+1, g.Len())
			if err := f.SetCellStyle(sheet, top, bottom, styles.editable); err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
		}
	}

	for _, r := range sortedRows(o.Warnings) {
		if r < 1 || r >= g.Len() {
			continue
		}
		first, _ := excelize.CoordinatesToCellName(1, r+1)
		end, _ := excelize.CoordinatesToCellName(width, r+1)
		if err := f.SetCellStyle(sheet, first, end, styles.warning); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := annotate(f, sheet, first, o.Warnings[r]); err != nil {
			return err
		}
	}

	for _, r := range sortedRows(o.Flags) {
		fl := o.Flags[r]
		if r < 1 || r >= g.Len() || fl.Col < 0 || fl.Col >= width {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(fl.Col+1, r+1)
		if err := f.SetCellStyle(sheet, cell, cell, styles.flag); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := annotate(f, sheet, cell, fl.Reason); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return nil
}

type styleSet struct {
	header, editable, warning, flag int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	if s.editable, err = f.NewStyle(fill(colorEditable)); err != nil {
		return s, err
	}
	if s.warning, err = f.NewStyle(fill(colorWarning)); err != nil {
		return s, err
	}
	if s.flag, err = f.NewStyle(fill(colorFlag)); err != nil {
		return s, err
	}
	return s, nil
}

func fill(color string) *excelize.Style {
	return &excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}}
}

func annotate(f *excelize.File, sheet, cell, text string) error {
	if text == "" {
		return nil
	}
	if err := f.AddComment(sheet, excelize.Comment{Cell: cell, Author: commentAuthor, Text: text}); err != nil {
		return fmt.Errorf("snapshot: comment %s: %w", cell, err)
	}
	return nil
}

func sheetName(title string) string {
	if len(title) > maxSheetName {
		return title[:maxSheetName]
	}
	return title
}

func sortedRows[V any](m map[int]V) []int {
	rows := make([]int, 0, len(m))
	for r := range m {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}
