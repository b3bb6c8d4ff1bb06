package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/felixgeelhaar/edimap/pkg/application"
)

// Styles
var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var (
	statusDone = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	editStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
)

const maxCellWidth = 24

// renderGrid draws the snapshot's grid. Warning rows are marked with "!"
// after the row index and a flagged cell is wrapped in brackets, so the
// markers survive when colour is unavailable.
func renderGrid(snap application.Snapshot) string {
	g := snap.Grid
	if g.Len() == 0 {
		return dimStyle.Render("(empty grid)")
	}

	headers := append([]string{"#"}, clip(g.Header())...)
	rows := make([][]string, 0, g.Len()-1)
	for r := 1; r < g.Len(); r++ {
		idx := strconv.Itoa(r)
		if _, ok := snap.Warnings[r]; ok {
			idx += "!"
		}
		cells := clip(g.Row(r))
		if fl, ok := snap.Flags[r]; ok && fl.Col >= 0 && fl.Col < len(cells) {
			cells[fl.Col] = "[" + cells[fl.Col] + "]"
		}
		rows = append(rows, append([]string{idx}, cells...))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			r, c := row+1, col-1
			if fl, ok := snap.Flags[r]; ok && fl.Col == c {
				return s.Foreground(lipgloss.Color("196")).Bold(true)
			}
			if _, ok := snap.Warnings[r]; ok {
				return s.Foreground(lipgloss.Color("214"))
			}
			if c >= 0 && snap.Editable(r, c) {
				return s.Foreground(lipgloss.Color("81"))
			}
			return s
		})
	return t.String()
}

func clip(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "\n", " ")
		if len([]rune(c)) > maxCellWidth {
			c = string([]rune(c)[:maxCellWidth-1]) + "…"
		}
		out[i] = c
	}
	return out
}

// summaryLine describes a snapshot in one line.
func summaryLine(snap application.Snapshot) string {
	parts := []string{
		fmt.Sprintf("flow %s", snap.Flow),
		fmt.Sprintf("session %s", snap.SessionID),
		fmt.Sprintf("%d rows", max(snap.Grid.Len()-1, 0)),
	}
	if n := len(snap.Warnings); n > 0 {
		parts = append(parts, statusWarn.Render(fmt.Sprintf("%d warning(s)", n)))
	}
	if n := len(snap.Flags); n > 0 {
		parts = append(parts, statusErr.Render(fmt.Sprintf("%d flag(s)", n)))
	}
	return strings.Join(parts, " · ")
}
