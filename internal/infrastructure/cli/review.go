package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/edimap/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/edimap/pkg/application"
	"github.com/felixgeelhaar/edimap/pkg/domain/chat"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactive review of the current mapping grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := openSession(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeLog()
		if os.Getenv("EDIMAP_SKIP_REVIEW_RUN") == "true" {
			return nil
		}

		p := tea.NewProgram(newReviewModel(cmd.Context(), services), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("review run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(reviewCmd)
}

type reviewMode int

const (
	modeGrid reviewMode = iota
	modeEdit
	modeChat
)

// Messages delivered from service callbacks.
type (
	chatUpdateMsg struct{}
	chatDoneMsg   struct{ err error }
	refreshMsg    struct{ err error }
)

type reviewModel struct {
	ctx     context.Context
	session *application.SessionService
	chat    *application.ChatService
	updates chan tea.Msg

	snap     application.Snapshot
	table    table.Model
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	mode   reviewMode
	col    int
	status string
	width  int
	height int
}

func newReviewModel(ctx context.Context, services *wiring.AppServices) reviewModel {
	updates := make(chan tea.Msg, 64)
	post := func(msg tea.Msg) {
		select {
		case updates <- msg:
		default:
		}
	}
	services.Chat.Subscribe(func(int, chat.Turn) { post(chatUpdateMsg{}) })

	t := table.New(table.WithFocused(true), table.WithHeight(12))
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))
	t.SetStyles(s)

	in := textinput.New()
	in.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := reviewModel{
		ctx:      ctx,
		session:  services.Session,
		chat:     services.Chat,
		updates:  updates,
		table:    t,
		input:    in,
		viewport: viewport.New(80, 8),
		spinner:  sp,
		col:      -1,
		width:    100,
		height:   32,
	}
	m.sync()
	m.moveCol(1)
	return m
}

func (m reviewModel) Init() tea.Cmd {
	return tea.Batch(listen(m.updates), m.spinner.Tick)
}

// listen waits for the next service callback.
func listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case chatUpdateMsg:
		m.renderTranscript()
		return m, listen(m.updates)

	case chatDoneMsg:
		m.sync()
		m.renderTranscript()
		if msg.err != nil {
			m.status = statusErr.Render(MapError(msg.err).Error())
		} else {
			m.status = ""
		}
		return m, nil

	case refreshMsg:
		m.sync()
		if msg.err != nil {
			m.status = statusErr.Render(MapError(msg.err).Error())
		} else {
			m.status = statusDone.Render("Grid refreshed from server")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.chat.Busy() {
			m.renderTranscript()
		}
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeEdit:
			return m.updateEdit(msg)
		case modeChat:
			return m.updateChat(msg)
		}
		if next, cmd, handled := m.updateGrid(msg); handled {
			return next, cmd
		}
		// Page keys scroll the transcript; everything else moves the table.
		var cmd tea.Cmd
		switch msg.String() {
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
		default:
			m.table, cmd = m.table.Update(msg)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m reviewModel) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		return m, tea.Quit, true
	case "left", "h":
		m.moveCol(-1)
		return m, nil, true
	case "right", "l":
		m.moveCol(1)
		return m, nil, true
	case "enter", "e":
		row := m.row()
		if !m.snap.Editable(row, m.col) {
			m.status = statusWarn.Render(fmt.Sprintf("Column %d is not editable for flow %s", m.col, m.snap.Flow))
			return m, nil, true
		}
		v, _ := m.snap.Grid.Cell(row, m.col)
		m.mode = modeEdit
		m.input.Placeholder = "new value"
		m.input.SetValue(v)
		m.input.CursorEnd()
		m.table.Blur()
		focus := m.input.Focus()
		return m, focus, true
	case "c", "tab":
		if m.chat.Busy() {
			m.status = statusWarn.Render("Assistant is still answering")
			return m, nil, true
		}
		m.mode = modeChat
		m.input.Placeholder = "ask about the mapping…"
		m.input.SetValue("")
		m.table.Blur()
		focus := m.input.Focus()
		return m, focus, true
	case "t":
		m.toggleLastReasoning()
		return m, nil, true
	case "r":
		m.status = dimStyle.Render("Refreshing…")
		return m, m.refresh(), true
	}
	return m, nil, false
}

func (m reviewModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveInput()
		return m, nil
	case tea.KeyEnter:
		row, col, value := m.row(), m.col, m.input.Value()
		m.leaveInput()
		applied, err := m.session.ApplyCellEdit(row, col, value)
		switch {
		case err != nil:
			m.status = statusErr.Render(MapError(err).Error())
		case !applied:
			m.status = statusWarn.Render(fmt.Sprintf("Cell (%d, %d) is not editable", row, col))
		default:
			m.status = statusDone.Render(fmt.Sprintf("Row %d col %d set to %q", row, col, value))
		}
		m.sync()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m reviewModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveInput()
		return m, nil
	case tea.KeyEnter:
		query := strings.TrimSpace(m.input.Value())
		m.leaveInput()
		if query == "" {
			return m, nil
		}
		m.status = ""
		chatSvc, ctx := m.chat, m.ctx
		return m, tea.Batch(func() tea.Msg {
			_, err := chatSvc.Submit(ctx, query)
			return chatDoneMsg{err: err}
		}, m.spinner.Tick)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *reviewModel) leaveInput() {
	m.mode = modeGrid
	m.input.Blur()
	m.input.SetValue("")
	m.table.Focus()
}

func (m reviewModel) refresh() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return refreshMsg{err: session.RefreshFromServer(ctx)}
	}
}

func (m *reviewModel) toggleLastReasoning() {
	turns := m.chat.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == chat.RoleAssistant && len(turns[i].Reasoning) > 0 {
			m.chat.ToggleReasoning(i)
			m.renderTranscript()
			return
		}
	}
}

// row is the grid row under the table cursor. Table rows start at grid row 1.
func (m reviewModel) row() int {
	return m.table.Cursor() + 1
}

func (m *reviewModel) moveCol(delta int) {
	width := m.snap.Grid.Width()
	if width == 0 {
		m.col = 0
		return
	}
	m.col += delta
	if m.col < 0 {
		m.col = 0
	}
	if m.col >= width {
		m.col = width - 1
	}
	m.setColumns()
}

// sync copies the session into the view.
func (m *reviewModel) sync() {
	m.snap = m.session.Snapshot()
	cursor := m.table.Cursor()

	rows := make([]table.Row, 0, max(m.snap.Grid.Len()-1, 0))
	for r := 1; r < m.snap.Grid.Len(); r++ {
		idx := strconv.Itoa(r)
		if _, ok := m.snap.Warnings[r]; ok {
			idx += "!"
		}
		cells := clip(m.snap.Grid.Row(r))
		if fl, ok := m.snap.Flags[r]; ok && fl.Col >= 0 && fl.Col < len(cells) {
			cells[fl.Col] = "[" + cells[fl.Col] + "]"
		}
		rows = append(rows, append(table.Row{idx}, cells...))
	}
	m.table.SetRows(nil)
	m.setColumns()
	m.table.SetRows(rows)
	if cursor >= 0 && cursor < len(rows) {
		m.table.SetCursor(cursor)
	}
	m.renderTranscript()
}

func (m *reviewModel) setColumns() {
	header := m.snap.Grid.Header()
	cols := make([]table.Column, 0, len(header)+1)
	cols = append(cols, table.Column{Title: "#", Width: 4})
	for i, h := range header {
		title := h
		if i == m.col {
			title = "▸" + title
		}
		if m.snap.Editable(1, i) {
			title += "*"
		}
		cols = append(cols, table.Column{Title: title, Width: min(max(len([]rune(title)), 6), 18)})
	}
	m.table.SetColumns(cols)
}

func (m *reviewModel) layout() {
	chatHeight := max(m.height/3, 6)
	m.table.SetHeight(max(m.height-chatHeight-9, 4))
	m.table.SetWidth(m.width - 2)
	m.viewport.Width = m.width - 4
	m.viewport.Height = chatHeight
	m.input.Width = m.width - 6
	m.renderTranscript()
}

func (m *reviewModel) renderTranscript() {
	var b strings.Builder
	turns := m.chat.Turns()
	if len(turns) == 0 {
		b.WriteString(dimStyle.Render("Press c to ask the assistant about this mapping."))
	}
	width := max(m.viewport.Width-2, 20)
	for _, turn := range turns {
		if turn.Role == chat.RoleUser {
			b.WriteString(editStyle.Render("You: ") + turn.Content + "\n")
			continue
		}
		if n := len(turn.Reasoning); n > 0 {
			if turn.Collapsed {
				b.WriteString(dimStyle.Render(fmt.Sprintf("▸ reasoning (%d step(s), t to expand)", n)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("▾ reasoning") + "\n")
				b.WriteString(dimStyle.Render(strings.TrimSpace(strings.Join(turn.Reasoning, ""))) + "\n")
			}
		}
		if turn.Content != "" {
			b.WriteString(renderMarkdown(turn.Content, width) + "\n")
		}
		if turn.Error != "" {
			b.WriteString(statusErr.Render("Error: "+turn.Error) + "\n")
		}
		if turn.Thinking {
			b.WriteString(m.spinner.View() + " thinking…\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m reviewModel) View() string {
	title := headerStyle.Render(m.snap.Stage.DisplayName())
	parts := []string{
		title + " " + summaryLine(m.snap),
		m.table.View(),
		m.cellDetail(),
		baseStyle.Width(m.width - 2).Render(m.viewport.View()),
	}
	if m.mode != modeGrid {
		label := "Edit"
		if m.mode == modeChat {
			label = "Ask"
		}
		parts = append(parts, label+": "+m.input.View())
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, dimStyle.Render(m.help()))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (m reviewModel) cellDetail() string {
	row := m.row()
	header := m.snap.Grid.Header()
	if m.col < 0 || m.col >= len(header) {
		return ""
	}
	v, ok := m.snap.Grid.Cell(row, m.col)
	if !ok {
		return ""
	}
	line := fmt.Sprintf("Row %d · %s: %q", row, header[m.col], v)
	if m.snap.Editable(row, m.col) {
		line += editStyle.Render("  editable")
	}
	if w, ok := m.snap.Warnings[row]; ok {
		line += "\n" + statusWarn.Render("warning: "+w)
	}
	if fl, ok := m.snap.Flags[row]; ok {
		line += "\n" + statusErr.Render(fmt.Sprintf("flag (col %d): %s", fl.Col, fl.Reason))
	}
	return line
}

func (m reviewModel) help() string {
	switch m.mode {
	case modeEdit:
		return "[enter] save  [esc] cancel"
	case modeChat:
		return "[enter] ask  [esc] cancel"
	}
	return "[↑/↓] row  [←/→] column  [e] edit  [c] ask  [t] reasoning  [r] refresh  [q] quit"
}
