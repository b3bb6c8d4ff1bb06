package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/edimap/pkg/application"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/mcp-go"
)

// Server exposes the active review session to MCP clients.
type Server struct {
	mcpServer *mcp.Server
	session   *application.SessionService
}

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// defaultReadLimit mirrors how much grid an assistant reads at once.
const defaultReadLimit = 15

// mcpErr returns a user-friendly error for MCP clients.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

func NewServer(services *wiring.AppServices) (*Server, error) {
	if services == nil || services.Session == nil {
		return nil, fmt.Errorf("services initialization returned nil")
	}

	info := mcp.ServerInfo{
		Name:    "edimap",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("edimap MCP Server"),
			mcp.WithDescription("edimap exposes the active EDI mapping review session: its grid, its flagged rows and cell edits."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Call read_grid before update_cell; row and column indices are 0-based and row 0 is the header."),
		),
		session: services.Session,
	}
	s.registerTools()
	return s, nil
}

type ReadGridArgs struct {
	Offset FlexInt `json:"offset,omitempty" jsonschema:"description=First row index to return (default 0)"`
	Limit  FlexInt `json:"limit,omitempty" jsonschema:"description=Maximum rows to return (default 15)"`
}

type UpdateCellArgs struct {
	Row     FlexInt `json:"row" jsonschema:"description=0-based row index (row 0 is the header)"`
	Col     FlexInt `json:"col" jsonschema:"description=0-based column index"`
	Value   string  `json:"value" jsonschema:"description=New cell value"`
	Element string  `json:"element,omitempty" jsonschema:"description=Element tag expected on the row, e.g. REF01; the edit is refused when the row does not carry it"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("read_grid").
		Description("Read rows of the mapping grid with their indices and any warning or flag").
		Handler(s.handleReadGrid)

	s.mcpServer.Tool("get_flagged_rows").
		Description("List every row carrying a validation warning or a PDF discrepancy flag").
		Handler(s.handleGetFlaggedRows)

	s.mcpServer.Tool("update_cell").
		Description("Edit one cell of the grid. Only the flow's editable columns accept changes").
		Handler(s.handleUpdateCell)
}

// GridRow is one row as returned by read_grid.
type GridRow struct {
	Index   int      `json:"index"`
	Values  []string `json:"values"`
	Warning string   `json:"warning,omitempty"`
	Flag    string   `json:"flag,omitempty"`
	FlagCol *int     `json:"flag_col,omitempty"`
}

// GridPage is the read_grid result.
type GridPage struct {
	Flow      string    `json:"flow"`
	SessionID string    `json:"session_id"`
	TotalRows int       `json:"total_rows"`
	Editable  []int     `json:"editable_columns"`
	Rows      []GridRow `json:"rows"`
}

func (s *Server) handleReadGrid(ctx context.Context, args ReadGridArgs) (any, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	offset, limit := int(args.Offset), int(args.Limit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	page := GridPage{
		Flow:      string(snap.Flow),
		SessionID: snap.SessionID,
		TotalRows: snap.Grid.Len(),
		Editable:  editableColumns(snap),
		Rows:      []GridRow{},
	}
	for r := offset; r < snap.Grid.Len() && r < offset+limit; r++ {
		row := GridRow{Index: r, Values: snap.Grid.Row(r), Warning: snap.Warnings[r]}
		if fl, ok := snap.Flags[r]; ok {
			col := fl.Col
			row.Flag = fl.Reason
			row.FlagCol = &col
		}
		page.Rows = append(page.Rows, row)
	}
	return page, nil
}

func (s *Server) handleGetFlaggedRows(ctx context.Context, args struct{}) (string, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	lines := snap.FlaggedRows()
	if len(lines) == 0 {
		return "No flagged rows found. The grid appears valid.", nil
	}
	return "FLAGGED ROWS:\n" + strings.Join(lines, "\n"), nil
}

func (s *Server) handleUpdateCell(ctx context.Context, args UpdateCellArgs) (string, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	row, col := int(args.Row), int(args.Col)
	old, ok := snap.Grid.Cell(row, col)
	if !ok {
		return "", mcpErr(fmt.Sprintf("Cell (%d, %d) is outside the grid (%d rows x %d columns).", row, col, snap.Grid.Len(), snap.Grid.Width()))
	}
	if args.Element != "" && !rowCarries(snap.Grid.Row(row), args.Element) {
		return "", mcpErr(fmt.Sprintf("Row %d does not carry element %q. Call read_grid again and use the correct index.", row, args.Element))
	}

	applied, err := s.session.ApplyCellEdit(row, col, args.Value)
	if err != nil {
		return "", mcpErr("No review session is active. Run 'edimap generate' first.")
	}
	if !applied {
		return "", mcpErr(fmt.Sprintf("Column %d is not editable for flow %s. Editable columns: %v.", col, snap.Flow, editableColumns(snap)))
	}
	s.session.Wait()
	return fmt.Sprintf("Updated row %d, col %d: %q -> %q", row, col, old, args.Value), nil
}

// current returns the active session, resuming the stored one when needed.
func (s *Server) current(ctx context.Context) (application.Snapshot, error) {
	if s.session.Stage() != session.StageReviewing {
		if _, err := s.session.ResumeStored(ctx); err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return application.Snapshot{}, mcpErr("No review session is active. Run 'edimap generate' first.")
			}
			return application.Snapshot{}, mcpErr("Failed to load the review session from the mapping service.")
		}
	}
	snap := s.session.Snapshot()
	if snap.Grid.IsEmpty() {
		return snap, mcpErr("Grid is empty.")
	}
	return snap, nil
}

func editableColumns(snap application.Snapshot) []int {
	var cols []int
	for c := 0; c < snap.Grid.Width(); c++ {
		if snap.Editable(1, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func rowCarries(row []string, element string) bool {
	for _, v := range row {
		if strings.Contains(v, element) {
			return true
		}
	}
	return false
}

// FlexInt accepts both integer and string JSON values.
// MCP clients sometimes send string values for numeric fields.
type FlexInt int

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = FlexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			*fi = FlexInt(n)
			return nil
		}
	}
	return fmt.Errorf("expected integer or string, got %s", string(data))
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}
