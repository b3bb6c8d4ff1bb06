package grid

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
)

// Edit is a single cell change addressed by position.
type Edit struct {
	Row   int    `json:"row_idx"`
	Col   int    `json:"col_idx"`
	Value string `json:"value"`
}

// Persister stores one cell edit on the server.
type Persister interface {
	PersistCell(ctx context.Context, edit Edit) error
}

// PersistHook observes the outcome of every persistence call. err is nil on success.
type PersistHook func(edit Edit, err error)

// Engine owns the local grid for one session and applies optimistic edits.
//
// Edits mutate the local copy immediately; persistence runs on its own
// goroutine and is never rolled back or retried. Only Load repairs a
// divergence between local and server state.
type Engine struct {
	kind      flow.Kind
	grid      Grid
	mappings  json.RawMessage
	flags     Flags
	persister Persister
	hook      PersistHook
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPersistHook registers a callback invoked after each persistence call.
// The hook runs on the persistence goroutine.
func WithPersistHook(h PersistHook) EngineOption {
	return func(e *Engine) { e.hook = h }
}

// NewEngine creates an empty engine for kind. A nil persister keeps edits local.
func NewEngine(kind flow.Kind, p Persister, opts ...EngineOption) *Engine {
	e := &Engine{
		kind:      kind,
		persister: p,
		flags:     Flags{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind returns the flow kind the engine enforces.
func (e *Engine) Kind() flow.Kind {
	return e.kind
}

// Load replaces the grid and its mapping metadata wholesale.
func (e *Engine) Load(g Grid, mappings json.RawMessage, flags Flags) {
	e.grid = g.Clone()
	e.mappings = append(json.RawMessage(nil), mappings...)
	if flags == nil {
		flags = Flags{}
	}
	e.flags = flags.Clone()
}

// Clear drops the grid and all metadata.
func (e *Engine) Clear() {
	e.grid = Grid{}
	e.mappings = nil
	e.flags = Flags{}
}

// Grid returns a copy of the current grid.
func (e *Engine) Grid() Grid {
	return e.grid.Clone()
}

// Mappings returns the raw mapping metadata last loaded.
func (e *Engine) Mappings() json.RawMessage {
	return append(json.RawMessage(nil), e.mappings...)
}

// Editable reports whether (row, col) may be edited: a data row, an existing
// column, and a column the flow's mask allows.
func (e *Engine) Editable(row, col int) bool {
	if row < 1 || !e.grid.contains(row, col) {
		return false
	}
	return flow.Editable(e.kind, col)
}

// Apply writes value at (row, col) if the cell is editable and dispatches
// its persistence. Non-editable targets are ignored and return false.
func (e *Engine) Apply(row, col int, value string) bool {
	if !e.Editable(row, col) {
		return false
	}
	e.grid.set(row, col, value)

	if e.persister == nil {
		return true
	}
	edit := Edit{Row: row, Col: col, Value: value}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		err := e.persister.PersistCell(context.Background(), edit)
		if err != nil {
			e.logger.Warn("cell edit not persisted",
				"row", edit.Row,
				"col", edit.Col,
				"error", err)
		}
		if e.hook != nil {
			e.hook(edit, err)
		}
	}()
	return true
}

// Wait blocks until every dispatched persistence call has returned.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Overlay derives the annotations for the current grid. It is recomputed on
// every call so it can never go stale.
func (e *Engine) Overlay() Overlay {
	policy, err := flow.Lookup(e.kind)
	if err != nil {
		return Overlay{}
	}
	switch policy.Overlay {
	case flow.OverlayWarnings:
		return Overlay{Warnings: Warnings(e.grid, DiagnosticLookup(e.mappings))}
	case flow.OverlayFlags:
		return Overlay{Flags: e.flags.Clone()}
	default:
		return Overlay{}
	}
}
