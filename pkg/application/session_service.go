package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/edimap/pkg/sdk"
)

// MappingAPI is the server surface the session needs.
type MappingAPI interface {
	Upload(ctx context.Context, kind flow.Kind, docs []sdk.Document) (*sdk.UploadResult, error)
	Generate(ctx context.Context, kind flow.Kind, sessionID string) (*sdk.Mapping, error)
	FetchMapping(ctx context.Context, sessionID string) (*sdk.Mapping, error)
	Download(ctx context.Context, sessionID string, w io.Writer) (*sdk.DownloadResult, error)
	Persister(sessionID string) grid.Persister
}

// Journal records session events. events.EventStore satisfies it.
type Journal interface {
	Append(event *events.BaseEvent) error
}

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	Stage       session.Stage        `json:"stage"`
	Flow        flow.Kind            `json:"flow,omitempty"`
	SessionID   string               `json:"session_id,omitempty"`
	Documents   map[flow.Slot]string `json:"documents,omitempty"`
	Missing     []flow.Slot          `json:"missing,omitempty"`
	Grid        grid.Grid            `json:"grid"`
	Mappings    json.RawMessage      `json:"mappings,omitempty"`
	Warnings    map[int]string       `json:"warnings,omitempty"`
	Flags       grid.Flags           `json:"flags,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	ValidEvents []string             `json:"valid_events"`
}

// Overlay returns the snapshot's annotations.
func (s Snapshot) Overlay() grid.Overlay {
	return grid.Overlay{Warnings: s.Warnings, Flags: s.Flags}
}

// FlaggedRows renders the snapshot's annotated rows.
func (s Snapshot) FlaggedRows() []string {
	return grid.FlaggedRows(s.Grid, s.Overlay())
}

// Editable reports whether (row, col) accepts edits in this snapshot.
func (s Snapshot) Editable(row, col int) bool {
	if !s.Stage.Editable() || row < 1 || row >= s.Grid.Len() || col >= s.Grid.Width() {
		return false
	}
	return flow.Editable(s.Flow, col)
}

// SessionService owns the single active review session: its stage, its
// documents and its grid. All mutation goes through its methods.
//
// Network calls run without holding the lock so readers (the TUI) are never
// blocked; results are discarded when the session was reset meanwhile.
type SessionService struct {
	mu         sync.Mutex
	api        MappingAPI
	repo       session.Repository
	journal    Journal
	dispatcher *events.EventDispatcher
	logger     *slog.Logger

	fsm       *session.StateMachine
	kind      flow.Kind
	sessionID string
	docs      map[flow.Slot]string
	engine    *grid.Engine
	lastErr   string
	epoch     int
	pending   []*events.BaseEvent
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionRepository persists the active session pointer.
func WithSessionRepository(r session.Repository) SessionOption {
	return func(s *SessionService) { s.repo = r }
}

// WithJournal records every transition and edit.
func WithJournal(j Journal) SessionOption {
	return func(s *SessionService) { s.journal = j }
}

// WithDispatcher publishes every journal event to d.
func WithDispatcher(d *events.EventDispatcher) SessionOption {
	return func(s *SessionService) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSessionService(api MappingAPI, opts ...SessionOption) *SessionService {
	s := &SessionService{
		api:        api,
		dispatcher: events.NewEventDispatcher(),
		logger:     slog.Default(),
		docs:       map[flow.Slot]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fsm = s.newMachine(session.StageIdle)
	return s
}

// Events returns the dispatcher journal events are published on.
func (s *SessionService) Events() *events.EventDispatcher {
	return s.dispatcher
}

// SelectFlow starts collecting documents for kind. Previously attached
// documents are dropped.
func (s *SessionService) SelectFlow(kind flow.Kind) error {
	policy, err := flow.Lookup(kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if err := s.fsm.Transition(session.EventSelectFlow); err != nil {
		return err
	}
	s.kind = policy.Kind
	s.docs = map[flow.Slot]string{}
	s.engine = nil
	s.lastErr = ""
	s.record(events.TypeFlowSelected, nil)
	return nil
}

// AttachDocument sets the file for one of the flow's document slots.
func (s *SessionService) AttachDocument(slot flow.Slot, path string) error {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	stage := s.fsm.CurrentStage()
	if stage != session.StageCollectingInputs {
		return &session.TransitionError{From: stage, Event: "attach_document"}
	}
	policy, err := flow.Lookup(s.kind)
	if err != nil {
		return err
	}
	if !policy.Requires(slot) {
		return fmt.Errorf("%w: %s for flow %s", ErrUnexpectedDocument, slot, s.kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", slot, err)
	}
	if info.IsDir() {
		return fmt.Errorf("attach %s: %s is a directory", slot, path)
	}

	s.docs[slot] = path
	s.record(events.TypeDocumentAttached, map[string]interface{}{
		"slot": string(slot),
		"name": filepath.Base(path),
	})
	return nil
}

// SubmitDocuments uploads the documents and runs generation. Missing
// documents fail fast with ErrInputIncomplete before any server call. Any
// later failure returns the session to collecting inputs with the documents
// still attached.
func (s *SessionService) SubmitDocuments(ctx context.Context) error {
	defer s.flush()
	s.mu.Lock()
	stage := s.fsm.CurrentStage()
	if stage != session.StageCollectingInputs {
		s.mu.Unlock()
		return &session.TransitionError{From: stage, Event: session.EventSubmit}
	}
	policy, _ := flow.Lookup(s.kind)
	if missing := policy.Missing(s.docs); len(missing) > 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInputIncomplete, joinSlots(missing))
	}
	if err := s.fsm.Transition(session.EventSubmit); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastErr = ""
	s.record(events.TypeSubmitted, map[string]interface{}{"documents": len(s.docs)})
	kind, epoch := s.kind, s.epoch
	docs := make(map[flow.Slot]string, len(s.docs))
	for k, v := range s.docs {
		docs[k] = v
	}
	s.mu.Unlock()

	id, mapping, err := s.generate(ctx, kind, docs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// Reset while we were waiting on the server.
		return session.ErrNoSession
	}
	if err != nil {
		return s.fail(err)
	}

	s.sessionID = id
	s.engine = s.newEngine(kind, id)
	s.engine.Load(mapping.Grid, mapping.Mappings, mapping.Flags)
	if err := s.fsm.Transition(session.EventGenerated); err != nil {
		return err
	}
	s.record(events.TypeGenerated, map[string]interface{}{
		"rows":    mapping.Grid.Len() - 1,
		"version": mapping.Version,
	})
	s.saveRecord(docs)
	return nil
}

func (s *SessionService) generate(ctx context.Context, kind flow.Kind, docs map[flow.Slot]string) (string, *sdk.Mapping, error) {
	uploads := make([]sdk.Document, 0, len(docs))
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	policy, _ := flow.Lookup(kind)
	for _, slot := range policy.Required() {
		path := docs[slot]
		// #nosec G304 -- user-selected input document
		f, err := os.Open(path)
		if err != nil {
			return "", nil, fmt.Errorf("open %s: %w", slot, err)
		}
		files = append(files, f)
		uploads = append(uploads, sdk.Document{Slot: slot, Name: filepath.Base(path), Body: f})
	}

	up, err := s.api.Upload(ctx, kind, uploads)
	if err != nil {
		return "", nil, err
	}
	mapping, err := s.api.Generate(ctx, kind, up.SessionID)
	if err != nil {
		return up.SessionID, nil, err
	}
	if mapping.Grid.IsEmpty() {
		return up.SessionID, nil, ErrEmptyGrid
	}
	return up.SessionID, mapping, nil
}

// fail bounces back to collecting inputs. Callers hold the lock.
func (s *SessionService) fail(cause error) error {
	if err := s.fsm.Transition(session.EventFail); err != nil {
		return errors.Join(cause, err)
	}
	s.lastErr = cause.Error()
	s.sessionID = ""
	s.engine = nil
	s.logger.Warn("generation failed", "flow", string(s.kind), "error", cause)
	s.record(events.TypeGenerationFailed, map[string]interface{}{"error": cause.Error()})
	return cause
}

// ApplyCellEdit writes value locally at once and persists it in the
// background. Edits to cells the flow does not allow are ignored and return
// false with no error.
func (s *SessionService) ApplyCellEdit(row, col int, value string) (bool, error) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if s.engine == nil || !s.fsm.CurrentStage().Editable() {
		return false, session.ErrNoSession
	}
	if !s.engine.Apply(row, col, value) {
		return false, nil
	}
	s.record(events.TypeCellEdited, map[string]interface{}{
		"row":   row,
		"col":   col,
		"value": value,
	})
	return true, nil
}

// RefreshFromServer replaces the grid and metadata with the server's
// canonical copy. On failure the current grid is left untouched.
func (s *SessionService) RefreshFromServer(ctx context.Context) error {
	defer s.flush()
	s.mu.Lock()
	if s.engine == nil || s.fsm.CurrentStage() != session.StageReviewing {
		s.mu.Unlock()
		return session.ErrNoSession
	}
	id, epoch := s.sessionID, s.epoch
	s.mu.Unlock()

	mapping, err := s.api.FetchMapping(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if mapping.Grid.IsEmpty() {
		return fmt.Errorf("refresh: %w", ErrEmptyGrid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.engine == nil {
		return session.ErrNoSession
	}
	flags := mapping.Flags
	if !mapping.HasFlags {
		// The fetch endpoint usually omits flags; keep the generated ones.
		flags = s.engine.Overlay().Flags
	}
	s.engine.Load(mapping.Grid, mapping.Mappings, flags)
	s.record(events.TypeGridRefreshed, map[string]interface{}{"rows": mapping.Grid.Len() - 1})
	return nil
}

// Download writes the server's spreadsheet export to w.
func (s *SessionService) Download(ctx context.Context, w io.Writer) (*sdk.DownloadResult, error) {
	id := s.SessionID()
	if id == "" {
		return nil, session.ErrNoSession
	}
	return s.api.Download(ctx, id, w)
}

// Reset discards the session id, documents, grid and overlays from any stage.
func (s *SessionService) Reset() error {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if err := s.fsm.Transition(session.EventReset); err != nil {
		return err
	}
	s.epoch++
	s.kind = ""
	s.sessionID = ""
	s.docs = map[flow.Slot]string{}
	s.engine = nil
	s.lastErr = ""
	if s.repo != nil {
		if err := s.repo.ClearSession(); err != nil {
			s.logger.Warn("failed to clear session record", "error", err)
		}
	}
	s.record(events.TypeReset, nil)
	return nil
}

// Resume re-enters review for an existing server session, fetching its
// current grid. On failure the service is left unchanged.
func (s *SessionService) Resume(ctx context.Context, id string, kind flow.Kind) error {
	if id == "" {
		return session.ErrNoSession
	}
	if _, err := flow.Lookup(kind); err != nil {
		return err
	}
	mapping, err := s.api.FetchMapping(ctx, id)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if mapping.Grid.IsEmpty() {
		return fmt.Errorf("resume: %w", ErrEmptyGrid)
	}

	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()
	s.epoch++
	s.fsm = s.newMachine(session.StageReviewing)
	s.kind = kind
	s.sessionID = id
	s.docs = map[flow.Slot]string{}
	s.lastErr = ""
	s.engine = s.newEngine(kind, id)
	s.engine.Load(mapping.Grid, mapping.Mappings, mapping.Flags)
	s.record(events.TypeResumed, map[string]interface{}{"rows": mapping.Grid.Len() - 1})
	return nil
}

// ResumeStored resumes the session saved in the repository.
func (s *SessionService) ResumeStored(ctx context.Context) (*session.Record, error) {
	if s.repo == nil {
		return nil, session.ErrNoSession
	}
	rec, err := s.repo.LoadSession()
	if err != nil {
		return nil, err
	}
	if err := s.Resume(ctx, rec.ID, rec.Flow); err != nil {
		return rec, err
	}
	return rec, nil
}

// Wait blocks until in-flight cell persistence has finished.
func (s *SessionService) Wait() {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine != nil {
		engine.Wait()
	}
}

// SessionID returns the server session id, or "" when none is active.
func (s *SessionService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Stage returns the current lifecycle stage.
func (s *SessionService) Stage() session.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.CurrentStage()
}

// Snapshot returns copies of everything a view needs.
func (s *SessionService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Stage:       s.fsm.CurrentStage(),
		Flow:        s.kind,
		SessionID:   s.sessionID,
		Documents:   make(map[flow.Slot]string, len(s.docs)),
		LastError:   s.lastErr,
		ValidEvents: s.fsm.ValidEvents(),
	}
	for k, v := range s.docs {
		snap.Documents[k] = v
	}
	if snap.Stage == session.StageCollectingInputs {
		if policy, err := flow.Lookup(s.kind); err == nil {
			snap.Missing = policy.Missing(s.docs)
		}
	}
	if s.engine != nil {
		overlay := s.engine.Overlay()
		snap.Grid = s.engine.Grid()
		snap.Mappings = s.engine.Mappings()
		snap.Warnings = overlay.Warnings
		snap.Flags = overlay.Flags
	}
	return snap
}

func (s *SessionService) newMachine(initial session.Stage) *session.StateMachine {
	fsm, err := session.NewStateMachine(initial, s.inputsReady)
	if err != nil {
		// The machine definition is static; failing here is a programming error.
		panic(err)
	}
	return fsm
}

// inputsReady guards submit. It runs inside Transition with the lock held.
func (s *SessionService) inputsReady(event string) bool {
	if event != session.EventSubmit {
		return true
	}
	policy, err := flow.Lookup(s.kind)
	return err == nil && policy.Satisfied(s.docs)
}

func (s *SessionService) newEngine(kind flow.Kind, id string) *grid.Engine {
	return grid.NewEngine(kind, s.api.Persister(id),
		grid.WithLogger(s.logger.With("session", id)),
		grid.WithPersistHook(func(edit grid.Edit, err error) {
			if err == nil {
				return
			}
			// Runs on the persistence goroutine; must not take s.mu.
			s.emit(events.New(events.TypeCellNotPersisted, id, string(kind), map[string]interface{}{
				"row":   edit.Row,
				"col":   edit.Col,
				"error": err.Error(),
			}))
		}))
}

func (s *SessionService) saveRecord(docs map[flow.Slot]string) {
	if s.repo == nil {
		return
	}
	names := make(map[flow.Slot]string, len(docs))
	for k, v := range docs {
		names[k] = filepath.Base(v)
	}
	rec := &session.Record{
		ID:        s.sessionID,
		Flow:      s.kind,
		Documents: names,
		CreatedAt: time.Now().UTC(),
	}
	if b, ok := s.api.(interface{ BaseURL() string }); ok {
		rec.BaseURL = b.BaseURL()
	}
	if err := s.repo.SaveSession(rec); err != nil {
		s.logger.Warn("failed to save session record", "session", s.sessionID, "error", err)
	}
}

// record journals an event for the current session and queues it for
// dispatch. Callers hold the lock.
func (s *SessionService) record(eventType string, metadata map[string]interface{}) {
	ev := events.New(eventType, s.sessionID, string(s.kind), metadata)
	s.journalEvent(ev)
	s.pending = append(s.pending, ev)
}

// flush dispatches queued events. It runs after the lock is released so
// handlers may call back into the service.
func (s *SessionService) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ev := range pending {
		s.dispatch(ev)
	}
}

func (s *SessionService) emit(ev *events.BaseEvent) {
	s.journalEvent(ev)
	s.dispatch(ev)
}

func (s *SessionService) journalEvent(ev *events.BaseEvent) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ev); err != nil {
		s.logger.Warn("failed to journal event", "type", ev.Type, "error", err)
	}
}

func (s *SessionService) dispatch(ev *events.BaseEvent) {
	if err := s.dispatcher.Dispatch(context.Background(), ev); err != nil {
		s.logger.Warn("event handler failed", "type", ev.Type, "error", err)
	}
}

func joinSlots(slots []flow.Slot) string {
	names := make([]string, len(slots))
	for i, sl := range slots {
		names[i] = string(sl)
	}
	return strings.Join(names, ", ")
}
