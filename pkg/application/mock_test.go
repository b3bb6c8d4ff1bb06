package application_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/edimap/pkg/sdk"
)

// MockAPI records calls and returns canned responses.
type MockAPI struct {
	mu sync.Mutex

	UploadErr   error
	GenerateErr error
	FetchErr    error
	PersistErr  error
	Generated   *sdk.Mapping
	Fetched     *sdk.Mapping
	Export      []byte

	Uploads  []map[flow.Slot]string
	Fetches  int
	Persists []grid.Edit
	Chunks   []string
	ChatErr  error
	Queries  []string
}

func (m *MockAPI) Upload(_ context.Context, _ flow.Kind, docs []sdk.Document) (*sdk.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contents := map[flow.Slot]string{}
	for _, d := range docs {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(d.Body); err != nil {
			return nil, err
		}
		contents[d.Slot] = buf.String()
	}
	m.Uploads = append(m.Uploads, contents)
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	return &sdk.UploadResult{SessionID: "sess-1"}, nil
}

func (m *MockAPI) Generate(_ context.Context, _ flow.Kind, _ string) (*sdk.Mapping, error) {
	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}
	return m.Generated, nil
}

func (m *MockAPI) FetchMapping(_ context.Context, _ string) (*sdk.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return m.Fetched, nil
}

func (m *MockAPI) Download(_ context.Context, _ string, w io.Writer) (*sdk.DownloadResult, error) {
	if len(m.Export) == 0 {
		return nil, sdk.ErrNoContent
	}
	n, err := w.Write(m.Export)
	return &sdk.DownloadResult{Filename: "all_mappings.xlsx", Size: int64(n)}, err
}

func (m *MockAPI) Persister(string) grid.Persister {
	return m
}

func (m *MockAPI) PersistCell(_ context.Context, e grid.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Persists = append(m.Persists, e)
	return m.PersistErr
}

func (m *MockAPI) Chat(_ context.Context, _ string, query string, onChunk func([]byte)) error {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	chunks := append([]string(nil), m.Chunks...)
	m.mu.Unlock()
	for _, c := range chunks {
		onChunk([]byte(c))
	}
	return m.ChatErr
}

// MockRepo keeps the session record in memory.
type MockRepo struct {
	Record    *session.Record
	SaveError error
	Cleared   int
}

func (m *MockRepo) SaveSession(r *session.Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Record = r
	return nil
}

func (m *MockRepo) LoadSession() (*session.Record, error) {
	if m.Record == nil {
		return nil, session.ErrNoSession
	}
	return m.Record, nil
}

func (m *MockRepo) ClearSession() error {
	m.Cleared++
	m.Record = nil
	return nil
}

// MockJournal collects appended events.
type MockJournal struct {
	mu     sync.Mutex
	Events []*events.BaseEvent
}

func (j *MockJournal) Append(e *events.BaseEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Events = append(j.Events, e)
	return nil
}

func (j *MockJournal) Types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.Events))
	for i, e := range j.Events {
		out[i] = e.Type
	}
	return out
}

var errConnRefused = errors.New("connection refused")

func mapping850() *sdk.Mapping {
	return &sdk.Mapping{
		Grid: grid.MustNew([][]string{
			{"Field", "B", "C"},
			{"FIELD_B", "", ""},
			{"FIELD_A", "", ""},
		}),
		Mappings: []byte(`{"0010": {"FIELD_A": {"validation_warning": "bad code"}}}`),
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}
