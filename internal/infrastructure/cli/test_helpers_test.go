package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/config"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/felixgeelhaar/edimap/pkg/export"
	"github.com/spf13/pflag"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	return <-done
}

// runCLI executes the root command with fresh flag values and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var err error
	out := captureStdout(t, func() {
		RootCmd.SetArgs(args)
		err = Execute()
	})
	return out, err
}

func resetFlags() {
	projectPath, logLevel, verbose = "", "", false
	generateFlow, generateEDI, generatePDF = "", "", ""
	showJSONOutput, flowsJSONOutput, historyJSONOutput = false, false, false
	historyTypes = nil
	downloadOutput, snapshotOutput, downloadSummary = "", "", true
	chatShowReasoning = false
	initBaseURL, initTimeout, initFetchAttempts, initLogLevel = config.DefaultBaseURL, 0, 1, "info"
	reset := func(f *pflag.Flag) {
		if f.Name == "help" {
			_ = f.Value.Set("false")
		}
		f.Changed = false
	}
	RootCmd.Flags().VisitAll(reset)
	RootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range RootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
}

// fakeMapper is an in-memory stand-in for the mapping service.
type fakeMapper struct {
	mu      sync.Mutex
	grid    [][]string
	updates []grid.Edit
	uploads []string
	chats   []string
	chatOut string

	failUpdates bool
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{
		grid: [][]string{
			{"Field", "B", "C"},
			{"BEG01", "00", ""},
			{"REF01", "", ""},
		},
		chatOut: `{"type":"thought","content":"Reading grid. "}{"type":"message","content":"REF01 needs a **qualifier**."}`,
	}
}

func (f *fakeMapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mappings := map[string]any{
		"0010": map[string]any{"REF01": map[string]any{"validation_warning": "qualifier not in PDF"}},
	}
	switch {
	case r.URL.Path == "/api/850/upload":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, `{"detail":"bad form"}`, http.StatusBadRequest)
			return
		}
		for name := range r.MultipartForm.File {
			f.uploads = append(f.uploads, name)
		}
		writeJSON(w, map[string]any{"session_id": "s1"})
	case r.URL.Path == "/api/850/generate/s1":
		writeJSON(w, map[string]any{
			"status":   "success",
			"mappings": map[string]any{"grid": f.grid, "mappings": mappings},
		})
	case r.URL.Path == "/api/mappings/s1":
		writeJSON(w, map[string]any{"grid": f.grid, "mappings": mappings})
	case r.URL.Path == "/api/mappings/s1/update" && f.failUpdates:
		http.Error(w, `{"detail":"database is locked"}`, http.StatusInternalServerError)
	case r.URL.Path == "/api/mappings/s1/update":
		var e grid.Edit
		_ = json.NewDecoder(r.Body).Decode(&e)
		f.updates = append(f.updates, e)
		f.grid[e.Row][e.Col] = e.Value
		writeJSON(w, map[string]any{"status": "ok"})
	case r.URL.Path == "/api/download/s1":
		var buf bytes.Buffer
		if err := export.WriteSnapshot(&buf, flow.Kind850, grid.MustNew(f.grid), grid.Overlay{}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="all_mappings.xlsx"`)
		_, _ = w.Write(buf.Bytes())
	case r.URL.Path == "/api/chat/s1":
		body, _ := io.ReadAll(r.Body)
		f.chats = append(f.chats, string(body))
		_, _ = io.WriteString(w, f.chatOut)
	case strings.HasPrefix(r.URL.Path, "/api/mappings/"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Session not found"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeMapper) recorded() (uploads []string, updates []grid.Edit, chats []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...), append([]grid.Edit(nil), f.updates...), append([]string(nil), f.chats...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// workspace starts a fake server and points a fresh workspace at it.
func workspace(t *testing.T) (string, *fakeMapper) {
	t.Helper()
	mapper := newFakeMapper()
	srv := httptest.NewServer(mapper)
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvBaseURL, srv.URL)
	t.Setenv(config.EnvRequestTimeout, "")
	return t.TempDir(), mapper
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}
