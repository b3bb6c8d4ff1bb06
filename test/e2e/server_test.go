package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// mapper is a minimal in-memory mapping service covering every flow.
type mapper struct {
	mu       sync.Mutex
	next     int
	sessions map[string]*mapperSession
}

type mapperSession struct {
	kind string
	grid [][]string
}

func startMapper(t *testing.T) *httptest.Server {
	t.Helper()
	m := &mapper{sessions: map[string]*mapperSession{}}
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return srv
}

func nestleRow(element, rule string) []string {
	row := make([]string, 16)
	row[6] = "BEG"
	row[7] = element
	row[9] = rule
	return row
}

func seedGrid(kind string) [][]string {
	switch kind {
	case "850":
		return [][]string{{"Field", "Value", "Note"}, {"BEG01", "00", ""}, {"REF01", "", ""}}
	case "856":
		return [][]string{
			{"Seg.", "Occ.", "Element", "Type", "Source (Mapping)", "Hardcode", "Meaning", "Req"},
			{"BSN", "1", "BSN01", "ID", "", "00", "Original", "M"},
		}
	}
	header := make([]string, 16)
	for i := range header {
		header[i] = fmt.Sprintf("C%d", i)
	}
	return [][]string{header, nestleRow("BEG01", "Map 00"), nestleRow("BEG02", "Map SA")}
}

func (m *mapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		http.NotFound(w, r)
		return
	}

	switch {
	case parts[2] == "upload":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, `{"detail":"bad form"}`, http.StatusBadRequest)
			return
		}
		m.next++
		id := fmt.Sprintf("s%d", m.next)
		m.sessions[id] = &mapperSession{kind: parts[1], grid: seedGrid(parts[1])}
		reply(w, map[string]any{"session_id": id})

	case parts[2] == "generate" && len(parts) == 4:
		s, ok := m.sessions[parts[3]]
		if !ok {
			notFound(w)
			return
		}
		reply(w, map[string]any{"status": "success", "mappings": m.body(s)})

	case parts[1] == "mappings" && len(parts) == 3:
		s, ok := m.sessions[parts[2]]
		if !ok {
			notFound(w)
			return
		}
		reply(w, m.body(s))

	case parts[1] == "mappings" && len(parts) == 4 && parts[3] == "update":
		s, ok := m.sessions[parts[2]]
		if !ok {
			notFound(w)
			return
		}
		var e struct {
			Row   int    `json:"row_idx"`
			Col   int    `json:"col_idx"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil || e.Row >= len(s.grid) || e.Col >= len(s.grid[0]) {
			http.Error(w, `{"detail":"bad edit"}`, http.StatusBadRequest)
			return
		}
		s.grid[e.Row][e.Col] = e.Value
		reply(w, map[string]any{"status": "ok"})

	case parts[1] == "chat":
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"type":"thought","content":"Checking flags."}`)
		_, _ = io.WriteString(w, `{"type":"message","content":"Use qualifier ZZ."}`)

	default:
		http.NotFound(w, r)
	}
}

func (m *mapper) body(s *mapperSession) map[string]any {
	out := map[string]any{"grid": s.grid}
	switch s.kind {
	case "850":
		out["mappings"] = map[string]any{
			"0010": map[string]any{"REF01": map[string]any{"validation_warning": "qualifier not in PDF"}},
		}
	case "nestle":
		out["mappings"] = map[string]any{}
		out["flags"] = map[string]any{"2": map[string]any{"col": 9, "reason": "PDF lists NE"}}
	}
	return out
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"detail":"Session not found"}`)
}
