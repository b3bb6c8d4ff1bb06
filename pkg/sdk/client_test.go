package sdk_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/felixgeelhaar/edimap/pkg/sdk"
)

func newServer(t *testing.T, h http.HandlerFunc) *sdk.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return sdk.NewClient(srv.URL)
}

func TestUploadSendsMultipartDocuments(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/850/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(sdk.RequestIDHeader) == "" {
			t.Error("missing request id header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		for _, field := range []string{"edi_file", "pdf_file"} {
			f, _, err := r.FormFile(field)
			if err != nil {
				t.Errorf("missing %s: %v", field, err)
				continue
			}
			_ = f.Close()
		}
		_, _ = w.Write([]byte(`{"session_id":"abc-123"}`))
	})

	res, err := c.Upload(context.Background(), flow.Kind850, []sdk.Document{
		{Slot: flow.SlotEDI, Name: "sample.txt", Body: strings.NewReader("ISA*00~")},
		{Slot: flow.SlotPDF, Name: "spec.pdf", Body: strings.NewReader("%PDF-1.4")},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.SessionID != "abc-123" {
		t.Errorf("session id = %q", res.SessionID)
	}
}

func TestUploadWithoutSessionID(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.Upload(context.Background(), flow.Kind856, nil)
	if !errors.Is(err, sdk.ErrNoSessionID) {
		t.Fatalf("expected ErrNoSessionID, got %v", err)
	}
}

func TestGenerateDecodesNestedEnvelope(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/856/generate/s1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"success","version":"v1.0.856","mappings":{
			"grid":[["Seg.","Occ."],["BSN",null]],
			"mappings":{"mappings":[{"segment":"BSN"}]}}}`))
	})
	m, err := c.Generate(context.Background(), flow.Kind856, "s1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.Grid.Len() != 2 || m.Status != "success" || m.Version != "v1.0.856" {
		t.Fatalf("unexpected mapping %+v", m)
	}
	if v, _ := m.Grid.Cell(1, 1); v != "" {
		t.Errorf("null cell should decode as empty, got %q", v)
	}
	if !strings.Contains(string(m.Mappings), "BSN") {
		t.Errorf("inner mappings lost: %s", m.Mappings)
	}
}

func TestGenerateDecodesNestleFlags(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"grid":[["A","B"],["1","2"]],"flags":{"1":{"col":1,"reason":"check"}}}`))
	})
	m, err := c.Generate(context.Background(), flow.KindNestle, "s1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if f, ok := m.Flags.At(1, 1); !ok || f.Reason != "check" {
		t.Errorf("unexpected flags %v", m.Flags)
	}
}

func TestFetchMappingReportsFlagsKey(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		hasFlags bool
		count    int
	}{
		{"absent", `{"grid":[["A"],["1"]]}`, false, 0},
		{"null", `{"grid":[["A"],["1"]],"flags":null}`, false, 0},
		{"empty", `{"grid":[["A"],["1"]],"flags":{}}`, true, 0},
		{"one", `{"grid":[["A"],["1"]],"flags":{"1":{"col":0,"reason":"x"}}}`, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			m, err := c.FetchMapping(context.Background(), "s1")
			if err != nil {
				t.Fatalf("FetchMapping: %v", err)
			}
			if m.HasFlags != tt.hasFlags || len(m.Flags) != tt.count {
				t.Errorf("HasFlags = %v with %d flag(s), want %v with %d", m.HasFlags, len(m.Flags), tt.hasFlags, tt.count)
			}
		})
	}
}

func TestGenerateRejectsInvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"grid not array", `{"grid":{"rows":1}}`},
		{"row not array", `{"grid":["A","B"]}`},
		{"object cell", `{"grid":[["A"],[{"x":1}]]}`},
		{"flag without col", `{"grid":[["A"]],"flags":{"1":{"reason":"r"}}}`},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Generate(context.Background(), flow.Kind850, "s1")
			if !errors.Is(err, sdk.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestGenerateRaggedGrid(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"grid":[["A","B"],["1"]]}`))
	})
	_, err := c.Generate(context.Background(), flow.Kind850, "s1")
	if !errors.Is(err, grid.ErrRaggedRow) {
		t.Fatalf("expected ErrRaggedRow, got %v", err)
	}
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string detail", http.StatusNotFound, `{"detail":"Session not found"}`, "Session not found"},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"},{"msg":"bad type"}]}`, "field required; bad type"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.FetchMapping(context.Background(), "s1")
			var apiErr *sdk.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Detail != tt.detail {
				t.Errorf("got %d %q", apiErr.Status, apiErr.Detail)
			}
			if sdk.IsNotFound(err) != (tt.status == http.StatusNotFound) {
				t.Errorf("IsNotFound mismatch for %d", tt.status)
			}
		})
	}
}

func TestUpdateCellBody(t *testing.T) {
	var got grid.Edit
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mappings/s1/update" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var raw map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &raw)
		for _, key := range []string{"row_idx", "col_idx", "value"} {
			if _, ok := raw[key]; !ok {
				t.Errorf("body missing %s: %s", key, data)
			}
		}
		_ = json.Unmarshal(data, &got)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	if err := c.Persister("s1").PersistCell(context.Background(), grid.Edit{Row: 2, Col: 1, Value: "X"}); err != nil {
		t.Fatalf("PersistCell: %v", err)
	}
	if got != (grid.Edit{Row: 2, Col: 1, Value: "X"}) {
		t.Errorf("server received %+v", got)
	}
}

func TestUpdateCellIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := sdk.NewClient(srv.URL, sdk.WithRetry(3, time.Millisecond))
	if err := c.UpdateCell(context.Background(), "s1", grid.Edit{Row: 1, Col: 1}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("update attempted %d times", calls.Load())
	}
}

func TestFetchMappingRetriesWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"grid":[["A"],["1"]],"mappings":{}}`))
	}))
	defer srv.Close()

	c := sdk.NewClient(srv.URL, sdk.WithRetry(3, time.Millisecond))
	m, err := c.FetchMapping(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FetchMapping: %v", err)
	}
	if m.Grid.Len() != 2 || calls.Load() != 2 {
		t.Errorf("grid len %d after %d calls", m.Grid.Len(), calls.Load())
	}
}

func TestTimeoutIsOptIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{"grid":[]}`))
	}))
	defer srv.Close()

	fast := sdk.NewClient(srv.URL, sdk.WithTimeout(20*time.Millisecond))
	if _, err := fast.FetchMapping(context.Background(), "s1"); err == nil {
		t.Error("expected timeout error")
	}

	patient := sdk.NewClient(srv.URL)
	if _, err := patient.FetchMapping(context.Background(), "s1"); err != nil {
		t.Errorf("default client must not time out: %v", err)
	}
}

func TestDownload(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download/s1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="all_mappings.xlsx"`)
		_, _ = w.Write([]byte("PK\x03\x04"))
	})
	var buf bytes.Buffer
	res, err := c.Download(context.Background(), "s1", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Filename != "all_mappings.xlsx" || res.Size != 4 || buf.Len() != 4 {
		t.Errorf("unexpected result %+v (%d bytes)", res, buf.Len())
	}

	empty := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := empty.Download(context.Background(), "s1", &buf); !errors.Is(err, sdk.ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
}

func TestChatStreamsChunks(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req sdk.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "why?" {
			t.Errorf("query = %q", req.Query)
		}
		flusher := w.(http.Flusher)
		for _, part := range []string{`{"type":"thought","content":"a"}`, `{"type":"message","content":"b"}`} {
			_, _ = w.Write([]byte(part))
			flusher.Flush()
		}
	})

	var got bytes.Buffer
	err := c.Chat(context.Background(), "s1", "why?", func(chunk []byte) {
		got.Write(chunk)
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.String() != `{"type":"thought","content":"a"}{"type":"message","content":"b"}` {
		t.Errorf("unexpected stream %q", got.String())
	}
}
