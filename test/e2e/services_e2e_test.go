package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/config"
	"github.com/felixgeelhaar/edimap/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
)

// TestServicesHappyPath drives every flow through the same services the
// CLI and MCP server use.
func TestServicesHappyPath(t *testing.T) {
	srv := startMapper(t)
	tempDir := t.TempDir()
	edi := filepath.Join(tempDir, "sample.edi")
	pdf := filepath.Join(tempDir, "spec.pdf")
	for _, p := range []string{edi, pdf} {
		if err := os.WriteFile(p, []byte("doc"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	services, err := wiring.BuildAppServicesWithConfig(tempDir, &config.Config{BaseURL: srv.URL, FetchAttempts: 1}, nil)
	if err != nil {
		t.Fatalf("BuildAppServices failed: %v", err)
	}
	svc := services.Session

	tests := []struct {
		kind    flow.Kind
		docs    map[flow.Slot]string
		editRow int
		editCol int
		flagged string
	}{
		{flow.Kind850, map[flow.Slot]string{flow.SlotEDI: edi, flow.SlotPDF: pdf}, 1, 1, "REF01 (qualifier not in PDF)"},
		{flow.Kind856, map[flow.Slot]string{flow.SlotPDF: pdf}, 1, 5, ""},
		{flow.KindNestle, map[flow.Slot]string{flow.SlotPDF: pdf}, 2, 9, "PDF lists NE"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if err := svc.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			if err := svc.SelectFlow(tt.kind); err != nil {
				t.Fatalf("SelectFlow: %v", err)
			}
			for slot, path := range tt.docs {
				if err := svc.AttachDocument(slot, path); err != nil {
					t.Fatalf("AttachDocument(%s): %v", slot, err)
				}
			}
			if err := svc.SubmitDocuments(ctx); err != nil {
				t.Fatalf("SubmitDocuments: %v", err)
			}
			if svc.Stage() != session.StageReviewing {
				t.Fatalf("expected reviewing, got %s", svc.Stage())
			}

			lines := strings.Join(svc.Snapshot().FlaggedRows(), "\n")
			if tt.flagged == "" && lines != "" {
				t.Errorf("expected no flagged rows, got %q", lines)
			}
			if tt.flagged != "" && !strings.Contains(lines, tt.flagged) {
				t.Errorf("flagged rows %q missing %q", lines, tt.flagged)
			}

			applied, err := svc.ApplyCellEdit(tt.editRow, tt.editCol, "E2E")
			if err != nil || !applied {
				t.Fatalf("ApplyCellEdit: applied=%v err=%v", applied, err)
			}
			if applied, _ := svc.ApplyCellEdit(tt.editRow, 0, "nope"); applied {
				t.Error("column 0 is never editable")
			}
			services.Flush()

			if err := svc.RefreshFromServer(ctx); err != nil {
				t.Fatalf("RefreshFromServer: %v", err)
			}
			if v, _ := svc.Snapshot().Grid.Cell(tt.editRow, tt.editCol); v != "E2E" {
				t.Errorf("server copy = %q, want E2E", v)
			}

			turn, err := services.Chat.Submit(ctx, "what is wrong?")
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if turn.Content != "Use qualifier ZZ." || len(turn.Reasoning) != 1 {
				t.Errorf("unexpected turn %+v", turn)
			}
		})
	}

	rec, err := services.Workspace.Repo.LoadSession()
	if err != nil {
		t.Fatalf("stored session: %v", err)
	}
	resumed, err := wiring.BuildAppServicesWithConfig(tempDir, &config.Config{BaseURL: srv.URL, FetchAttempts: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := resumed.Session.ResumeStored(ctx); err != nil {
		t.Fatalf("ResumeStored: %v", err)
	}
	if resumed.Session.SessionID() != rec.ID || resumed.Session.Snapshot().Flow != flow.KindNestle {
		t.Errorf("resumed wrong session: %s", resumed.Session.SessionID())
	}

	broken, err := services.Workspace.Journal.VerifyIntegrity()
	if err != nil || broken >= 0 {
		t.Errorf("journal chain broken at %d: %v", broken, err)
	}
}
