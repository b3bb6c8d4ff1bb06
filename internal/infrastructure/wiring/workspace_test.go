package wiring

import (
	"testing"

	"github.com/felixgeelhaar/edimap/pkg/domain/events"
)

func TestNewWorkspaceProvidesRepoAndJournal(t *testing.T) {
	tempDir := t.TempDir()
	ws, err := NewWorkspace(tempDir)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if ws.Repo == nil || ws.Journal == nil {
		t.Fatal("expected repository and journal")
	}
	if ws.Repo.IsInitialized() {
		t.Fatal("constructing a workspace must not create .edimap")
	}
	if err := ws.Journal.Append(events.New(events.TypeReset, "", "", nil)); err != nil {
		t.Fatalf("journal append failed: %v", err)
	}
	if !ws.Repo.IsInitialized() {
		t.Fatal("expected journal write to create the workspace")
	}
}
