package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestBinaryHappyPath runs the built binary from dist/ against a fake
// mapping service.
func TestBinaryHappyPath(t *testing.T) {
	distDir, _ := filepath.Abs("../../dist")
	bin := filepath.Join(distDir, "edimap")
	if _, err := os.Stat(bin); err != nil {
		t.Skipf("binary not built: %s", bin)
	}

	srv := startMapper(t)
	tempDir := t.TempDir()
	pdf := filepath.Join(tempDir, "nestle.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0600); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) string {
		cmd := exec.Command(bin, args...)
		cmd.Dir = tempDir
		cmd.Env = append(os.Environ(), "EDIMAP_BASE_URL="+srv.URL)
		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("edimap %v failed: %v\nOutput: %s", args, err, output)
		}
		return string(output)
	}

	out := run("generate", "--flow", "nestle", "--pdf", pdf)
	if !strings.Contains(out, "Mapping generated") || !strings.Contains(out, "PDF lists NE") {
		t.Errorf("unexpected generate output: %s", out)
	}

	run("edit", "2", "9", "Map NE")

	var snap struct {
		Stage string     `json:"stage"`
		Grid  [][]string `json:"grid"`
	}
	if err := json.Unmarshal([]byte(run("show", "--json")), &snap); err != nil {
		t.Fatalf("show --json: %v", err)
	}
	if snap.Stage != "reviewing" || snap.Grid[2][9] != "Map NE" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	out = run("history")
	if !strings.Contains(out, "Journal chain intact") {
		t.Errorf("unexpected history output: %s", out)
	}

	out = run("reset")
	if !strings.Contains(out, "Discarded session s1") {
		t.Errorf("unexpected reset output: %s", out)
	}
}
