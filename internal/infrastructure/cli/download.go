package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/edimap/pkg/export"
	"github.com/spf13/cobra"
)

// defaultExportName is used when the server does not name the attachment.
const defaultExportName = "all_mappings.xlsx"

var (
	downloadOutput  string
	snapshotOutput  string
	downloadSummary bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the server's spreadsheet export of the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		var buf bytes.Buffer
		res, err := services.Session.Download(cmd.Context(), &buf)
		if err != nil {
			return MapError(fmt.Errorf("download: %w", err))
		}

		path := downloadOutput
		if path == "" {
			path = res.Filename
			if path == "" {
				path = defaultExportName
			}
			path = filepath.Base(path)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("Saved %s (%d bytes)\n", path, res.Size)

		if !downloadSummary {
			return nil
		}
		sheets, err := export.Summarize(bytes.NewReader(buf.Bytes()))
		if err != nil {
			fmt.Println(statusWarn.Render(fmt.Sprintf("Could not read workbook: %v", err)))
			return nil
		}
		for _, s := range sheets {
			fmt.Printf("  %-31s %4d rows x %d columns\n", s.Name, s.Rows, s.Columns)
		}
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write the local grid to a spreadsheet with warnings and flags highlighted",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		snap := services.Session.Snapshot()
		path := snapshotOutput
		if path == "" {
			path = fmt.Sprintf("%s-%s.xlsx", snap.Flow, snap.SessionID)
		}
		// #nosec G304 -- user-selected output path
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		if err := export.WriteSnapshot(f, snap.Flow, snap.Grid, snap.Overlay()); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Printf("Saved %s (%s)\n", path, summaryLine(snap))
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Output file (default: server-provided name)")
	downloadCmd.Flags().BoolVar(&downloadSummary, "summary", true, "Print the workbook's sheets after saving")
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "Output file (default: <flow>-<session>.xlsx)")
	RootCmd.AddCommand(downloadCmd)
	RootCmd.AddCommand(snapshotCmd)
}
