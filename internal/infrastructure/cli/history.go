package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/felixgeelhaar/edimap/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	historyJSONOutput bool
	historyTypes      []string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the journal of the current session and verify its integrity",
	Long: `Show the journal of the current session and verify its hash chain.

Use --type to narrow the listing to specific event types, for example
--type grid.cell_edited --type grid.cell_not_persisted. Webhook deliveries
that failed after all retries are listed after the journal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := loadServicesForCurrentDir(true)
		if err != nil {
			return err
		}
		defer closeLog()

		journal := services.Workspace.Journal
		rec, err := services.Workspace.Repo.LoadSession()
		if err != nil {
			return MapError(err)
		}
		evs, err := journal.Query(events.Filter{Session: rec.ID, Types: historyTypes})
		if err != nil {
			return fmt.Errorf("load journal: %w", err)
		}

		if historyJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(evs)
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("Session %s (flow %s)", rec.ID, rec.Flow)))
		if len(evs) == 0 && len(historyTypes) > 0 {
			fmt.Println(dimStyle.Render("No events of the requested types."))
		}
		for _, ev := range evs {
			fmt.Printf("%s  %-28s %v\n", ev.Timestamp.Local().Format(time.DateTime), ev.Type, ev.Metadata)
		}

		if err := printDeadLetters(services.Workspace.Repo); err != nil {
			return err
		}

		broken, err := journal.VerifyIntegrity()
		if err != nil {
			return fmt.Errorf("verify journal: %w", err)
		}
		if broken >= 0 {
			fmt.Println(statusErr.Render(fmt.Sprintf("Journal chain broken at event %d", broken)))
			return NewCLIError("journal integrity check failed", "The events file was modified outside edimap", nil)
		}
		fmt.Println(statusDone.Render("Journal chain intact"))
		return nil
	},
}

func printDeadLetters(repo *storage.FilesystemRepository) error {
	path, err := repo.ResolvePath(storage.DeadLetterFile)
	if err != nil {
		return err
	}
	failed, err := webhook.NewDeadLetterStore(path).ReadAll()
	if err != nil {
		return fmt.Errorf("read dead letters: %w", err)
	}
	if len(failed) == 0 {
		return nil
	}
	fmt.Println(statusErr.Render(fmt.Sprintf("%d webhook delivery(s) failed", len(failed))))
	for _, dl := range failed {
		fmt.Printf("%s  %-12s %-28s after %d attempt(s): %s\n",
			dl.Timestamp.Local().Format(time.DateTime), dl.WebhookName, dl.EventType, dl.Attempts, dl.Error)
	}
	return nil
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSONOutput, "json", false, "Output in JSON format")
	historyCmd.Flags().StringSliceVar(&historyTypes, "type", nil, "Only show events of this type (repeatable)")
	RootCmd.AddCommand(historyCmd)
}
