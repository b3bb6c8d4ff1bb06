package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showJSONOutput bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch and print the current mapping grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		snap := services.Session.Snapshot()
		if showJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		fmt.Println(headerStyle.Render(snap.Stage.DisplayName()) + " " + summaryLine(snap))
		fmt.Println(renderGrid(snap))
		fmt.Println(dimStyle.Render("! warning row  [cell] flagged cell  editable columns highlighted"))
		return nil
	},
}

var flaggedCmd = &cobra.Command{
	Use:   "flagged",
	Short: "List rows with validation warnings or discrepancy flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		lines := services.Session.Snapshot().FlaggedRows()
		if len(lines) == 0 {
			fmt.Println(statusDone.Render("No flagged rows. The grid appears valid."))
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSONOutput, "json", false, "Output in JSON format")
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(flaggedCmd)
}
