package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit <row> <col> <value>",
	Short: "Change one editable cell of the current grid",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := strconv.Atoi(args[0])
		if err != nil {
			return NewCLIError("row must be an integer", "Run 'edimap show' for row numbers", err)
		}
		col, err := strconv.Atoi(args[1])
		if err != nil {
			return NewCLIError("col must be an integer", "Columns are 0-based; run 'edimap flows' for editable columns", err)
		}

		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		applied, err := services.Session.ApplyCellEdit(row, col, args[2])
		if err != nil {
			return MapError(err)
		}
		if !applied {
			snap := services.Session.Snapshot()
			return NewCLIError(fmt.Sprintf("cell (%d, %d) is not editable", row, col),
				fmt.Sprintf("Flow %s allows edits in columns %v of data rows 1-%d", snap.Flow, editableColumns(snap.Flow), snap.Grid.Len()-1), nil)
		}
		// Persistence runs in the background; a failure is logged and journaled.
		services.Session.Wait()
		fmt.Println(statusDone.Render(fmt.Sprintf("Row %d col %d set to %q", row, col, args[2])))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(editCmd)
}
