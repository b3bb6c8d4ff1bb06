package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the current review session",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := loadServicesForCurrentDir(true)
		if err != nil {
			return err
		}
		defer closeLog()

		rec, err := services.Workspace.Repo.LoadSession()
		if err != nil && !errors.Is(err, session.ErrNoSession) {
			return MapError(err)
		}
		if err := services.Session.Reset(); err != nil {
			return MapError(err)
		}
		if rec == nil {
			fmt.Println("No session to discard.")
			return nil
		}
		fmt.Printf("Discarded session %s (flow %s)\n", rec.ID, rec.Flow)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(resetCmd)
}
