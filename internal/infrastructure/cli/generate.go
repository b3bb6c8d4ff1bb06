package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/edimap/pkg/application"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/spf13/cobra"
)

var (
	generateFlow string
	generateEDI  string
	generatePDF  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Upload documents and generate a mapping grid",
	Example: `  edimap generate --flow 850 --edi sample.edi --pdf spec.pdf
  edimap generate --flow 856 --pdf asn-spec.pdf
  edimap generate --flow nestle --pdf nestle-850.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := flow.Parse(generateFlow)
		if err != nil {
			return MapError(err)
		}
		services, closeLog, err := loadServicesForCurrentDir(true)
		if err != nil {
			return err
		}
		defer closeLog()

		docs := map[flow.Slot]string{flow.SlotEDI: generateEDI, flow.SlotPDF: generatePDF}
		if err := generateSession(cmd.Context(), services.Session, kind, docs); err != nil {
			return MapError(err)
		}

		snap := services.Session.Snapshot()
		fmt.Println(statusDone.Render("Mapping generated"))
		fmt.Println(summaryLine(snap))
		for _, line := range snap.FlaggedRows() {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}

// generateSession resets any previous session and runs one flow end to end.
// Empty paths are skipped; the flow's own policy decides which are required.
func generateSession(ctx context.Context, svc *application.SessionService, kind flow.Kind, docs map[flow.Slot]string) error {
	if err := svc.Reset(); err != nil {
		return err
	}
	if err := svc.SelectFlow(kind); err != nil {
		return err
	}
	policy, err := flow.Lookup(kind)
	if err != nil {
		return err
	}
	for slot, path := range docs {
		if path == "" {
			continue
		}
		if !policy.Requires(slot) {
			return fmt.Errorf("%w: --%s is not used by flow %s", application.ErrUnexpectedDocument, slotFlag(slot), kind)
		}
		if err := svc.AttachDocument(slot, path); err != nil {
			return err
		}
	}
	return svc.SubmitDocuments(ctx)
}

func init() {
	generateCmd.Flags().StringVarP(&generateFlow, "flow", "f", "", "Flow kind: 850, 856 or nestle")
	generateCmd.Flags().StringVar(&generateEDI, "edi", "", "Sample EDI transaction file")
	generateCmd.Flags().StringVar(&generatePDF, "pdf", "", "Partner specification PDF")
	_ = generateCmd.MarkFlagRequired("flow")
	RootCmd.AddCommand(generateCmd)
}
