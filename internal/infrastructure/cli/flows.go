package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/spf13/cobra"
)

var flowsJSONOutput bool

type flowInfo struct {
	Kind      flow.Kind   `json:"kind"`
	Title     string      `json:"title"`
	Documents []flow.Slot `json:"documents"`
	Editable  []int       `json:"editable_columns"`
	Overlay   string      `json:"overlay"`
}

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List mapping flows and the documents each one needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var infos []flowInfo
		for _, p := range flow.All() {
			infos = append(infos, flowInfo{
				Kind:      p.Kind,
				Title:     p.Title,
				Documents: p.Required(),
				Editable:  p.EditableColumns(),
				Overlay:   p.Overlay.String(),
			})
		}

		if flowsJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		for _, info := range infos {
			docs := make([]string, len(info.Documents))
			for i, d := range info.Documents {
				docs[i] = "--" + slotFlag(d)
			}
			fmt.Printf("%-7s %s\n", info.Kind, headerStyle.Render(info.Title))
			fmt.Printf("        documents: %s\n", strings.Join(docs, " "))
			fmt.Printf("        editable columns: %v  overlay: %s\n", info.Editable, info.Overlay)
		}
		return nil
	},
}

// slotFlag names the generate flag that fills slot.
func slotFlag(s flow.Slot) string {
	switch s {
	case flow.SlotEDI:
		return "edi"
	case flow.SlotPDF:
		return "pdf"
	}
	return string(s)
}

func init() {
	flowsCmd.Flags().BoolVar(&flowsJSONOutput, "json", false, "Output in JSON format")
	RootCmd.AddCommand(flowsCmd)
}

func editableColumns(k flow.Kind) []int {
	p, err := flow.Lookup(k)
	if err != nil {
		return nil
	}
	return p.EditableColumns()
}
