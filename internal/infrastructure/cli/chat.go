package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/felixgeelhaar/edimap/pkg/domain/chat"
	"github.com/spf13/cobra"
)

var chatShowReasoning bool

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Ask the mapping assistant about the current grid",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, closeLog, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closeLog()

		// Stream reasoning steps as they arrive; the answer is rendered once complete.
		printed := 0
		services.Chat.Subscribe(func(_ int, turn chat.Turn) {
			if !chatShowReasoning || turn.Role != chat.RoleAssistant {
				return
			}
			for ; printed < len(turn.Reasoning); printed++ {
				fmt.Print(dimStyle.Render(turn.Reasoning[printed]))
			}
		})

		turn, err := services.Chat.Submit(cmd.Context(), strings.Join(args, " "))
		if chatShowReasoning && printed > 0 {
			fmt.Println()
		}
		if turn.Content != "" {
			fmt.Println(renderMarkdown(turn.Content, 80))
		}
		if turn.Error != "" {
			fmt.Println(statusErr.Render(turn.Error))
		}
		if err != nil {
			return MapError(err)
		}
		if turn.Content == "" && turn.Error == "" {
			fmt.Println(dimStyle.Render("(no answer)"))
		}
		return nil
	},
}

// renderMarkdown renders text for the terminal, falling back to plain text.
func renderMarkdown(text string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func init() {
	chatCmd.Flags().BoolVar(&chatShowReasoning, "reasoning", false, "Print the assistant's reasoning steps while it works")
	RootCmd.AddCommand(chatCmd)
}
