package cli

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	initBaseURL       string
	initTimeout       time.Duration
	initFetchAttempts int
	initLogLevel      string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write .edimap/config.yaml for this workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return MapError(err)
		}
		if cmd.Flags().Changed("base-url") {
			cfg.BaseURL = initBaseURL
		}
		if cmd.Flags().Changed("timeout") {
			cfg.RequestTimeout = initTimeout
		}
		if cmd.Flags().Changed("fetch-attempts") {
			cfg.FetchAttempts = initFetchAttempts
		}
		if cmd.Flags().Changed("default-log-level") {
			cfg.LogLevel = initLogLevel
		}
		if err := config.Save(root, cfg); err != nil {
			return NewCLIError("invalid configuration", "Check the flag values", err)
		}
		fmt.Printf("Workspace configured: %s (timeout %s, %d fetch attempt(s))\n",
			cfg.BaseURL, timeoutLabel(cfg.RequestTimeout), cfg.FetchAttempts)
		return nil
	},
}

func timeoutLabel(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", config.DefaultBaseURL, "Mapping service address")
	initCmd.Flags().DurationVar(&initTimeout, "timeout", 0, "Per-request timeout for non-streaming calls (0 disables)")
	initCmd.Flags().IntVar(&initFetchAttempts, "fetch-attempts", 1, "Attempts for idempotent reads (1 disables retry)")
	initCmd.Flags().StringVar(&initLogLevel, "default-log-level", "info", "Default log level")
	RootCmd.AddCommand(initCmd)
}
