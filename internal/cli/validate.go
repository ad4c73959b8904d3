package cli

import (
	"fmt"

	"github.com/aaronromeo/inboxsync/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and environment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if _, err := config.IMAPEnvFromEnv(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.Summary(cfg))
		return nil
	},
}
