package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		b, err := openPostgres(cmd.Context(), cfg, logger, true)
		if err != nil {
			return err
		}
		b.Close()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
