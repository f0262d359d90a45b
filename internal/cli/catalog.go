package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the loan product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Validate a product catalog file and upsert it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		b, err := openPostgres(cmd.Context(), cfg, logger, true)
		if err != nil {
			return err
		}
		defer b.Close()

		svc, err := newServices(b, cfg, logger)
		if err != nil {
			return err
		}
		return importCatalogFile(cmd.Context(), svc, args[0])
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func importCatalogFile(ctx context.Context, svc *services, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := svc.catalog.Import(ctx, data); err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	return nil
}
