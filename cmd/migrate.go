package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Creates the catalog, the default price_stats destination and the sync run ledger. Already-applied migrations are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		conn, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := db.Migrate(ctx, conn)
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("migrations complete", zap.Int("applied", n), zap.String("driver", cfg.Store.Driver))
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
