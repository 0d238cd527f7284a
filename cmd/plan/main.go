// Command plan runs C3: enqueue pending jobs for every persisted
// version of every title in the interest filter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/config"
	"ecfr-wordfreq/internal/logging"
	"ecfr-wordfreq/internal/planner"
)

func main() {
	root := &cobra.Command{
		Use:   "plan",
		Short: "Enqueue pending jobs for the configured interest titles",
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.New()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := catalog.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := planner.Plan(ctx, store, cfg.InterestTitles, log)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	log.Info("planning complete", zap.Int("jobs_considered", created), zap.Ints("interest_titles", cfg.InterestTitles))
	return nil
}
