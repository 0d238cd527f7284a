// Command aggregate runs C8: roll up persisted word counts into the
// per-year/agency and per-year/title reporting artifacts.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/aggregate"
	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/config"
	"ecfr-wordfreq/internal/logging"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
)

func main() {
	root := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll up persisted word counts into year/agency and year/title reports",
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

	agencyMap, err := pathmap.LoadTitleAgencyMap(filepath.Join(cfg.DataDir, "title_agency_map.json"))
	if err != nil {
		return fmt.Errorf("aggregate: load title agency map (run build-path-map first): %w", err)
	}
	transforms := normalize.NewTransformStore(filepath.Join(cfg.DataDir, "word_transformation_map.json"))

	res, err := aggregate.Run(ctx, store, agencyMap, transforms)
	if err != nil {
		return fmt.Errorf("aggregate: run: %w", err)
	}

	if err := aggregate.WriteReports(cfg.DataDir, res); err != nil {
		return fmt.Errorf("aggregate: write reports: %w", err)
	}

	log.Info("aggregation complete", zap.Int("agency_year_buckets", len(res.ByAgencyYear)), zap.Int("title_year_buckets", len(res.ByTitleYear)))
	return nil
}
