// Command process runs C7: the job dispatcher worker pool, fetching
// and normalizing claimed jobs until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/config"
	"ecfr-wordfreq/internal/dispatcher"
	"ecfr-wordfreq/internal/ecfrclient"
	"ecfr-wordfreq/internal/logging"
	"ecfr-wordfreq/internal/metrics"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
)

func main() {
	root := &cobra.Command{
		Use:   "process",
		Short: "Run the job dispatcher worker pool",
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	paths, err := pathmap.LoadTitlePathMap(filepath.Join(cfg.DataDir, "title_path_map.json"))
	if err != nil {
		return fmt.Errorf("process: load title path map (run build-path-map first): %w", err)
	}

	normalizer, err := normalize.New()
	if err != nil {
		return fmt.Errorf("process: build normalizer: %w", err)
	}
	transforms := normalize.NewTransformStore(filepath.Join(cfg.DataDir, "word_transformation_map.json"))

	client := ecfrclient.New(cfg.ECFRBaseURL, ecfrclient.DefaultTimeout)

	d := dispatcher.New(store, client, paths, normalizer, transforms, cfg.WorkerCount, cfg.BatchSize, cfg.LockTTL, log)

	go func() {
		if err := metrics.Serve(cfg.MetricsAddr); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("dispatcher starting", zap.Int("workers", cfg.WorkerCount), zap.Int("batch_size", cfg.BatchSize))
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("process: dispatcher: %w", err)
	}
	log.Info("dispatcher stopped")
	return nil
}
