// Command build-path-map runs C4: derive the TitlePathMap and
// TitleAgencyMap from persisted agencies and write them to disk.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/config"
	"ecfr-wordfreq/internal/ecfrclient"
	"ecfr-wordfreq/internal/logging"
	"ecfr-wordfreq/internal/pathmap"
)

func main() {
	root := &cobra.Command{
		Use:   "build-path-map",
		Short: "Derive title_path_map.json and title_agency_map.json from persisted agencies",
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

	agencies, err := store.ListAgencies(ctx)
	if err != nil {
		return fmt.Errorf("build-path-map: list agencies: %w", err)
	}

	paths, owners := pathmap.Build(toClientAgencies(agencies))

	if err := pathmap.SaveTitlePathMap(filepath.Join(cfg.DataDir, "title_path_map.json"), paths); err != nil {
		return fmt.Errorf("build-path-map: save title path map: %w", err)
	}
	if err := pathmap.SaveTitleAgencyMap(filepath.Join(cfg.DataDir, "title_agency_map.json"), owners); err != nil {
		return fmt.Errorf("build-path-map: save title agency map: %w", err)
	}

	log.Info("path maps written", zap.Int("titles", len(paths)), zap.String("dir", cfg.DataDir))
	return nil
}

// toClientAgencies adapts catalog.Agency (the persisted, flattened
// shape) back into ecfrclient.Agency's tree shape, since pathmap.Build
// walks the nested Children/CFRReferences structure the eCFR API
// returns. The catalog stores agencies flat with a ParentSlug, so this
// reassembles the tree before handing it to the builder.
func toClientAgencies(flat []catalog.Agency) []ecfrclient.Agency {
	bySlug := make(map[string]*ecfrclient.Agency, len(flat))
	for _, a := range flat {
		refs := make([]ecfrclient.DocumentReference, len(a.CFRReferences))
		for i, r := range a.CFRReferences {
			refs[i] = ecfrclient.DocumentReference{Title: r.Title, Fields: r.Fields}
		}
		bySlug[a.Slug] = &ecfrclient.Agency{
			Slug: a.Slug, Name: a.Name, ShortName: a.ShortName,
			DisplayName: a.DisplayName, SortableName: a.SortableName,
			CFRReferences: refs,
		}
	}

	childSlugs := make(map[string][]string, len(flat))
	var rootSlugs []string
	for _, a := range flat {
		if a.ParentSlug != "" {
			if _, ok := bySlug[a.ParentSlug]; ok {
				childSlugs[a.ParentSlug] = append(childSlugs[a.ParentSlug], a.Slug)
				continue
			}
		}
		rootSlugs = append(rootSlugs, a.Slug)
	}

	var resolve func(slug string) ecfrclient.Agency
	resolve = func(slug string) ecfrclient.Agency {
		out := *bySlug[slug]
		for _, childSlug := range childSlugs[slug] {
			out.Children = append(out.Children, resolve(childSlug))
		}
		return out
	}

	roots := make([]ecfrclient.Agency, 0, len(rootSlugs))
	for _, slug := range rootSlugs {
		roots = append(roots, resolve(slug))
	}
	return roots
}
