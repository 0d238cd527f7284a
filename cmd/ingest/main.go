// Command ingest runs C1+C2: fetch agencies, titles, and title
// versions from the eCFR API and persist them to the catalog.
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/config"
	"ecfr-wordfreq/internal/ecfrclient"
	"ecfr-wordfreq/internal/logging"
	"ecfr-wordfreq/internal/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch agencies, titles, and title versions into the catalog",
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

	// ingest is the first binary an operator runs against a fresh
	// database, so it owns applying migrations before anything touches
	// the schema. The other cmd/* binaries assume ingest has already run.
	sqlDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("ingest: open db for migrations: %w", err)
	}
	if err := migrations.Up(sqlDB); err != nil {
		sqlDB.Close()
		return fmt.Errorf("ingest: apply migrations: %w", err)
	}
	sqlDB.Close()

	store, err := catalog.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	client := ecfrclient.New(cfg.ECFRBaseURL, ecfrclient.DefaultTimeout)

	agenciesDoc, err := client.FetchAgencies(ctx)
	if err != nil {
		return fmt.Errorf("ingest: fetch agencies: %w", err)
	}
	if err := store.UpsertAgencies(ctx, toCatalogAgencies(agenciesDoc)); err != nil {
		return fmt.Errorf("ingest: upsert agencies: %w", err)
	}
	log.Info("ingested agencies", zap.Int("count", len(agenciesDoc)))

	titlesDoc, err := client.FetchTitles(ctx)
	if err != nil {
		return fmt.Errorf("ingest: fetch titles: %w", err)
	}
	if err := store.UpsertTitles(ctx, toCatalogTitles(titlesDoc)); err != nil {
		return fmt.Errorf("ingest: upsert titles: %w", err)
	}
	log.Info("ingested titles", zap.Int("count", len(titlesDoc)))

	for _, t := range titlesDoc {
		if t.Reserved {
			continue
		}
		versions, err := client.FetchTitleVersions(ctx, t.Number)
		if err != nil {
			log.Warn("fetch title versions failed", zap.Int("title", t.Number), zap.Error(err))
			continue
		}
		if len(versions) == 0 {
			continue
		}
		if err := store.UpsertTitleVersions(ctx, t.Number, toCatalogVersions(t.Number, versions)); err != nil {
			log.Warn("upsert title versions failed", zap.Int("title", t.Number), zap.Error(err))
		}
	}
	log.Info("ingest complete")
	return nil
}

func toCatalogAgencies(in []ecfrclient.Agency) []catalog.Agency {
	out := make([]catalog.Agency, 0, len(in))
	var flatten func(a ecfrclient.Agency, parent string)
	flatten = func(a ecfrclient.Agency, parent string) {
		refs := make([]catalog.DocumentReference, len(a.CFRReferences))
		for i, r := range a.CFRReferences {
			refs[i] = catalog.DocumentReference{Title: r.Title, Fields: r.Fields}
		}
		out = append(out, catalog.Agency{
			Slug: a.Slug, Name: a.Name, ShortName: a.ShortName,
			DisplayName: a.DisplayName, SortableName: a.SortableName,
			ParentSlug: parent, CFRReferences: refs,
		})
		for _, c := range a.Children {
			flatten(c, a.Slug)
		}
	}
	for _, a := range in {
		flatten(a, "")
	}
	return out
}

func toCatalogTitles(in []ecfrclient.Title) []catalog.Title {
	out := make([]catalog.Title, len(in))
	for i, t := range in {
		out[i] = catalog.Title{
			Number: t.Number, Name: t.Name, LatestAmendedOn: t.LatestAmendedOn,
			LatestIssueDate: t.LatestIssueDate, UpToDateAsOf: t.UpToDateAsOf, Reserved: t.Reserved,
		}
	}
	return out
}

func toCatalogVersions(titleNumber int, in []ecfrclient.TitleVersion) []catalog.TitleVersion {
	out := make([]catalog.TitleVersion, len(in))
	for i, v := range in {
		out[i] = catalog.TitleVersion{
			TitleNumber: titleNumber, VersionDate: v.Date, AmendmentDate: v.AmendmentDate,
			IssueDate: v.IssueDate, Identifier: v.Identifier, Name: v.Name, Part: v.Part,
			Subpart: v.Subpart, Substantive: v.Substantive, Removed: v.Removed, Type: v.Type,
		}
	}
	return out
}
