package main

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/fetcher"
	"github.com/verdantlab/flora-cli/internal/model"
)

var (
	nativityInput  string
	nativityOutput string
)

var nativityCmd = &cobra.Command{
	Use:   "nativity",
	Short: "Derive native areas and countries per taxon",
	Long:  "Reads a resolved table, fetches each taxon's distribution text, expands area units, resolves place tokens to sovereign states, and writes the table back with nativity columns appended.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("nativity"); err != nil {
			return err
		}
		ctx := cmd.Context()

		cache, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		table, err := fetcher.ReadTable(nativityInput)
		if err != nil {
			return err
		}
		taxonIdx := table.ColumnIndex(cfg.Nativity.TaxonColumn)
		if taxonIdx < 0 {
			return eris.Errorf("taxon column %q not found", cfg.Nativity.TaxonColumn)
		}
		ids := make([]string, len(table.Rows))
		for i := range table.Rows {
			ids[i] = table.Cell(i, taxonIdx)
		}

		runID := uuid.NewString()
		zap.L().Info("nativity started",
			zap.String("run_id", runID),
			zap.String("input", nativityInput),
			zap.Int("taxa", len(ids)),
		)

		nativity, err := newNativityStack(cfg, cache)
		if err != nil {
			return err
		}
		results, summary := nativity.Run(ctx, ids)
		if len(results) != len(table.Rows) {
			return eris.New("nativity pass did not complete")
		}

		writeNativityColumns(table, results)
		if err := cache.Flush(ctx); err != nil {
			zap.L().Warn("cache flush failed", zap.Error(err))
		}
		if err := fetcher.WriteTable(nativityOutput, table); err != nil {
			return err
		}

		zap.L().Info("nativity written",
			zap.String("run_id", runID),
			zap.String("output", nativityOutput),
			zap.Int("with_countries", summary.Resolved),
			zap.Int("blank", summary.Unmatched),
			zap.Int("errors", summary.Errors),
		)
		return nil
	},
}

// writeNativityColumns appends the nativity fields to the table. The area
// and country lists are pipe-joined, matching the token format the sources
// use.
func writeNativityColumns(table *fetcher.Table, results []model.NativityResult) {
	urlCol := table.EnsureColumn("source_url")
	areasCol := table.EnsureColumn("native_areas")
	countriesCol := table.EnsureColumn("native_countries")
	errCol := table.EnsureColumn("nativity_error")

	for i, res := range results {
		table.SetCell(i, urlCol, res.SourceURL)
		table.SetCell(i, areasCol, strings.Join(res.Areas, " | "))
		table.SetCell(i, countriesCol, strings.Join(res.Countries, " | "))
		table.SetCell(i, errCol, res.Error)
	}
}

func init() {
	nativityCmd.Flags().StringVar(&nativityInput, "input", "", "input table (.csv or .xlsx)")
	nativityCmd.Flags().StringVar(&nativityOutput, "output", "", "output table (.csv or .xlsx)")
	nativityCmd.MarkFlagRequired("input")  //nolint:errcheck
	nativityCmd.MarkFlagRequired("output") //nolint:errcheck
	rootCmd.AddCommand(nativityCmd)
}
