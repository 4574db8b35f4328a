package main

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/fetcher"
	"github.com/verdantlab/flora-cli/internal/model"
)

var (
	resolveInput  string
	resolveOutput string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve plant names to accepted taxon identifiers",
	Long:  "Reads a CSV/XLSX table of plant names, matches each against the registry backbone, climbs synonym chains to the accepted taxon, and writes the table back with resolution columns appended.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		ctx := cmd.Context()

		cache, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		table, err := fetcher.ReadTable(resolveInput)
		if err != nil {
			return err
		}
		rows, err := fetcher.PlantRows(table, cfg.Resolve.NameColumn, cfg.Resolve.AlternateColumns...)
		if err != nil {
			return err
		}

		runID := uuid.NewString()
		zap.L().Info("resolution started",
			zap.String("run_id", runID),
			zap.String("input", resolveInput),
			zap.Int("rows", len(rows)),
		)

		resolver := newResolveStack(cfg, cache)
		results, summary := resolver.Run(ctx, rows)
		if len(results) != len(table.Rows) {
			return eris.New("resolution pass did not complete")
		}

		writeResolveColumns(table, results)
		if err := cache.Flush(ctx); err != nil {
			zap.L().Warn("cache flush failed", zap.Error(err))
		}
		if err := fetcher.WriteTable(resolveOutput, table); err != nil {
			return err
		}

		zap.L().Info("resolution written",
			zap.String("run_id", runID),
			zap.String("output", resolveOutput),
			zap.Int("resolved", summary.Resolved),
			zap.Int("unmatched", summary.Unmatched),
			zap.Int("errors", summary.Errors),
		)
		return nil
	},
}

// writeResolveColumns appends the resolution fields to the table, one column
// per output field, aligned with the input rows.
func writeResolveColumns(table *fetcher.Table, results []model.ResolutionResult) {
	cols := map[string]int{}
	for _, name := range []string{
		"query_used", "match_method", "match_score", "matched_id", "matched_name",
		"accepted_id", "accepted_name", "accepted_status", "accepted_family", "accepted_hops",
		"synonyms", "synonym_count", "english_name", "resolve_error",
	} {
		cols[name] = table.EnsureColumn(name)
	}

	for i, res := range results {
		table.SetCell(i, cols["query_used"], res.QueryUsed)
		table.SetCell(i, cols["match_method"], string(res.Method))
		table.SetCell(i, cols["match_score"], strconv.Itoa(res.Score))
		table.SetCell(i, cols["matched_id"], res.MatchedID)
		table.SetCell(i, cols["matched_name"], res.MatchedName)
		table.SetCell(i, cols["accepted_id"], res.AcceptedID)
		table.SetCell(i, cols["accepted_name"], res.AcceptedName)
		table.SetCell(i, cols["accepted_status"], res.AcceptedStatus)
		table.SetCell(i, cols["accepted_family"], res.AcceptedFamily)
		table.SetCell(i, cols["accepted_hops"], strconv.Itoa(res.AcceptedHops))
		table.SetCell(i, cols["synonyms"], strings.Join(res.Synonyms, " | "))
		table.SetCell(i, cols["synonym_count"], strconv.Itoa(len(res.Synonyms)))
		table.SetCell(i, cols["english_name"], res.EnglishName)
		table.SetCell(i, cols["resolve_error"], res.Error)
	}
}

func init() {
	resolveCmd.Flags().StringVar(&resolveInput, "input", "", "input table (.csv or .xlsx)")
	resolveCmd.Flags().StringVar(&resolveOutput, "output", "", "output table (.csv or .xlsx)")
	resolveCmd.MarkFlagRequired("input")  //nolint:errcheck
	resolveCmd.MarkFlagRequired("output") //nolint:errcheck
	rootCmd.AddCommand(resolveCmd)
}
