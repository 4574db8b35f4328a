package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the lookup cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-pipeline cache entry and success counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		ctx := cmd.Context()

		cache, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		stats, err := cache.Stats(ctx, "")
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("cache is empty")
			return nil
		}

		fmt.Printf("%-12s %8s %10s %8s\n", "PIPELINE", "ENTRIES", "SUCCEEDED", "RETRY")
		for _, st := range stats {
			fmt.Printf("%-12s %8d %10d %8d\n", st.Pipeline, st.Total, st.Succeeded, st.Total-st.Succeeded)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	rootCmd.AddCommand(cacheCmd)
}
