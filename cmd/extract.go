package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/model"
)

var (
	extractSymbols  []string
	extractSections []string
	extractMax      int
	extractNoStore  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract 10-K sections for a batch of companies",
	Long: `Extracts the configured 10-K sections for each company. Without --symbol
the companies of the harvested filings file are used, capped at --max.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, pipelineFlags{
			sections: extractSections,
			max:      extractMax,
			noStore:  extractNoStore,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		symbols := extractSymbols
		if len(symbols) == 0 {
			symbols = defaultSymbols(env.Resolver)
		}

		summary, err := env.Pipeline.RunBatch(ctx, symbols)
		if summary != nil {
			printSummary(cmd, summary, env.Catalog)
		}
		if err != nil {
			return eris.Wrap(err, "extract batch")
		}
		zap.L().Info("extraction finished", zap.Int("companies", len(summary.Records)))
		return nil
	},
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractSymbols, "symbol", nil, "company symbols to extract (default: all harvested companies)")
	extractCmd.Flags().StringSliceVar(&extractSections, "sections", nil, "10-K item codes to extract (default: all seven)")
	extractCmd.Flags().IntVar(&extractMax, "max", 0, "max companies per run (default from config)")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-store", false, "skip the database and write per-company files")
	rootCmd.AddCommand(extractCmd)
}

func printSummary(cmd *cobra.Command, summary *model.BatchSummary, catalog model.Catalog) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nrun %s: %d companies, %d API calls\n", summary.RunID, len(summary.Records), summary.TotalAPICalls())
	for _, rec := range summary.Records {
		line := fmt.Sprintf("  %-6s %-9s %d/%d sections", rec.Symbol, rec.Status, rec.Completed, len(catalog))
		if rec.Error != "" {
			line += "  (" + rec.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
}
