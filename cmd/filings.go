package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vesto-app/tenk/internal/filings"
	"github.com/vesto-app/tenk/pkg/finnhub"
)

var (
	filingsSymbols  []string
	filingsOut      string
	filingsYears    int
	filingsRegister bool
	filingsMarket   bool
)

func newFinnhubClient() finnhub.Client {
	return finnhub.NewClient(cfg.Finnhub.Key,
		finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
		finnhub.WithLimiter(finnhub.FreeTierLimiter()),
	)
}

var filingsCmd = &cobra.Command{
	Use:   "filings",
	Short: "Harvest 10-K filing metadata from Finnhub",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("filings"); err != nil {
			return err
		}

		client := newFinnhubClient()

		var registrar filings.Registrar
		if filingsRegister {
			if err := cfg.Validate("migrate"); err != nil {
				return err
			}
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			registrar = st
		}

		years := cfg.Finnhub.Years
		if filingsYears > 0 {
			years = filingsYears
		}
		h := filings.NewHarvester(client, registrar, filings.Options{
			Years:       years,
			Concurrency: cfg.Finnhub.Concurrency,
			Market:      filingsMarket,
		})

		companies := filings.TopCompanies()
		if len(filingsSymbols) > 0 {
			companies = filings.ParseCompanies(filingsSymbols)
		}

		out := filingsOut
		if out == "" {
			out = cfg.Extract.SourceFile
		}
		src, err := h.RunToFile(ctx, companies, out)
		if err != nil {
			return err
		}

		withFilings := 0
		for _, sym := range src.Symbols {
			if _, ok := src.Latest(sym); ok {
				withFilings++
			}
		}
		zap.L().Info("filings written", zap.String("path", out))
		fmt.Fprintf(cmd.OutOrStdout(), "%d/%d companies have a 10-K on file -> %s\n", withFilings, len(src.Symbols), out)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare SYMBOL SYMBOL...",
	Short: "Compare company profiles and fundamentals side by side",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("filings"); err != nil {
			return err
		}
		cmp, err := filings.Compare(ctx, newFinnhubClient(), args)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), cmp)
	},
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio HOLDINGS_FILE",
	Short: "Value holdings (YAML or JSON list of symbol, shares, buyPrice) at current quotes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("filings"); err != nil {
			return err
		}
		holdings, err := loadHoldings(args[0])
		if err != nil {
			return err
		}
		p, err := filings.ValuePortfolio(ctx, newFinnhubClient(), holdings)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

// loadHoldings reads a holdings list. JSON input parses as YAML.
func loadHoldings(path string) ([]filings.Holding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "filings: read holdings %s", path)
	}
	var holdings []filings.Holding
	if err := yaml.Unmarshal(data, &holdings); err != nil {
		return nil, eris.Wrapf(err, "filings: parse holdings %s", path)
	}
	return holdings, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	filingsCmd.Flags().StringSliceVar(&filingsSymbols, "symbols", nil, "symbols to harvest (default: the top 20 list)")
	filingsCmd.Flags().StringVar(&filingsOut, "out", "", "output path (default: extract.source_file)")
	filingsCmd.Flags().IntVar(&filingsYears, "years", 0, "years of filings to fetch (default from config)")
	filingsCmd.Flags().BoolVar(&filingsRegister, "register", false, "upsert harvested companies into the companies table")
	filingsCmd.Flags().BoolVar(&filingsMarket, "market", false, "also fetch fundamentals, financials, profile, quote, recommendations and news")
	filingsCmd.AddCommand(compareCmd, portfolioCmd)
	rootCmd.AddCommand(filingsCmd)
}
