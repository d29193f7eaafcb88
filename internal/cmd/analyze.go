package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/output"
)

var topN int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Load access logs and print a summary report",
	Long: `Load one or more access logs (CSV or whitespace separated, optionally
gzip or zstd compressed), enrich every request and print conversion rates,
top countries and hourly and weekday traffic.

Examples:
  loglens analyze access.log
  loglens analyze access.csv.gz --top 5 --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&topN, "top", 0, "number of countries to list (default from report.top)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	for _, path := range args {
		res, err := a.loadHistory(path)
		if err != nil {
			return err
		}
		if outputFmt != "json" {
			fmt.Fprintf(os.Stderr, "loaded %s: %s records, %s skipped in %s\n",
				res.Source, humanize.Comma(int64(res.Stats.Enriched)),
				humanize.Comma(int64(res.Skipped+res.Stats.Dropped+res.Stats.Malformed)), res.Duration.Round(time.Millisecond))
		}
	}

	n := a.cfg.Report.Top
	if topN > 0 {
		n = topN
	}
	a.logger.Debug("writing report", zap.Int("records", a.dataset.Len()), zap.Int("top", n))
	return output.WriteSummary(os.Stdout, a.dataset.Summary(n), outputFmt)
}
