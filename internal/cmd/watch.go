package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/output"
	"github.com/atikulmunna/loglens/internal/tailer"
)

var (
	statusFilter    string
	conversionsOnly bool
	stateFile       string
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Follow an access log and print enriched requests",
	Long: `Follow one access log (a path or a glob matching exactly one file) and
print every request appended to it after startup, enriched with its country
and conversion flag. Content already in the file is not replayed.

Examples:
  loglens watch /var/log/nginx/access.log
  loglens watch "logs/**/access.log" --status 4xx,5xx
  loglens watch access.csv --conversions --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&statusFilter, "status", "", "only show these status classes (e.g. 4xx,5xx)")
	watchCmd.Flags().BoolVar(&conversionsOnly, "conversions", false, "only show conversion requests")
	watchCmd.Flags().StringVar(&stateFile, "state-file", "", "write ingestion progress to this file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if stateFile != "" {
		a.cfg.Watch.StateFile = stateFile
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	l, err := a.startLive(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "loglens watching %s (Ctrl-C to stop)\n\n", l.tailer.State().Path)

	renderer := output.New(strings.ToLower(outputFmt))
	classes := statusClasses(statusFilter)

	for rec := range l.records {
		if !shouldShow(rec, classes, conversionsOnly) {
			continue
		}
		if err := renderer.Render(rec); err != nil {
			a.logger.Warn("render failed", zap.Error(err))
		}
	}

	err = <-l.done
	if errors.Is(err, tailer.ErrStopped) {
		a.logger.Info("watch ended", zap.Error(err))
		return nil
	}
	return err
}

// statusClasses parses a comma-separated list such as "4xx,5xx".
func statusClasses(s string) map[string]bool {
	set := make(map[string]bool)
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = true
		}
	}
	return set
}

// shouldShow reports whether rec passes the status and conversion filters.
func shouldShow(rec model.LogRecord, classes map[string]bool, convOnly bool) bool {
	if convOnly && !rec.IsConversion {
		return false
	}
	if len(classes) == 0 {
		return true
	}
	return classes[aggregator.StatusClass(rec.Status)]
}
