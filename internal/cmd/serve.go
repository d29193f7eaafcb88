package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/server"
	"github.com/atikulmunna/loglens/internal/tailer"
)

var noWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve <file>",
	Short: "Load an access log, follow it and serve the dataset over HTTP",
	Long: `Bulk-load an access log, then keep following it and expose the enriched
dataset over a JSON API with a live WebSocket stream and Prometheus metrics.

Examples:
  loglens serve access.log
  loglens serve access.log --port 9090
  loglens serve archive.csv.gz --no-watch`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "8080", "HTTP port")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "serve the loaded file without following it")
	serveCmd.Flags().StringVar(&stateFile, "state-file", "", "write ingestion progress to this file")
	cobra.CheckErr(viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if _, err := a.loadHistory(args[0]); err != nil {
		return err
	}

	if noWatch {
		srv := server.New(a.dataset, nil, nil, a.cfg.Server.Port, a.logger.Named("server"))
		return srv.Run(ctx)
	}

	l, err := a.startLive(ctx, args[0])
	if err != nil {
		return err
	}
	agg := aggregator.New(l.records, l.hub.Dropped, func() int64 {
		return l.tailer.State().Offset
	})
	go agg.Start(ctx)

	srv := server.New(a.dataset, l.hub, agg, a.cfg.Server.Port, a.logger.Named("server"),
		server.WithIngestion(func() (model.IngestionState, string) {
			return l.tailer.State(), l.tailer.Status().String()
		}))

	go func() {
		// The API keeps serving the loaded data after the file goes away.
		if err := <-l.done; err != nil && !errors.Is(err, tailer.ErrStopped) {
			a.logger.Error("tailer failed", zap.Error(err))
		} else if err != nil {
			a.logger.Warn("tailer stopped", zap.Error(err))
		}
	}()

	return srv.Run(ctx)
}
