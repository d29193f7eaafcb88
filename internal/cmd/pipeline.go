package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/config"
	"github.com/atikulmunna/loglens/internal/dataset"
	"github.com/atikulmunna/loglens/internal/enricher"
	"github.com/atikulmunna/loglens/internal/geo"
	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/loader"
	"github.com/atikulmunna/loglens/internal/logging"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/parser"
	"github.com/atikulmunna/loglens/internal/tailer"
	"github.com/atikulmunna/loglens/internal/watcher"
)

// app bundles the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	resolver *geo.Resolver
	enricher *enricher.Enricher
	dataset  *dataset.Dataset
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	geoOpts := []geo.Option{geo.WithLogger(logger.Named("geo"))}
	if len(cfg.Geo.Ranges) > 0 {
		geoOpts = append(geoOpts, geo.WithRanges(cfg.Geo.Ranges))
	}
	var open geo.Opener
	if cfg.Geo.Database != "" {
		open = geo.OpenMMDB(cfg.Geo.Database)
	}
	resolver := geo.NewResolver(open, geoOpts...)

	e := enricher.New(resolver,
		enricher.WithMarkers(cfg.Enrich.ConversionMarkers),
		enricher.WithLogger(logger.Named("enricher")))

	return &app{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		enricher: e,
		dataset:  dataset.New(),
	}, nil
}

func (a *app) close() {
	if err := a.resolver.Close(); err != nil {
		a.logger.Warn("closing geo database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// loadHistory bulk-loads path into the dataset.
func (a *app) loadHistory(path string) (*loader.Result, error) {
	l := loader.New(a.enricher, a.dataset, loader.Options{
		Format:   a.cfg.InputFormat(),
		Encoding: a.cfg.Input.Encoding,
	}, a.logger.Named("loader"))
	return l.LoadFile(path)
}

// live is a running watcher, tailer and hub over one file. records is
// subscribed before ingestion starts, so it sees every appended record.
type live struct {
	tailer  *tailer.Tailer
	hub     *hub.Hub
	records <-chan model.LogRecord
	done    chan error
}

// startLive follows pattern and feeds its growth into the dataset. The
// returned done channel yields the tailer's exit error.
func (a *app) startLive(ctx context.Context, pattern string) (*live, error) {
	charset, err := parser.Charset(a.cfg.Input.Encoding)
	if err != nil {
		return nil, err
	}
	w, err := watcher.New(pattern, a.logger.Named("watcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	records := make(chan model.LogRecord, 512)
	h := hub.New(records, a.logger.Named("hub"))

	opts := []tailer.Option{
		tailer.WithFormat(parser.Detect(w.Path(), a.cfg.InputFormat())),
		tailer.WithEncoding(charset),
		tailer.WithPublish(records),
		tailer.WithLogger(a.logger.Named("tailer")),
	}
	if a.cfg.Watch.StateFile != "" {
		opts = append(opts, tailer.WithProgress(tailer.NewProgress(a.cfg.Watch.StateFile)))
	}
	t := tailer.New(w.Path(), a.enricher, a.dataset, opts...)
	if err := t.Open(); err != nil {
		return nil, err
	}

	l := &live{tailer: t, hub: h, records: h.Subscribe(), done: make(chan error, 1)}
	go w.Start(ctx)
	go h.Start(ctx)
	go func() {
		l.done <- t.Run(ctx, w.Events)
		close(records)
	}()
	return l, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down gracefully")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
