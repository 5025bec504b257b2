package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scipunch/backlog/config"
	"github.com/scipunch/backlog/crawl"
	"github.com/scipunch/backlog/fetcher"
	"github.com/scipunch/backlog/filter"
	"github.com/scipunch/backlog/logger"
	"github.com/scipunch/backlog/metrics"
	"github.com/scipunch/backlog/parser/factory"
	"github.com/scipunch/backlog/registry"
	"github.com/scipunch/backlog/scheduler"
	"github.com/scipunch/backlog/store"
)

func main() {
	var (
		cfgPath   string
		once      bool
		addSource string
		format    string
	)
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML config")
	flag.BoolVar(&once, "once", false, "run a single crawl and exit")
	flag.StringVar(&addSource, "add", "", "register a feed URL and exit")
	flag.StringVar(&format, "format", "", "feed format for -add: generic or structured (detected from the URL when empty)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("failed to load environment with %s", err)
	}

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			log.Fatalf("failed to write default config with %s", err)
		}
	} else if err != nil {
		log.Fatalf("failed to read config with %s", err)
	}
	conf = config.ApplyEnv(conf)
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
	if err := scheduler.Validate(conf.Schedule); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	lg, err := logger.New(conf.LogLevel, conf.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger with %s", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, lg, once, addSource, format); err != nil {
		lg.Error("backlog stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Config, lg *zap.Logger, once bool, addSource, format string) error {
	st, err := store.Open(ctx, conf.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	lg.Info("store opened", zap.String("driver", st.Driver()))

	if conf.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to initialize database schema with %w", err)
		}
	}

	sources := registry.New(st.DB())

	if addSource != "" {
		id, err := sources.Add(ctx, addSource, format)
		if err != nil {
			return err
		}
		lg.Info("source registered", zap.Int64("source_id", id), zap.String("url", addSource))
		return nil
	}

	// Show store stats
	stats, err := st.Stats(ctx)
	if err != nil {
		lg.Warn("failed to get store stats", zap.Error(err))
	} else {
		lg.Info("store initialized",
			zap.Int("sources", stats.Sources),
			zap.Int("crawled_sources", stats.CrawledSources),
			zap.Int("articles", stats.Articles))
	}

	parsers, err := factory.Init(conf.ParserOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize parsers with %w", err)
	}

	filterPipeline, err := filter.NewFilterPipeline(conf.Filters, conf.ApplyFilters)
	if err != nil {
		return fmt.Errorf("failed to initialize filters with %w", err)
	}
	if len(conf.ApplyFilters) > 0 {
		lg.Info("initialized filters", zap.Strings("apply", conf.ApplyFilters))
	}

	m := metrics.New()
	if conf.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, conf.MetricsAddr); err != nil {
				lg.Error("metrics listener stopped", zap.Error(err))
			}
		}()
		lg.Info("serving metrics", zap.String("addr", conf.MetricsAddr))
	}

	fetchers := fetcher.GetFetchers(
		fetcher.WithUserAgent(conf.UserAgent),
		fetcher.WithMaxBytes(conf.MaxFeedBytes),
	)

	sink := crawl.SinkFunc(func(ctx context.Context) (crawl.Session, error) {
		sess, err := st.Session(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})

	orchestrator := crawl.New(sources, fetchers, parsers, sink, lg,
		crawl.WithConcurrency(conf.Concurrency),
		crawl.WithSourceTimeout(conf.SourceTimeout.Duration),
		crawl.WithFilters(filterPipeline),
		crawl.WithMetrics(m),
	)

	if once {
		orchestrator.Run(ctx)
		return nil
	}

	sched := scheduler.New(lg)
	if err := sched.Schedule(ctx, conf.Schedule, func(ctx context.Context) { orchestrator.Run(ctx) }); err != nil {
		return err
	}
	sched.Start()
	lg.Info("waiting for scheduled runs", zap.String("schedule", conf.Schedule))

	<-ctx.Done()
	lg.Info("interrupted, waiting for the running crawl to stop")
	<-sched.Stop().Done()
	return nil
}
