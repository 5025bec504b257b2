// Package crawl runs one ingestion pass over the registered sources. Every
// source is fetched, normalized, stored and finalized as an isolated unit: a
// failing source is logged and skipped until the next run.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/filter"
	"github.com/scipunch/backlog/metrics"
	"github.com/scipunch/backlog/parser"
)

const (
	DefaultConcurrency   = 1
	DefaultSourceTimeout = 2 * time.Minute
)

// Registry lists the sources due for crawling
type Registry interface {
	List(ctx context.Context) ([]types.Source, error)
}

// Normalizer turns raw feed bytes into articles
type Normalizer interface {
	Normalize(raw []byte, src types.Source, warn parser.WarnFunc) ([]types.Article, error)
}

// Session is the storage scope of one source
type Session interface {
	Persist(ctx context.Context, articles []types.Article, sourceID int64) (int, error)
	Finalize(ctx context.Context, sourceID int64) error
	Close() error
}

// Sink hands out storage sessions
type Sink interface {
	Session(ctx context.Context) (Session, error)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context) (Session, error)

func (f SinkFunc) Session(ctx context.Context) (Session, error) { return f(ctx) }

// Result is the outcome of one source
type Result struct {
	Source  types.Source
	State   State
	Parsed  int // articles produced by the normalizer
	Dropped int // articles removed by filters
	Stored  int // new rows written
	Err     error
}

// Summary describes a finished run
type Summary struct {
	Sources     int
	Done        int
	Failed      int
	Stored      int
	Interrupted bool
	Duration    time.Duration
	Results     []Result
	Err         error // registry failure, no source was processed
}

type Orchestrator struct {
	registry   Registry
	fetcher    types.FeedFetcher
	normalizer Normalizer
	sink       Sink
	filters    *filter.FilterPipeline
	metrics    *metrics.Metrics
	log        *zap.Logger

	concurrency int
	timeout     time.Duration
}

type Option func(*Orchestrator)

// WithConcurrency bounds the number of sources processed at once
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithSourceTimeout bounds the time spent on one source
func WithSourceTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithFilters(fp *filter.FilterPipeline) Option {
	return func(o *Orchestrator) { o.filters = fp }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(registry Registry, fetcher types.FeedFetcher, normalizer Normalizer, sink Sink, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		registry:    registry,
		fetcher:     fetcher,
		normalizer:  normalizer,
		sink:        sink,
		log:         log,
		concurrency: DefaultConcurrency,
		timeout:     DefaultSourceTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs one crawl over every registered source. It never fails as a
// whole; per source outcomes are logged and returned in the Summary.
func (o *Orchestrator) Run(ctx context.Context) Summary {
	start := time.Now()
	o.log.Info("crawl run started", zap.Time("at", start))

	var summary Summary
	defer func() {
		summary.Duration = time.Since(start)
		o.observeRun(summary)
		o.log.Info("crawl run finished",
			zap.Int("sources", summary.Sources),
			zap.Int("done", summary.Done),
			zap.Int("failed", summary.Failed),
			zap.Int("stored", summary.Stored),
			zap.Bool("interrupted", summary.Interrupted),
			zap.Duration("duration", summary.Duration))
	}()

	sources, err := o.registry.List(ctx)
	if err != nil {
		o.log.Error("failed to list sources", zap.Error(err))
		summary.Err = err
		return summary
	}
	summary.Sources = len(sources)

	results := make([]Result, len(sources))
	for i, src := range sources {
		results[i] = Result{Source: src, State: Pending}
	}

	if o.concurrency <= 1 {
		for i, src := range sources {
			if ctx.Err() != nil {
				break
			}
			results[i] = o.processSource(ctx, src)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for i, src := range sources {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				results[i] = o.processSource(ctx, src)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary.Results = results
	for _, r := range results {
		switch r.State {
		case Done:
			summary.Done++
			summary.Stored += r.Stored
		case Failed:
			summary.Failed++
		default:
			summary.Interrupted = true
		}
	}
	return summary
}

// processSource runs fetch, normalize, persist and finalize for src. Any
// failure, panics included, ends in the Failed state.
func (o *Orchestrator) processSource(ctx context.Context, src types.Source) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	log := o.log.With(zap.Int64("source_id", src.ID), zap.String("url", src.URL), zap.String("format", src.Format))
	res = Result{Source: src, State: Pending}

	defer func() {
		if r := recover(); r != nil {
			o.fail(log, &res, &PanicError{Value: r})
		}
		o.observeSource(res)
	}()

	log.Info("feed being crawled")

	o.advance(log, &res, Fetching)
	raw, err := o.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		o.fail(log, &res, err)
		return res
	}

	o.advance(log, &res, Normalizing)
	articles, err := o.normalizer.Normalize(raw, src, o.warnFunc(log))
	if err != nil {
		o.fail(log, &res, err)
		return res
	}
	res.Parsed = len(articles)

	articles, dropped := o.filters.Apply(articles)
	res.Dropped = len(dropped)
	for _, d := range dropped {
		log.Debug("article filtered out", zap.String("title", d.Article.Name), zap.String("link", d.Article.Link), zap.String("reason", d.Reason))
		o.countDropped("filtered")
	}

	o.advance(log, &res, Persisting)
	sess, err := o.sink.Session(ctx)
	if err != nil {
		o.fail(log, &res, err)
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to release storage session", zap.Error(err))
		}
	}()

	stored, err := sess.Persist(ctx, articles, src.ID)
	res.Stored = stored
	if err != nil {
		// finalization is withheld so the whole source is retried next run
		o.fail(log, &res, err)
		return res
	}

	o.advance(log, &res, Finalizing)
	if err := sess.Finalize(ctx, src.ID); err != nil {
		o.fail(log, &res, err)
		return res
	}

	o.advance(log, &res, Done)
	log.Info("feed crawled", zap.Int("parsed", res.Parsed), zap.Int("dropped", res.Dropped), zap.Int("stored", res.Stored))
	return res
}

func (o *Orchestrator) advance(log *zap.Logger, res *Result, next State) {
	if !res.State.CanTransition(next) {
		panic(fmt.Sprintf("invalid source transition %s -> %s", res.State, next))
	}
	log.Debug("source state changed", zap.Stringer("from", res.State), zap.Stringer("to", next))
	res.State = next
}

func (o *Orchestrator) fail(log *zap.Logger, res *Result, err error) {
	stage := res.State
	if stage.Terminal() {
		return
	}
	res.Err = &SourceError{SourceID: res.Source.ID, URL: res.Source.URL, Stage: stage, Err: err}
	res.State = Failed
	log.Error("feed crawl failed", zap.Stringer("stage", stage), zap.Error(err))
}

func (o *Orchestrator) warnFunc(log *zap.Logger) parser.WarnFunc {
	return func(item parser.MalformedItem) {
		log.Warn("could not add feed item",
			zap.String("title", item.Title),
			zap.String("source_url", item.SourceURL),
			zap.String("reason", item.Reason))
		o.countDropped("malformed")
	}
}

func (o *Orchestrator) countDropped(reason string) {
	if o.metrics != nil {
		o.metrics.ItemsDropped.WithLabelValues(reason).Inc()
	}
}

func (o *Orchestrator) observeSource(res Result) {
	if o.metrics == nil {
		return
	}
	switch res.State {
	case Done:
		o.metrics.Sources.WithLabelValues(metrics.OutcomeDone, "").Inc()
		o.metrics.ArticlesStored.Add(float64(res.Stored))
	case Failed:
		stage := ""
		var se *SourceError
		if errors.As(res.Err, &se) {
			stage = se.Stage.String()
		}
		o.metrics.Sources.WithLabelValues(metrics.OutcomeFailed, stage).Inc()
		o.metrics.ArticlesStored.Add(float64(res.Stored))
	}
}

func (o *Orchestrator) observeRun(s Summary) {
	if o.metrics == nil {
		return
	}
	o.metrics.RunDuration.Observe(s.Duration.Seconds())
	o.metrics.LastRunTimestamp.SetToCurrentTime()
}
