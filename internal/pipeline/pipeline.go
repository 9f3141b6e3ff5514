// Package pipeline orchestrates the extract-transform-load cycle over
// tabular datasets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/energitic/windfarm-etl/internal/dataset"
	"github.com/energitic/windfarm-etl/internal/observability"
)

// Extractor reads a full dataset from a source.
type Extractor interface {
	Extract(ctx context.Context) (*dataset.Dataset, error)
	Name() string
}

// Stage transforms a dataset. Stages receive a private clone, so a failing
// stage cannot corrupt the data handed to the next one.
type Stage interface {
	Apply(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
	Name() string
}

// Loader writes the final dataset to a destination.
type Loader interface {
	Load(ctx context.Context, ds *dataset.Dataset) error
	Name() string
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}

func (s StageFunc) Apply(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return s.Fn(ctx, ds)
}

func (s StageFunc) Name() string { return s.StageName }

// Pipeline orchestrates extraction, the ordered stage list, and loading.
type Pipeline struct {
	extractor Extractor
	stages    []Stage
	loaders   []Loader
	logger    *slog.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, stages []Stage, loaders []Loader, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		stages:    stages,
		loaders:   loaders,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed, or an
// error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no pipeline run has completed yet")
	}
	return nil
}

// Run executes RunOnce immediately and then on every interval tick until
// the context is cancelled. Run errors are logged, not fatal: the next tick
// gets a fresh chance.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "source", p.extractor.Name(), "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("pipeline run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single extract-transform-load cycle. A stage failure
// falls back to the dataset as it was before that stage; only an extraction
// failure or an empty extraction aborts the run.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ds, err := p.extractor.Extract(ctx)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("extract").Inc()
		return fmt.Errorf("extract from %s: %w", p.extractor.Name(), err)
	}
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("extract from %s: no rows", p.extractor.Name())
	}

	p.metrics.RowsExtracted.WithLabelValues(p.extractor.Name()).Add(float64(ds.Len()))
	p.logger.Info("extracted dataset", "source", p.extractor.Name(), "rows", ds.Len(), "columns", len(ds.Columns()))

	ds = p.transform(ctx, ds)

	if err := p.load(ctx, ds); err != nil {
		return err
	}

	p.metrics.RowsLoaded.Add(float64(ds.Len()))
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("pipeline run complete", "rows", ds.Len(), "duration", time.Since(start))
	return nil
}

// transform applies every stage in order. Each stage works on a clone; on
// failure the pre-stage dataset carries forward so one bad stage cannot
// discard the batch.
func (p *Pipeline) transform(ctx context.Context, ds *dataset.Dataset) *dataset.Dataset {
	for _, stage := range p.stages {
		stageStart := time.Now()

		out, err := stage.Apply(ctx, ds.Clone())
		if err != nil {
			p.logger.Warn("stage failed, keeping previous dataset", "stage", stage.Name(), "error", err)
			p.metrics.StageErrors.WithLabelValues(stage.Name()).Inc()
			continue
		}

		p.metrics.StageDuration.WithLabelValues(stage.Name()).Observe(time.Since(stageStart).Seconds())
		ds = out
	}
	return ds
}

// load writes to every loader. A loader failure is logged and counted but
// does not prevent the remaining loaders from receiving the dataset; the
// run only fails when every loader failed.
func (p *Pipeline) load(ctx context.Context, ds *dataset.Dataset) error {
	if len(p.loaders) == 0 {
		return nil
	}

	failed := 0
	for _, loader := range p.loaders {
		if err := loader.Load(ctx, ds); err != nil {
			p.logger.Error("load failed", "sink", loader.Name(), "error", err)
			p.metrics.StageErrors.WithLabelValues("load_" + loader.Name()).Inc()
			failed++
		}
	}

	if failed == len(p.loaders) {
		return errors.New("all sinks rejected the dataset")
	}
	return nil
}
