// Package app wires the configured backends into the ingestion, detection
// and answering services shared by the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/coursemap/internal/answer"
	"github.com/bull/coursemap/internal/cluster"
	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/index"
	"github.com/bull/coursemap/internal/indexer"
	"github.com/bull/coursemap/internal/llm"
	"github.com/bull/coursemap/internal/storage"
	"github.com/bull/coursemap/internal/topics"
)

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Store    *storage.Store
	Index    index.Index
	Provider llm.Provider
	Locker   course.Locker
	Pipeline *indexer.Pipeline
	Detector *topics.Detector
	Answers  *answer.Engine

	closers []func(context.Context) error
}

// Build opens every configured backend. On error, anything already opened
// is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Store, err = storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Store.Close() })

	a.Provider, err = llm.New(cfg.Provider, logger)
	if err != nil {
		return nil, err
	}

	if a.Index, err = a.openIndex(ctx); err != nil {
		return nil, err
	}
	if a.Locker, err = a.openLocker(ctx, logger); err != nil {
		return nil, err
	}

	embedder := llm.NewBatchEmbedder(a.Provider, cfg.Provider.BatchSize, cfg.Provider.Concurrency, cfg.Provider.Dimension)
	a.Pipeline = indexer.NewPipeline(a.Store, a.Index, embedder, a.Locker, cfg.Ingest.ChunkSize, logger)

	builder := topics.NewBuilder(topics.NewLLMNamer(a.Provider, logger), topics.BuilderConfig{
		MinCoOccurrence:   cfg.Topics.MinCoOccurrence,
		SampleSize:        cfg.Topics.SampleSize,
		MaxSampleChars:    cfg.Topics.MaxSampleChars,
		NamingConcurrency: cfg.Provider.Concurrency,
	}, logger)
	a.Detector = topics.NewDetector(a.Store, a.Locker, builder, cluster.Config{
		Method:     cfg.Clustering.Method,
		MinSamples: cfg.Clustering.MinSamples,
		Epsilon:    cfg.Clustering.Epsilon,
		Clusters:   cfg.Clustering.Clusters,
	}, cfg.Clustering.MinClusterSize, logger)

	mirror, err := storage.NewGraphMirror(ctx, cfg.Graph, logger)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		a.Detector.WithMirror(mirror)
		a.closers = append(a.closers, mirror.Close)
	}

	a.Answers = answer.NewEngine(a.Provider, a.Provider, a.Index, a.Store, answer.Config{
		TopK:                cfg.Retrieval.TopK,
		LowConfidenceScore:  cfg.Retrieval.LowConfidenceScore,
		HighConfidenceScore: cfg.Retrieval.HighConfidenceScore,
		MinChunks:           cfg.Retrieval.MinChunks,
		SummaryChunkLimit:   cfg.Retrieval.SummaryChunkLimit,
	}, logger)

	logger.Info("Initialized",
		"database", cfg.Database.Driver,
		"index", cfg.Index.Backend,
		"provider", a.Provider.Name(),
		"lock", cfg.Lock.Backend,
		"graph_mirror", mirror != nil,
	)
	return a, nil
}

func (a *App) openIndex(ctx context.Context) (index.Index, error) {
	cfg := a.Config
	switch cfg.Index.Backend {
	case "memory", "":
		return index.NewBruteForce(a.Store), nil
	case "qdrant":
		q, err := storage.NewQdrantIndex(ctx, cfg.Index.Qdrant.Host, cfg.Index.Qdrant.Port, cfg.Index.Qdrant.Collection, cfg.Provider.Dimension)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return q.Close() })
		return q, nil
	case "chromem":
		return storage.NewChromemIndex(cfg.Index.Chromem.Path, cfg.Provider.Dimension)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func (a *App) openLocker(ctx context.Context, logger *slog.Logger) (course.Locker, error) {
	switch a.Config.Lock.Backend {
	case "memory", "":
		return course.NewMemoryLocker(), nil
	case "redis":
		l, err := storage.NewRedisLocker(ctx, a.Config.Lock.RedisAddr, a.Config.Lock.TTL, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return l.Close() })
		return l, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.Config.Lock.Backend)
	}
}

// Health checks the store and the provider.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if err := a.Store.Health(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := a.Provider.Health(ctx); err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
