package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/knowdisk/knowdisk/internal/chunker"
	"github.com/knowdisk/knowdisk/internal/config"
	"github.com/knowdisk/knowdisk/internal/embed"
	"github.com/knowdisk/knowdisk/internal/fswalk"
	"github.com/knowdisk/knowdisk/internal/mcptool"
	"github.com/knowdisk/knowdisk/internal/orchestrator"
	"github.com/knowdisk/knowdisk/internal/parse"
	"github.com/knowdisk/knowdisk/internal/processor"
	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/internal/retrieval"
	"github.com/knowdisk/knowdisk/internal/scheduler"
	"github.com/knowdisk/knowdisk/internal/vectorstore"
	"github.com/knowdisk/knowdisk/internal/watch"
	"github.com/knowdisk/knowdisk/internal/worker"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

// app wires every capability and component needed by the CLI's
// subcommands, following the teacher's pattern of a single bootstrap
// assembled once per process.
type app struct {
	root     string
	dataDir  string
	cfg      *config.Config
	repo     *repo.Repo
	vectors  *vectorstore.Store
	embedder capability.Embedder
	resolver *parse.Resolver
	sched    *scheduler.Scheduler
	pool     *worker.Pool
	orch     *orchestrator.Orchestrator
	pipeline *retrieval.Pipeline
	logger   *slog.Logger
}

func newApp(root string) (*app, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	dataDir := filepath.Join(absRoot, ".knowdisk")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, err
	}

	r, err := repo.Open(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata repository: %w", err)
	}

	vectors := vectorstore.New(vectorstore.Config{Dimensions: embed.StaticDimensions})

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), 1024)
	resolver := parse.NewResolver()

	clock := capability.SystemClock{}
	sched := scheduler.New(cfg.Indexing.Watch.DebounceMs, r, scheduler.UUIDGenerator{})

	proc := processor.New(r, vectors, embedder, chunker.DefaultConfig(), clock)

	pool := worker.New(r, resolver, proc, nil, clock, worker.Config{
		Concurrency: cfg.Indexing.Worker.Concurrency,
		MaxAttempts: cfg.Indexing.Retry.MaxAttempts,
		BackoffMs:   cfg.Indexing.Retry.BackoffMs,
	}, worker.Callbacks{})

	indexable := func(path string) bool {
		_, ok := resolver.Resolve(path)
		return ok
	}
	orch := orchestrator.New(r, sched, pool, clock, absRoot, fswalk.Indexable(indexable), cfg.Indexing.Watch.DebounceMs)

	pipeline := retrieval.New(r, vectors, embedder, nil, retrieval.Config{
		DefaultTopK: 10,
		FtsTopN:     cfg.Retrieval.Hybrid.FtsTopN,
		VectorTopK:  cfg.Retrieval.Hybrid.VectorTopK,
		RerankTopN:  cfg.Retrieval.Hybrid.RerankTopN,
	})

	return &app{
		root: absRoot, dataDir: dataDir, cfg: cfg,
		repo: r, vectors: vectors, embedder: embedder, resolver: resolver,
		sched: sched, pool: pool, orch: orch, pipeline: pipeline,
		logger: slog.Default(),
	}, nil
}

func (a *app) close() {
	a.resolver.Close()
	_ = a.repo.Close()
}

func (a *app) mcpServer() *mcptool.Server {
	return mcptool.New(a.pipeline, nil, a.logger)
}

func (a *app) watcher() *watch.Watcher {
	return watch.New(a.root, watch.DefaultOptions(), a.logger)
}
