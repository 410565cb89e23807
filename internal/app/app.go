package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/vectorsync/internal/api/handlers"
	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/chunking"
	db "github.com/markdave123-py/vectorsync/internal/core/database"
	"github.com/markdave123-py/vectorsync/internal/core/embedding"
	"github.com/markdave123-py/vectorsync/internal/core/extraction"
	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/core/ingestion_engine"
	"github.com/markdave123-py/vectorsync/internal/core/llm"
	objectclient "github.com/markdave123-py/vectorsync/internal/core/object-client"
	"github.com/markdave123-py/vectorsync/internal/core/progress"
	"github.com/markdave123-py/vectorsync/internal/core/tokenizer"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/services"
)

// Infra are the externally backed clients the pipeline is assembled from.
// NewApp connects them from config; tests pass in-memory ones to Assemble.
type Infra struct {
	Store    core.RecordStore
	Index    vectorstore.Index
	Embedder core.EmbeddingProvider
	Files    core.FileStore
	Locker   core.RunLocker
	Redis    redis.UniversalClient
	Counter  tokenizer.Counter
}

type App struct {
	Config   *config.Config
	Store    core.RecordStore
	Gateway  *vectorstore.Gateway
	Embedder core.EmbeddingProvider
	Resolver *identity.Resolver
	Tracker  *progress.Tracker
	Broker   *progress.Broker
	Ingestor *ingestion_engine.DocumentIngestor
	Sources  *services.SourceService

	redis   redis.UniversalClient
	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var infra Infra
	var closers []io.Closer
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, dbClient)
	infra.Store = dbClient
	infra.Locker = db.NewAdvisoryLocker(dbClient.DB())
	slog.Info("database initialized and ready")

	switch cfg.Vector.Backend {
	case "qdrant":
		q, err := vectorstore.NewQdrantIndex(cfg.Vector)
		if err != nil {
			return fail(fmt.Errorf("qdrant: %w", err))
		}
		closers = append(closers, q)
		infra.Index = q
	case "pgvector":
		infra.Index = vectorstore.NewPGVectorIndex(dbClient.DB())
	default:
		slog.Warn("using the in-memory vector index; vectors are lost on restart")
		infra.Index = vectorstore.NewMemoryIndex()
	}

	switch cfg.Embedding.Provider {
	case "gemini":
		g, err := llm.NewGeminiEmbedder(appCtx, cfg.Embedding.GeminiAPIKey, cfg.Embedding.Model, cfg.Embedding.Dimension)
		if err != nil {
			return fail(fmt.Errorf("couldn't initialize the embedder: %w", err))
		}
		closers = append(closers, g)
		infra.Embedder = g
	default:
		o, err := llm.NewOpenAIEmbedder(cfg.Embedding.OpenAIAPIKey,
			llm.WithEmbeddingModel(cfg.Embedding.Model),
			llm.WithEmbeddingDimension(cfg.Embedding.Dimension))
		if err != nil {
			return fail(fmt.Errorf("couldn't initialize the embedder: %w", err))
		}
		infra.Embedder = o
	}

	if tk, err := tokenizer.NewTiktoken(cfg.Embedding.Model); err != nil {
		slog.Warn("tiktoken unavailable, estimating token counts", "err", err)
	} else {
		infra.Counter = tk
	}

	files := &objectclient.Router{Local: objectclient.NewLocalStore(cfg.Storage.LocalRoot)}
	if cfg.Storage.BucketName != "" || cfg.Storage.Endpoint != "" {
		s3c, err := objectclient.NewS3Client(appCtx, cfg.Storage)
		if err != nil {
			return fail(err)
		}
		files.Remote = objectclient.NewObjectStore(s3c, s3c.DefaultBucket())
	}
	infra.Files = files

	if cfg.Queue.Backend == "redis" || cfg.Progress.RedisChannel != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr, Password: cfg.Queue.RedisPass})
		if err := rc.Ping(appCtx).Err(); err != nil {
			_ = rc.Close()
			return fail(fmt.Errorf("redis %s: %w", cfg.Queue.RedisAddr, err))
		}
		closers = append(closers, rc)
		infra.Redis = rc
	}

	a := Assemble(cfg, infra)
	a.closers = closers
	return a, nil
}

// Assemble wires the pipeline and its services on top of infra.
func Assemble(cfg *config.Config, infra Infra) *App {
	logger := slog.Default()
	counter := infra.Counter
	if counter == nil {
		counter = tokenizer.Estimator{}
	}

	gateway := vectorstore.NewGateway(infra.Index, infra.Embedder.Dimension(), distanceOf(cfg.Vector.Distance),
		vectorstore.WithByteBudget(cfg.Vector.UpsertBudget),
		vectorstore.WithMaxBatch(cfg.Vector.UpsertMaxSize))

	var resolverOpts []identity.Option
	if cfg.Identity.AutoMigrate {
		resolverOpts = append(resolverOpts, identity.WithMigrator(gateway))
	}
	resolver := identity.NewResolver(infra.Store, resolverOpts...)

	broker := progress.NewBroker()
	pubs := progress.MultiPublisher{progress.LogPublisher{Logger: logger.With("component", "progress")}}
	if infra.Redis != nil && cfg.Progress.RedisChannel != "" {
		// the broker is fed by Relay so every process sees every run
		pubs = append(pubs, progress.NewRedisPublisher(infra.Redis, cfg.Progress.RedisChannel))
	} else {
		pubs = append(pubs, broker)
	}
	tracker := progress.NewTracker(infra.Store, pubs)

	extractor := extraction.NewDefaultCoordinator(extraction.ExcelOptions{
		SheetPriority: cfg.Excel.SheetPriority,
		MaxSheets:     cfg.Excel.MaxSheets,
		MaxCells:      cfg.Excel.MaxCells,
	}, nil, extraction.NewRecognizer(), logger.With("component", "extraction"))

	batcher := embedding.NewBatcher(infra.Embedder,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithMaxRetries(cfg.Embedding.MaxRetries),
		embedding.WithPause(cfg.Embedding.BatchPause),
		embedding.WithTokenLimit(counter, cfg.Embedding.MaxTokens))

	ingestCfg := ingestion_engine.DefaultIngestConfig()
	ingestCfg.TargetChars = cfg.Chunking.TargetChars
	ingestCfg.MinChars = cfg.Chunking.MinChars
	ingestCfg.OverlapElements = cfg.Chunking.OverlapElements
	ingestCfg.MaxRowsPerChunk = cfg.Chunking.MaxRowsPerChunk
	ingestCfg.Dimension = infra.Embedder.Dimension()
	ingestCfg.Distance = distanceOf(cfg.Vector.Distance)
	if !cfg.Identity.Strict {
		ingestCfg.Mode = identity.Lenient
	}

	var ingOpts []ingestion_engine.Option
	if infra.Redis != nil && cfg.Queue.Backend == "redis" {
		ingOpts = append(ingOpts, ingestion_engine.WithQueue(ingestion_engine.NewRedisQueue(infra.Redis, cfg.Queue.RedisKey)))
	}
	ingestor := ingestion_engine.NewDocumentIngestor(ingestion_engine.Deps{
		Store:     infra.Store,
		Files:     infra.Files,
		Resolver:  resolver,
		Extractor: extractor,
		Chunker:   chunking.NewEngine(chunking.WithCounter(counter)),
		Batcher:   batcher,
		Gateway:   gateway,
		Tracker:   tracker,
		Locker:    infra.Locker,
	}, ingestCfg, ingOpts...)

	return &App{
		Config:   cfg,
		Store:    infra.Store,
		Gateway:  gateway,
		Embedder: infra.Embedder,
		Resolver: resolver,
		Tracker:  tracker,
		Broker:   broker,
		Ingestor: ingestor,
		Sources:  services.NewSourceService(infra.Store, resolver, ingestor, gateway, infra.Embedder, ingestCfg.Mode),
		redis:    infra.Redis,
	}
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return NewRouter(a.Config.Server,
		handlers.NewSourceHandler(a.Sources, a.Broker),
		handlers.NewSearchHandler(a.Sources))
}

// Serve runs the queue workers, the stale-run janitor, the progress relay
// and the HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.Ingestor.Start(gctx, a.Config.Queue.Workers); err != nil {
		return err
	}
	if stale := a.Config.Progress.StaleAfter; stale > 0 {
		g.Go(func() error {
			a.Tracker.Janitor(gctx, max(stale/4, time.Minute), stale)
			return nil
		})
	}
	if a.redis != nil && a.Config.Progress.RedisChannel != "" {
		g.Go(func() error {
			return progress.Relay(gctx, a.redis, a.Config.Progress.RedisChannel, a.Broker)
		})
	}

	srv := NewServer(a.Config.Server, a.Handler())
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Ingestor.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a.Ingestor != nil {
		_ = a.Ingestor.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close", "err", err)
		}
	}
}

func distanceOf(s string) models.Distance {
	switch models.Distance(s) {
	case models.DistanceDot, models.DistanceEuclidean:
		return models.Distance(s)
	}
	return models.DistanceCosine
}
