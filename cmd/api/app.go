package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/newsdesk/search/internal/api"
	"github.com/newsdesk/search/internal/api/handlers"
	"github.com/newsdesk/search/internal/api/middleware"
	"github.com/newsdesk/search/internal/config"
	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/internal/googleai"
	"github.com/newsdesk/search/internal/jobs"
	"github.com/newsdesk/search/internal/observability"
	"github.com/newsdesk/search/internal/openai"
	"github.com/newsdesk/search/internal/repository"
	"github.com/newsdesk/search/internal/service"
	"github.com/newsdesk/search/internal/worker"
	"github.com/newsdesk/search/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg       *config.Config
	db        *pgxpool.Pool
	server    *http.Server
	river     *river.Client[pgx.Tx] // nil when no embedding provider is configured
	poller    *worker.QueueDepthPoller
	telemetry *observability.Providers
}

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

const (
	embeddingProviderOpenAI = "openai"
	embeddingProviderGoogle = "google"
)

// embedders are the provider clients used for search queries and for article text. The document client
// retries transient provider errors; the query client fails fast so search can fall back to lexical.
type embedders struct {
	query    embedding.Client
	document embedding.Client
	model    string
}

// newEmbedders builds the configured provider clients, each bounded by the per-call timeout and sharing one
// rate limiter. It returns nil when EMBEDDING_PROVIDER is empty, which disables semantic search and the
// embedding queue.
func newEmbedders(ctx context.Context, cfg *config.Config) (*embedders, error) {
	var (
		query, document embedding.Client
		model           string
	)

	retrying := embedding.RetryingHTTPClient(cfg.EmbeddingDocumentRetries, slog.Default())

	switch cfg.EmbeddingProvider {
	case "":
		return nil, nil
	case embeddingProviderOpenAI:
		opts := []openai.ClientOption{
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		}

		queryClient := openai.NewClient(cfg.EmbeddingProviderAPIKey, opts...)
		documentClient := openai.NewClient(cfg.EmbeddingProviderAPIKey, append(opts, openai.WithHTTPClient(retrying))...)

		query, document, model = queryClient, documentClient, queryClient.Model()
	case embeddingProviderGoogle:
		newClient := func(taskType string, hc *http.Client) (*googleai.Client, error) {
			c, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
				googleai.WithModel(cfg.EmbeddingModel),
				googleai.WithDimensions(cfg.EmbeddingDimensions),
				googleai.WithTaskType(taskType),
				googleai.WithHTTPClient(hc),
			)
			if err != nil {
				return nil, fmt.Errorf("create google %s embedding client: %w", strings.ToLower(taskType), err)
			}

			return c, nil
		}

		queryClient, err := newClient("RETRIEVAL_QUERY", nil)
		if err != nil {
			return nil, err
		}

		documentClient, err := newClient("RETRIEVAL_DOCUMENT", retrying)
		if err != nil {
			return nil, err
		}

		query, document, model = queryClient, documentClient, queryClient.Model()
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}

	limiter := embedding.NewLimiter(cfg.EmbeddingRateLimit)
	bounded := func(c embedding.Client) embedding.Client {
		return embedding.WithTimeout(embedding.WithLimiter(c, limiter), cfg.EmbeddingTimeout)
	}

	return &embedders{query: bounded(query), document: bounded(document), model: model}, nil
}

// setupObservability builds and installs the OpenTelemetry providers and the trace-aware log handler.
// metrics is nil when metrics are disabled.
func setupObservability(cfg *config.Config) (*observability.Providers, *observability.Metrics, error) {
	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	}

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	}

	providers, err := observability.NewProviders(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create telemetry providers: %w", err)
	}

	metrics, err := observability.NewMetrics(providers.MeterForMetrics())
	if err != nil {
		if err2 := providers.Shutdown(context.Background()); err2 != nil {
			slog.Error("shutdown telemetry after metrics error", "error", err2)
		}

		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	providers.Install()

	// Installed unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	return providers, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	providers, metrics, err := setupObservability(cfg)
	if err != nil {
		return nil, err
	}

	app, err := wire(ctx, cfg, db, providers, metrics)
	if err != nil {
		if err2 := providers.Shutdown(context.Background()); err2 != nil {
			slog.Error("shutdown telemetry after wiring error", "error", err2)
		}

		return nil, err
	}

	app.server.Handler = instrument(app.server.Handler, providers)
	app.telemetry = providers

	return app, nil
}

func wire(
	ctx context.Context, cfg *config.Config, db *pgxpool.Pool,
	providers *observability.Providers, metrics *observability.Metrics,
) (*App, error) {
	var (
		searchMetrics    observability.SearchMetrics
		embeddingMetrics observability.EmbeddingMetrics
		cacheMetrics     observability.CacheMetrics
		queueMetrics     observability.QueueMetrics
		apiMetrics       observability.APIMetrics
	)
	if metrics != nil {
		searchMetrics = metrics.Search
		embeddingMetrics = metrics.Embeddings
		cacheMetrics = metrics.Cache
		queueMetrics = metrics.Queue
		apiMetrics = metrics.API
	}

	articlesRepo := repository.NewArticlesRepository(db)
	embeddingsRepo := repository.NewEmbeddingsRepository(db)
	jobsRepo := repository.NewEmbeddingJobsRepository(db)

	emb, err := newEmbedders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		model    string
		semantic service.SemanticSource
		query    embedding.Client
	)
	if emb != nil {
		model, semantic, query = emb.model, embeddingsRepo, emb.query
		slog.Info("semantic search enabled", "provider", cfg.EmbeddingProvider, "model", model)
	} else {
		slog.Info("semantic search disabled (EMBEDDING_PROVIDER empty or unset)")
	}

	probe := service.NewAvailabilityProbe(service.AvailabilityProbeParams{
		Presence:           embeddingsRepo,
		Model:              model,
		ProviderConfigured: emb != nil,
		TTL:                cfg.SearchAvailabilityTTL,
		CacheMetrics:       cacheMetrics,
		Logger:             slog.Default(),
	})

	queryCache, err := service.NewQueryEmbeddingCache(cfg.SearchQueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search query cache: %w", err)
	}

	searchService := service.NewSearchService(service.SearchServiceParams{
		Ranker:        service.NewHybridRanker(articlesRepo, semantic, model, cfg.SearchCandidatePool),
		Availability:  probe,
		Embedder:      query,
		QueryCache:    queryCache,
		DefaultWeight: cfg.SearchDefaultSemanticWeight,
		Metrics:       searchMetrics,
		CacheMetrics:  cacheMetrics,
		Logger:        slog.Default(),
	})

	app := &App{cfg: cfg, db: db}

	var embeddingsHandler *handlers.EmbeddingsHandler

	// The embedding queue only runs with a provider: without one there is nothing to drain.
	if emb != nil {
		scheduler := service.NewDrainScheduler(nil) // inserter set below once the River client exists

		jobsService := service.NewEmbeddingJobsService(service.EmbeddingJobsServiceParams{
			Jobs:          jobsRepo,
			Articles:      articlesRepo,
			Embeddings:    embeddingsRepo,
			Embedder:      emb.document,
			Model:         model,
			MaxInputRunes: cfg.EmbeddingMaxInputChars,
			Notifier:      scheduler,
			OnStored:      probe.Invalidate,
			Metrics:       embeddingMetrics,
			Logger:        slog.Default(),
		})

		riverWorkers := river.NewWorkers()
		river.AddWorker(riverWorkers, workers.NewEmbeddingDrainWorker(workers.EmbeddingDrainWorkerParams{
			Drainer:     jobsService,
			Rescheduler: scheduler,
			BatchSize:   cfg.EmbeddingQueueBatchSize,
			Metrics:     embeddingMetrics,
		}))

		app.river, err = jobs.NewClient(db, jobs.ClientParams{
			Workers:       riverWorkers,
			MaxWorkers:    cfg.EmbeddingQueueWorkers,
			DrainInterval: cfg.EmbeddingQueuePollInterval,
			ErrorHandler:  &jobs.ErrorHandler{Logger: slog.Default(), Metrics: embeddingMetrics},
			Logger:        slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("create River client: %w", err)
		}

		scheduler.SetInserter(app.river)

		embeddingsHandler = handlers.NewEmbeddingsHandler(jobsService)
	}

	if queueMetrics != nil {
		var riverDepth worker.DepthFunc
		if app.river != nil {
			riverDepth = func(ctx context.Context) (int64, error) {
				return jobs.QueueDepth(ctx, db, service.EmbeddingsQueueName)
			}
		}

		app.poller = worker.NewQueueDepthPoller(jobsRepo.CountPending, riverDepth, queueMetrics, 0)
	}

	router := api.NewRouter(api.RouterParams{
		APIKey:              cfg.APIKey,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		APIMetrics:          apiMetrics,
		MetricsHandler:      providers.MetricsHandler,
		Health:              handlers.NewHealthHandler(db),
		Search:              handlers.NewSearchHandler(searchService, probe),
		Embeddings:          embeddingsHandler,
	})

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	app.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return app, nil
}

// instrument wraps the router: RequestID -> otelhttp(Logging(router)) so access logs get trace_id/span_id.
func instrument(router http.Handler, providers *observability.Providers) http.Handler {
	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for probes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/ready" && r.URL.Path != "/metrics"
		}),
	}
	if providers.Meter != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(providers.Meter))
	}

	if providers.Tracer != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(providers.Tracer))
	}

	handler := otelhttp.NewHandler(middleware.Logging(router), "newsdesk-search", otelOpts...)

	return middleware.RequestID(handler)
}

// Run starts the HTTP server, River and the queue depth poller, then blocks until ctx is cancelled
// or a component fails. Either way it cancels the background context so River and the poller stop
// before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.poller != nil {
		go a.poller.Start(bgCtx)
	}

	if a.river != nil {
		go func() {
			if err := a.river.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case runErr <- fmt.Errorf("river: %w", err):
				default:
				}
			}
		}()
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancel()

		return err
	case <-ctx.Done():
		cancel()

		return nil
	}
}

// Shutdown stops the server and then River, which waits for in-flight drains. Call after Run returns.
// Observability is shut down last; its error is returned only when server and River shut down cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := a.telemetry.Shutdown(ctx)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.stopRiver(ctx)

		return fmt.Errorf("server shutdown: %w", err)
	}

	err = nil

	if a.river != nil {
		if err = a.river.Stop(ctx); err != nil {
			return fmt.Errorf("river stop: %w", err)
		}
	}

	return nil
}

func (a *App) stopRiver(ctx context.Context) {
	if a.river == nil {
		return
	}

	if err := a.river.Stop(ctx); err != nil {
		slog.Error("river stop during server shutdown", "error", err)
	}
}
