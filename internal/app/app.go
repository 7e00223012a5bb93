package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ListingConverter/internal/config"
	"ListingConverter/internal/domain"
	"ListingConverter/internal/infrastructure/httpapi"
	"ListingConverter/internal/infrastructure/listing"
	"ListingConverter/internal/infrastructure/marketplace"
	"ListingConverter/internal/infrastructure/policy"
	"ListingConverter/internal/infrastructure/pricing"
	"ListingConverter/internal/infrastructure/redisstore"
	"ListingConverter/internal/infrastructure/scheduler"
	"ListingConverter/internal/infrastructure/scraper"
	"ListingConverter/internal/infrastructure/storage"
	"ListingConverter/internal/infrastructure/telegram"
	"ListingConverter/internal/logging"
	"ListingConverter/internal/ports"
	"ListingConverter/internal/source"
	"ListingConverter/internal/stream"
	"ListingConverter/internal/usecase"
	"ListingConverter/pkg/logger"
)

const connectTimeout = 5 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	pipeline    *usecase.Pipeline
	manager     *stream.Manager
	coordinator *usecase.StreamCoordinator
	janitor     *usecase.Janitor
	server      *http.Server
	closers     []func() error
}

// New builds every adapter named by cfg. Optional collaborators (publishing,
// history, notifications, Redis) are wired only when configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: logging.Component(baseLogger, "app")}

	registry, err := buildSources(cfg.Scraper, baseLogger)
	if err != nil {
		return nil, err
	}

	checker, err := buildPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	a.logger.Info("policy loaded", "protected_brands", checker.BrandCount())

	engine := pricing.NewEngine(pricing.Schedule{
		DefaultRate:   cfg.Pricing.DefaultFeeRate,
		CategoryRates: cfg.Pricing.CategoryRates,
		PaymentRate:   cfg.Pricing.PaymentRate,
		PaymentFixed:  cfg.Pricing.PaymentFixed,
		Shipping:      cfg.Pricing.Shipping,
	}, logging.Component(baseLogger, "pricing"))

	var publisher ports.Publisher
	if cfg.Marketplace.Token != "" {
		publisher = marketplace.NewClient(cfg.Marketplace.Endpoint, cfg.Marketplace.Token, cfg.Marketplace.SiteURL,
			&http.Client{Timeout: cfg.Marketplace.Timeout})
	} else {
		a.logger.Info("marketplace token not set, conversions stay drafts")
	}

	var repository ports.ConversionRepository
	if cfg.Database.DSN != "" {
		repo, err := a.openHistory(ctx, cfg.Database.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		repository = repo
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	store, err := a.openStreamStore(ctx, baseLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	managerOpts := []stream.Option{
		stream.WithLogger(logging.Component(baseLogger, "stream")),
		stream.WithHeartbeat(cfg.Stream.HeartbeatInterval),
	}
	if cfg.Stream.RetryHint > 0 {
		managerOpts = append(managerOpts, stream.WithRetryHint(cfg.Stream.RetryHint))
	}
	a.manager = stream.NewManager(store, managerOpts...)

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sources:      registry,
		Policy:       checker,
		Transformer:  listing.NewTransformer(domain.MarketplaceEbay),
		Pricer:       engine,
		Publisher:    publisher,
		Repository:   repository,
		TargetMargin: cfg.Pipeline.TargetMargin,
		Logger:       logging.Component(baseLogger, "pipeline"),
	})

	a.coordinator = usecase.NewStreamCoordinator(usecase.CoordinatorDeps{
		Runner:       a.pipeline,
		Manager:      a.manager,
		Notifier:     notifier,
		DrainTimeout: cfg.Stream.DrainTimeout,
		Logger:       logging.Component(baseLogger, "coordinator"),
	})

	a.janitor = usecase.NewJanitor(
		scheduler.NewTickerScheduler(cfg.Stream.SweepInterval),
		a.manager,
		cfg.Stream.Retention,
		logging.Component(baseLogger, "janitor"),
	)

	api := httpapi.NewServer(httpapi.Deps{
		Converter: a.pipeline,
		Streams:   a.coordinator,
		Jobs:      a.manager,
		History:   repository,
		MaxBatch:  cfg.HTTP.MaxBatch,
		Logger:    logging.Component(baseLogger, "http"),
	})
	a.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ErrorLog:          logger.New("http", baseLogger),
	}

	return a, nil
}

func buildSources(cfg config.ScraperConfig, baseLogger *slog.Logger) (*source.Registry, error) {
	registry := source.NewRegistry()
	client := &http.Client{Timeout: cfg.Timeout}
	for _, tag := range []domain.Marketplace{domain.MarketplaceAmazon, domain.MarketplaceWalmart} {
		s, err := scraper.New(tag,
			scraper.WithHTTPClient(client),
			scraper.WithUserAgent(cfg.UserAgent),
			scraper.WithRateLimit(cfg.RequestsPerSecond),
		)
		if err != nil {
			return nil, fmt.Errorf("build %s scraper: %w", tag, err)
		}
		registry.Register(tag, s)
	}
	logging.Component(baseLogger, "source").Debug("scrapers registered", "sources", registry.Supported())
	return registry, nil
}

func buildPolicy(cfg config.PolicyConfig) (*policy.BrandChecker, error) {
	brands := append([]string(nil), cfg.ProtectedBrands...)
	if cfg.BrandsFile != "" {
		fromFile, err := policy.LoadBrands(cfg.BrandsFile)
		if err != nil {
			return nil, err
		}
		brands = append(brands, fromFile...)
	}
	return policy.NewBrandChecker(policy.Rules{
		ProtectedBrands:    brands,
		RestrictedKeywords: cfg.RestrictedKeywords,
		FuzzyThreshold:     cfg.FuzzyThreshold,
	}), nil
}

func (a *Application) openHistory(ctx context.Context, dsn string) (*storage.PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(pingCtx); err != nil {
		return nil, err
	}
	a.logger.Info("conversion history enabled")
	return repo, nil
}

func (a *Application) openStreamStore(ctx context.Context, baseLogger *slog.Logger) (stream.Store, error) {
	if a.cfg.Stream.Backend != config.BackendRedis {
		return stream.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)

	store := redisstore.New(client,
		redisstore.WithLogger(logging.Component(baseLogger, "redisstore")),
		redisstore.WithTTL(a.cfg.Redis.JobTTL),
	)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.logger.Info("stream jobs shared through redis", "addr", a.cfg.Redis.Addr)
	return store, nil
}

// Pipeline exposes the conversion pipeline for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Coordinator exposes the streamed batch runner for one-shot commands.
func (a *Application) Coordinator() *usecase.StreamCoordinator {
	return a.coordinator
}

// Serve runs the HTTP API and the job janitor until ctx is done, then shuts
// both down and waits for abandoned batches.
func (a *Application) Serve(ctx context.Context) error {
	// Request contexts derive from base so open streams end when shutdown starts.
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	a.server.BaseContext = func(net.Listener) context.Context { return base }
	a.server.RegisterOnShutdown(cancelBase)

	g, gctx := errgroup.WithContext(ctx)

	if err := a.janitor.Start(gctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.coordinator.Wait(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain batches: %w", err))
		}
		if err := a.janitor.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop janitor: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Close releases database and Redis connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}
