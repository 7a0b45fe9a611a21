// Package app wires configuration, storage, the checkout engine and the HTTP
// server together.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/checkout"
	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/domain/report"
	"github.com/xenking/pos-checkout/internal/domain/sale"
	"github.com/xenking/pos-checkout/internal/domain/stock"
	"github.com/xenking/pos-checkout/internal/handler"
	"github.com/xenking/pos-checkout/internal/receipt"
	"github.com/xenking/pos-checkout/internal/storage/memory"
	"github.com/xenking/pos-checkout/internal/storage/postgres"
	"github.com/xenking/pos-checkout/internal/storage/redis"
	"github.com/xenking/pos-checkout/pkg/health"
	"github.com/xenking/pos-checkout/pkg/httpmiddleware"
)

// Storage is the set of backends the engine runs on.
type Storage struct {
	Catalog product.Repository
	Stock   stock.Store
	Sales   sale.Repository

	closers []func()
}

// Close releases every backend connection.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStorage selects the backends from cfg. Without a database URL
// everything lives in memory, seeded from cfg.CatalogSeed. A Redis address
// moves the stock ledger to Redis.
func OpenStorage(ctx context.Context, cfg *Config, hc *health.Health) (_ *Storage, rerr error) {
	lg := zctx.From(ctx)
	s := &Storage{}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	if cfg.DatabaseURL == "" {
		var seed []product.Product
		if cfg.CatalogSeed != "" {
			products, err := LoadCatalog(cfg.CatalogSeed)
			if err != nil {
				return nil, errors.Wrap(err, "seed catalog")
			}
			seed = products
		}
		store := memory.NewStore(seed...)
		s.Catalog, s.Stock, s.Sales = store, store, memory.NewSaleLedger()
		lg.Warn("Using in-memory storage; sales are lost on restart", zap.Int("products", len(seed)))
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		hc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

		s.Catalog = postgres.NewProductRepository(pool)
		s.Stock = postgres.NewStockLedger(pool)
		s.Sales = postgres.NewSaleRepository(pool)
	}

	if cfg.Redis.Addr != "" {
		ledger := redis.NewStockLedger(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		s.closers = append(s.closers, func() {
			if err := ledger.Close(); err != nil {
				lg.Warn("Close redis", zap.Error(err))
			}
		})
		if err := ledger.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		hc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(ledger))
		s.Stock = ledger
		lg.Info("Using redis stock ledger", zap.String("addr", cfg.Redis.Addr))
	}
	return s, nil
}

// openSink builds the receipt sink: the gzip journal behind a circuit
// breaker, or Discard when no journal directory is configured.
func openSink(ctx context.Context, cfg *Config, loc *time.Location) (receipt.Sink, func(), error) {
	if cfg.Journal.Dir == "" {
		return receipt.Discard, func() {}, nil
	}
	journal, err := receipt.NewJournal(cfg.Journal.Dir, receipt.WithJournalLocation(loc))
	if err != nil {
		return nil, nil, errors.Wrap(err, "open journal")
	}
	lg := zctx.From(ctx)
	closeFn := func() {
		if err := journal.Close(); err != nil {
			lg.Error("Close journal", zap.Error(err))
		}
	}
	sink := receipt.NewBreaker(ctx, journal, receipt.BreakerConfig{
		Name:     "journal",
		Failures: cfg.Journal.Failures,
		Cooldown: cfg.Journal.Cooldown,
	})
	return sink, closeFn, nil
}

// APIMiddleware guards the API routes. CORS answers preflights before the
// bearer check and the rate limiter runs ahead of authentication.
func APIMiddleware(ctx context.Context, cfg *Config, api http.Handler) http.Handler {
	return httpmiddleware.Wrap(api,
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	storage, err := OpenStorage(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer storage.Close()

	sink, closeSink, err := openSink(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer closeSink()

	engine, err := checkout.NewEngine(storage.Catalog, storage.Stock, storage.Sales,
		checkout.WithReceiptSink(sink),
		checkout.WithPolicy(checkout.Policy{RestockOnDelete: cfg.Sales.RestockOnDelete}),
		checkout.WithMeterProvider(m.MeterProvider()),
		checkout.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout engine")
	}
	reports := report.NewService(storage.Sales,
		report.WithLocation(loc),
		report.WithOptions(report.Options{NetOfDiscount: cfg.Report.NetOfDiscount}),
	)

	security := handler.NewSecurityHandler([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	api := handler.NewHandler(engine, reports).Routes(security)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", APIMiddleware(ctx, cfg, api))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Routes(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("pos-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
		// Requests keep the logger but survive shutdown so commits in flight finish.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
