package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-checkout/internal/app"
	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/handler"
	"github.com/xenking/pos-checkout/internal/storage/postgres"
	"github.com/xenking/pos-checkout/internal/storage/redis"
)

type options struct {
	databaseURL string
	catalogFile string
	resetStock  bool

	redisAddr     string
	redisPassword string
	redisDB       int

	tokenSecret string
	tokenIssuer string
	tokenActor  string
	tokenRole   string
	tokenTTL    time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON file")
	flag.BoolVar(&opts.resetStock, "reset-stock", false, "overwrite stock on hand of existing products")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "copy stock on hand into this Redis stock ledger")
	flag.StringVar(&opts.redisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&opts.redisDB, "redis-db", 0, "Redis database")
	flag.StringVar(&opts.tokenSecret, "token-secret", "", "print a bearer token signed with this secret (or POS_AUTH_SECRET env)")
	flag.StringVar(&opts.tokenIssuer, "token-issuer", "", "issuer claim of the printed token")
	flag.StringVar(&opts.tokenActor, "token-actor", "admin", "subject of the printed token")
	flag.StringVar(&opts.tokenRole, "token-role", string(auth.RoleAdmin), "role of the printed token (admin or cashier)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 12*time.Hour, "lifetime of the printed token")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.tokenSecret == "" {
		opts.tokenSecret = os.Getenv("POS_AUTH_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	products, err := app.LoadCatalog(opts.catalogFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog := postgres.NewProductRepository(pool)
	ledger := postgres.NewStockLedger(pool)

	slog.Info("upserting products", slog.Int("count", len(products)))
	for _, p := range products {
		if err := catalog.Upsert(ctx, p); err != nil {
			return err
		}
		if opts.resetStock {
			if err := ledger.SetQuantity(ctx, p.ID, p.Quantity); err != nil {
				return errors.Wrapf(err, "reset stock of %s", p.ID)
			}
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	if opts.redisAddr != "" {
		if err := syncRedis(ctx, opts, ledger, products); err != nil {
			return errors.Wrap(err, "sync redis stock")
		}
	}

	if opts.tokenSecret != "" {
		security := handler.NewSecurityHandler([]byte(opts.tokenSecret), opts.tokenIssuer)
		token, err := security.Sign(auth.Actor{ID: opts.tokenActor, Role: auth.Role(opts.tokenRole)}, opts.tokenTTL)
		if err != nil {
			return err
		}
		slog.Info("issued token", slog.String("actor", opts.tokenActor), slog.String("role", opts.tokenRole))
		fmt.Println(token)
	}

	return nil
}

// syncRedis copies the authoritative PostgreSQL stock into Redis.
func syncRedis(ctx context.Context, opts options, ledger *postgres.StockLedger, products []product.Product) error {
	rdb := redis.NewStockLedger(opts.redisAddr, opts.redisPassword, opts.redisDB)
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx); err != nil {
		return err
	}
	for _, p := range products {
		qty, err := ledger.Quantity(ctx, p.ID)
		if err != nil {
			return errors.Wrapf(err, "read stock of %s", p.ID)
		}
		if err := rdb.Set(ctx, p.ID, qty); err != nil {
			return err
		}
	}
	slog.Info("synced redis stock", slog.Int("count", len(products)))
	return nil
}
