package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-checkout/internal/domain/sale"
	"github.com/xenking/pos-checkout/internal/receipt"
	"github.com/xenking/pos-checkout/internal/storage/memory"
	"github.com/xenking/pos-checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 5_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
)

type stats struct {
	read       int
	appended   int
	duplicates int
}

func main() {
	var (
		journalDir  string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&journalDir, "journal-dir", "journal", "directory containing sales-*.jsonl.gz journals")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "read and validate journals without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, journalDir, databaseURL, dryRun); err != nil {
		slog.Error("journal replay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("journal replay completed successfully")
}

func run(ctx context.Context, journalDir, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(journalDir, receipt.JournalPattern))
	if err != nil {
		return errors.Wrap(err, "list journals")
	}
	if len(files) == 0 {
		slog.Info("no journals found", slog.String("dir", journalDir))
		return nil
	}
	sort.Strings(files)

	var sales sale.Repository = memory.NewSaleLedger()
	if !dryRun {
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		sales = postgres.NewSaleRepository(pool)
	}

	st, err := replay(ctx, files, sales)
	slog.Info("replay summary",
		slog.Int("files", len(files)),
		slog.Int("read", st.read),
		slog.Int("appended", st.appended),
		slog.Int("duplicates", st.duplicates),
	)
	return err
}

// replay decodes journals concurrently and appends their sales through a
// single writer. A reference that the bloom filter has never seen is new to
// this run; anything else is checked against the ledger before appending.
func replay(ctx context.Context, files []string, sales sale.Repository) (stats, error) {
	var st stats
	receipts := make(chan receipt.Receipt, 256)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range files {
		readers.Go(func() error {
			var n int
			err := receipt.ReadJournal(rctx, path, func(r receipt.Receipt) error {
				if r.Sale == nil {
					return errors.New("receipt without sale")
				}
				if err := r.Sale.Validate(); err != nil {
					return errors.Wrapf(err, "sale %s", r.Sale.Reference)
				}
				n++
				select {
				case receipts <- r:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", filepath.Base(path))
			}
			slog.Info("journal read", slog.String("file", filepath.Base(path)), slog.Int("receipts", n))
			return nil
		})
	}
	g.Go(func() error {
		defer close(receipts)
		return readers.Wait()
	})

	g.Go(func() error {
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		for r := range receipts {
			st.read++
			if st.read%progressEvery == 0 {
				slog.Info("replay progress", slog.Int("read", st.read))
			}

			ref := r.Sale.Reference
			if seen.TestOrAddString(ref) {
				if _, err := sales.Get(gctx, ref); err == nil {
					st.duplicates++
					continue
				} else if !errors.Is(err, sale.ErrNotFound) {
					return errors.Wrapf(err, "check %s", ref)
				}
			}

			err := sales.Append(gctx, r.Sale)
			switch {
			case err == nil:
				st.appended++
			case errors.Is(err, sale.ErrDuplicateReference):
				st.duplicates++
			default:
				return errors.Wrapf(err, "append %s", ref)
			}
		}
		return nil
	})

	return st, g.Wait()
}
