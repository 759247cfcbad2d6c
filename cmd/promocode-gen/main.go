// Command promocode-gen bulk-generates promo codes or imports code lists
// from gzip'd files, de-duplicating with a bloom filter before hitting the
// database.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

func main() {
	var (
		databaseURL string
		count       int
		percentage  int
		uses        int
		description string
		exportPath  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&count, "count", 0, "number of codes to generate")
	flag.IntVar(&percentage, "percentage", 10, "discount percentage for generated/imported codes")
	flag.IntVar(&uses, "uses", 1, "initial redemption count per code")
	flag.StringVar(&description, "description", "Promo code", "description for generated/imported codes")
	flag.StringVar(&exportPath, "export", "", "optional gzip file to write generated codes to")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	importFiles := flag.Args()
	if count <= 0 && len(importFiles) == 0 {
		slog.Error("nothing to do: set --count or pass gzip code files to import")
		os.Exit(1)
	}
	if percentage < 0 || percentage > 100 {
		slog.Error("percentage must be between 0 and 100")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, importFiles, count, percentage, uses, description, exportPath); err != nil {
		slog.Error("promo code generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo code generation completed successfully")
}

func run(ctx context.Context, databaseURL string, importFiles []string, count, percentage, uses int, description, exportPath string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	repo := repository.NewPromoCodeRepository(pool)

	capacity := uint(count + 1)
	if len(importFiles) > 0 {
		capacity += 10_000_000
	}
	seen := bloom.NewWithEstimates(capacity, bloomFPR)

	codes, err := collectCodes(ctx, importFiles, count, seen)
	if err != nil {
		return err
	}
	slog.Info("codes collected", slog.Int("count", len(codes)))

	if err := writeCodes(ctx, repo, codes, percentage, uses, description); err != nil {
		return errors.Wrap(err, "write codes to database")
	}

	if exportPath != "" {
		if err := exportCodes(exportPath, codes); err != nil {
			return errors.Wrap(err, "export codes")
		}
		slog.Info("codes exported", slog.String("path", exportPath))
	}
	return nil
}

// collectCodes reads import files concurrently and generates fresh codes,
// using the bloom filter to suppress duplicates cheaply. A bloom positive
// is only a probable duplicate; the database's unique constraint is the
// final arbiter.
func collectCodes(ctx context.Context, files []string, count int, seen *bloom.BloomFilter) ([]string, error) {
	var (
		mu    sync.Mutex
		codes []string
	)
	add := func(code string) {
		mu.Lock()
		defer mu.Unlock()
		if seen.TestAndAddString(code) {
			return
		}
		codes = append(codes, code)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(readCodeFile(ctx, path, add))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for generated := 0; generated < count; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		code, err := promocode.GenerateCode()
		if err != nil {
			return nil, errors.Wrap(err, "generate code")
		}
		mu.Lock()
		fresh := !seen.TestAndAddString(code)
		if fresh {
			codes = append(codes, code)
		}
		mu.Unlock()
		if fresh {
			generated++
		}
	}
	return codes, nil
}

func readCodeFile(ctx context.Context, path string, add func(string)) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip reader for %s", path)
		}
		defer gz.Close()

		var n int
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			if code := scanner.Text(); code != "" {
				add(code)
			}
			n++
			if n%progressEvery == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				slog.Info("reading codes", slog.String("file", path), slog.Int("lines", n))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}
		return nil
	}
}

func writeCodes(ctx context.Context, repo *repository.PromoCodeRepository, codes []string, percentage, uses int, description string) error {
	now := time.Now().UTC()
	inserted := 0
	for _, code := range codes {
		err := repo.Create(ctx, &promocode.PromoCode{
			ID:          uuid.New().String(),
			Code:        code,
			Description: description,
			Percentage:  percentage,
			Remaining:   uses,
			Valid:       true,
			CreatedAt:   now,
		})
		if errors.Is(err, promocode.ErrDuplicateCode) {
			continue // already in the database
		}
		if err != nil {
			return err
		}
		inserted++
		if inserted%progressEvery == 0 {
			slog.Info("inserting codes", slog.Int("inserted", inserted))
		}
	}
	slog.Info("codes inserted", slog.Int("count", inserted))
	return nil
}

func exportCodes(path string, codes []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, code := range codes {
		if _, err := w.WriteString(code + "\n"); err != nil {
			return errors.Wrap(err, "write code")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}
	return f.Close()
}
