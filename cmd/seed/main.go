package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/observability"
	"github.com/spec-kit/employee-directory/internal/persistence"
	"github.com/spec-kit/employee-directory/internal/repository"
	"github.com/spec-kit/employee-directory/internal/seed"
	"github.com/spec-kit/employee-directory/internal/service"
)

type options struct {
	mode string
	seed uint64
	tree seed.TreeOptions
	bulk seed.BulkOptions
}

func parseOptions(args []string) (*options, error) {
	opts := &options{tree: seed.DefaultTreeOptions(), bulk: seed.DefaultBulkOptions()}

	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flags.StringVar(&opts.mode, "mode", "tree", "seeding mode: tree or bulk")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed for reproducible data")
	flags.IntVar(&opts.tree.TopManagers, "top-managers", opts.tree.TopManagers, "number of top-level managers (tree mode)")
	flags.IntVar(&opts.tree.MinFanOut, "min-reports", opts.tree.MinFanOut, "minimum direct reports per manager (tree mode)")
	flags.IntVar(&opts.tree.MaxFanOut, "max-reports", opts.tree.MaxFanOut, "maximum direct reports per manager (tree mode)")
	flags.IntVar(&opts.tree.MaxDepth, "depth", opts.tree.MaxDepth, "levels below the top managers (tree mode)")
	flags.IntVar(&opts.tree.Limit, "limit", 100000, "cap on employees created, 0 for none (tree mode)")
	flags.IntVar(&opts.bulk.Count, "count", opts.bulk.Count, "employees to create (bulk mode)")
	flags.IntVar(&opts.bulk.ProgressEvery, "progress-every", opts.bulk.ProgressEvery, "log progress every N employees (bulk mode)")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if opts.mode != "tree" && opts.mode != "bulk" {
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

// requireDatabase refuses to seed without Postgres: rows written to the
// in-memory store vanish when the process exits.
func requireDatabase(pg *persistence.Postgres) error {
	if !pg.Configured() {
		return errors.New("POSTGRES_DSN is required for seeding")
	}
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid arguments: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := requireDatabase(pg); err != nil {
		logger.Fatal("cannot seed", zap.Error(err))
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store := repository.NewEmployeeRepository(pg.PoolHandle())
	hierarchyService := service.NewHierarchyService(*cfg, service.HierarchyDependencies{
		EmployeeRepo: store,
		Logger:       logger,
	})
	seeder := seed.New(hierarchyService, opts.seed, logger)

	logger.Info("starting the seeding process", zap.String("mode", opts.mode), zap.Uint64("seed", opts.seed))
	var created int
	switch opts.mode {
	case "bulk":
		created, err = seeder.Bulk(ctx, opts.bulk)
	default:
		created, err = seeder.Tree(ctx, opts.tree)
	}
	if err != nil {
		logger.Fatal("seeding failed", zap.Int("created", created), zap.Error(err))
	}

	total, err := store.Count(ctx)
	if err != nil {
		logger.Fatal("count employees", zap.Error(err))
	}
	logger.Info("seeding process completed", zap.Int("created", created), zap.Int("total", total))
}
