// Package stress parses stress command flags and launches the ACID stress
// run: seed a fresh ledger, hammer it with concurrent workers, then check
// that money was conserved.
package stress

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/bankledger/internal/ledger/engine"
	"github.com/louisbranch/bankledger/internal/ledger/harness"
	"github.com/louisbranch/bankledger/internal/ledger/storage/sqlite"
	"github.com/louisbranch/bankledger/internal/ledger/verify"
	entrypoint "github.com/louisbranch/bankledger/internal/platform/cmd"
	"github.com/louisbranch/bankledger/internal/random"
	"github.com/shopspring/decimal"
)

// Config holds stress command configuration.
type Config struct {
	DBPath         string `env:"BANKLEDGER_STRESS_DB_PATH" envDefault:"data/stress.db"`
	Workers        int    `env:"BANKLEDGER_STRESS_WORKERS" envDefault:"20"`
	OpsPerWorker   int    `env:"BANKLEDGER_STRESS_OPS" envDefault:"50"`
	Accounts       int    `env:"BANKLEDGER_STRESS_ACCOUNTS" envDefault:"10"`
	InitialBalance string `env:"BANKLEDGER_STRESS_INITIAL_BALANCE" envDefault:"1000.00"`
	Mode           string `env:"BANKLEDGER_STRESS_MODE" envDefault:"mixed"`
	Seed           int64  `env:"BANKLEDGER_STRESS_SEED" envDefault:"0"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Ledger database path (recreated per run)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent workers")
	fs.IntVar(&cfg.OpsPerWorker, "ops", cfg.OpsPerWorker, "Operations per worker")
	fs.IntVar(&cfg.Accounts, "accounts", cfg.Accounts, "Number of seeded accounts")
	fs.StringVar(&cfg.InitialBalance, "balance", cfg.InitialBalance, "Initial balance per seeded account")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Operation mix: transfer, deposit-withdraw, or mixed")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (0 picks a fresh one)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the stress run and consistency check.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStress, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	initialBalance, err := decimal.NewFromString(cfg.InitialBalance)
	if err != nil {
		return fmt.Errorf("parse initial balance %q: %w", cfg.InitialBalance, err)
	}

	harnessCfg := harness.Config{
		Workers:        cfg.Workers,
		OpsPerWorker:   cfg.OpsPerWorker,
		Accounts:       cfg.Accounts,
		InitialBalance: initialBalance,
		Mode:           harness.Mode(cfg.Mode),
		Seed:           cfg.Seed,
	}
	if harnessCfg.Seed == 0 {
		seed, err := random.NewSeed()
		if err != nil {
			return err
		}
		harnessCfg.Seed = seed
	}
	if err := harnessCfg.Validate(); err != nil {
		return fmt.Errorf("stress config: %w", err)
	}

	store, err := openFreshStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close ledger store: %v", closeErr)
		}
	}()

	eng := engine.New(store)

	log.Printf("seeding %d accounts with %s each (mode=%s workers=%d ops=%d seed=%d)",
		harnessCfg.Accounts, initialBalance, harnessCfg.Mode,
		harnessCfg.Workers, harnessCfg.OpsPerWorker, harnessCfg.Seed)

	accountIDs, err := harness.Seed(ctx, eng, harnessCfg)
	if err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	result, err := harness.Run(ctx, eng, harnessCfg, accountIDs)
	if err != nil {
		return fmt.Errorf("stress run: %w", err)
	}

	log.Printf("completed %d operations in %s (%.1f committed ops/sec)",
		result.Operations(), result.Elapsed.Round(time.Millisecond), result.Throughput())
	log.Printf("succeeded=%d insufficient_funds=%d not_found=%d transient=%d skipped=%d net_cash=%s",
		result.Succeeded, result.InsufficientFunds, result.NotFound, result.Transient,
		result.Skipped, result.NetCash)

	report, err := verify.Check(ctx, store, result.ExpectedTotal(harnessCfg))
	if err != nil {
		return fmt.Errorf("consistency check: %w", err)
	}
	log.Printf("consistency: accounts=%s reserves=%s expected=%s",
		report.SumAccounts, report.ReserveTotal, report.ExpectedTotal)
	if !report.Pass {
		return fmt.Errorf("consistency check FAILED: money was created or lost")
	}
	log.Printf("consistency check PASSED: money conserved")
	return nil
}

// openFreshStore recreates the database file so every run starts from a
// clean ledger and the conservation target is exactly the seeded total.
func openFreshStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger storage dir: %w", err)
		}
	}
	for _, stale := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale ledger file %s: %w", stale, err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return store, nil
}
