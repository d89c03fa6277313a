// Package verify parses verify command flags and runs the ledger
// consistency check against an existing database.
package verify

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/louisbranch/bankledger/internal/ledger/storage/sqlite"
	ledgerverify "github.com/louisbranch/bankledger/internal/ledger/verify"
	entrypoint "github.com/louisbranch/bankledger/internal/platform/cmd"
	"github.com/shopspring/decimal"
)

// Config holds verify command configuration.
type Config struct {
	DBPath        string `env:"BANKLEDGER_VERIFY_DB_PATH" envDefault:"data/stress.db"`
	ExpectedTotal string `env:"BANKLEDGER_VERIFY_EXPECTED_TOTAL" envDefault:""`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Ledger database path")
	fs.StringVar(&cfg.ExpectedTotal, "expected", cfg.ExpectedTotal, "Expected total across all accounts (empty checks accounts against reserves only)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the consistency check.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVerify, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close ledger store: %v", closeErr)
		}
	}()

	var report ledgerverify.Report
	if cfg.ExpectedTotal == "" {
		report, err = ledgerverify.CheckReserves(ctx, store)
	} else {
		var expected decimal.Decimal
		expected, err = decimal.NewFromString(cfg.ExpectedTotal)
		if err != nil {
			return fmt.Errorf("parse expected total %q: %w", cfg.ExpectedTotal, err)
		}
		report, err = ledgerverify.Check(ctx, store, expected)
	}
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
