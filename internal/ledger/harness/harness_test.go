package harness_test

import (
	"context"
	"strings"
	"testing"

	"github.com/louisbranch/bankledger/internal/ledger/engine"
	"github.com/louisbranch/bankledger/internal/ledger/harness"
	"github.com/louisbranch/bankledger/internal/ledger/storage/sqlite"
	"github.com/louisbranch/bankledger/internal/ledger/verify"
	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) (*engine.Engine, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.Open(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return engine.New(store), store
}

func testConfig(mode harness.Mode) harness.Config {
	return harness.Config{
		Workers:        4,
		OpsPerWorker:   10,
		Accounts:       4,
		InitialBalance: decimal.RequireFromString("1000.00"),
		Mode:           mode,
		Seed:           42,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*harness.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *harness.Config) {}, wantErr: ""},
		{name: "zero workers", mutate: func(c *harness.Config) { c.Workers = 0 }, wantErr: "workers"},
		{name: "zero ops", mutate: func(c *harness.Config) { c.OpsPerWorker = 0 }, wantErr: "ops"},
		{name: "one account", mutate: func(c *harness.Config) { c.Accounts = 1 }, wantErr: "accounts"},
		{name: "negative balance", mutate: func(c *harness.Config) { c.InitialBalance = decimal.RequireFromString("-1") }, wantErr: "balance"},
		{name: "unknown mode", mutate: func(c *harness.Config) { c.Mode = "chaos" }, wantErr: "mode"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(harness.ModeMixed)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestExpectedTotal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(harness.ModeTransfer)
	if got := cfg.ExpectedTotal(); !got.Equal(decimal.RequireFromString("4000.00")) {
		t.Errorf("ExpectedTotal() = %s, want 4000.00", got)
	}
}

func TestSeedFundsAccountsAndReserves(t *testing.T) {
	eng, store := newTestEngine(t)
	cfg := testConfig(harness.ModeTransfer)

	accountIDs, err := harness.Seed(context.Background(), eng, cfg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(accountIDs) != cfg.Accounts {
		t.Fatalf("accounts seeded = %d, want %d", len(accountIDs), cfg.Accounts)
	}

	snapshot, err := store.ConsistencySnapshot(context.Background())
	if err != nil {
		t.Fatalf("consistency snapshot: %v", err)
	}
	if !snapshot.SumAccounts.Equal(cfg.ExpectedTotal()) {
		t.Errorf("sum accounts = %s, want %s", snapshot.SumAccounts, cfg.ExpectedTotal())
	}
	if !snapshot.ReserveTotal.Equal(cfg.ExpectedTotal()) {
		t.Errorf("reserves = %s, want %s", snapshot.ReserveTotal, cfg.ExpectedTotal())
	}
}

func TestRunTransferModeConservesMoney(t *testing.T) {
	eng, store := newTestEngine(t)
	cfg := testConfig(harness.ModeTransfer)

	accountIDs, err := harness.Seed(context.Background(), eng, cfg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := harness.Run(context.Background(), eng, cfg, accountIDs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Operations()+result.Skipped != cfg.Workers*cfg.OpsPerWorker {
		t.Errorf("operations+skipped = %d, want %d",
			result.Operations()+result.Skipped, cfg.Workers*cfg.OpsPerWorker)
	}
	if !result.NetCash.IsZero() {
		t.Errorf("net cash = %s, want 0 for transfer mode", result.NetCash)
	}

	report, err := verify.Check(context.Background(), store, cfg.ExpectedTotal())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Pass {
		t.Errorf("conservation check failed: %+v", report)
	}
}

func TestRunMixedModeConservesMoney(t *testing.T) {
	eng, store := newTestEngine(t)
	cfg := testConfig(harness.ModeMixed)

	accountIDs, err := harness.Seed(context.Background(), eng, cfg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := harness.Run(context.Background(), eng, cfg, accountIDs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	report, err := verify.Check(context.Background(), store, result.ExpectedTotal(cfg))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Pass {
		t.Errorf("conservation check failed: %+v (net cash %s)", report, result.NetCash)
	}
	if !report.SumAccounts.Equal(report.ReserveTotal) {
		t.Errorf("sum accounts %s != reserves %s", report.SumAccounts, report.ReserveTotal)
	}
}

func TestRunDepositWithdrawModeTracksNetCash(t *testing.T) {
	eng, store := newTestEngine(t)
	cfg := testConfig(harness.ModeDepositWithdraw)

	accountIDs, err := harness.Seed(context.Background(), eng, cfg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := harness.Run(context.Background(), eng, cfg, accountIDs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	snapshot, err := store.ConsistencySnapshot(context.Background())
	if err != nil {
		t.Fatalf("consistency snapshot: %v", err)
	}
	want := cfg.ExpectedTotal().Add(result.NetCash)
	if !snapshot.SumAccounts.Equal(want) {
		t.Errorf("sum accounts = %s, want %s", snapshot.SumAccounts, want)
	}
	if !snapshot.ReserveTotal.Equal(want) {
		t.Errorf("reserves = %s, want %s", snapshot.ReserveTotal, want)
	}
}

func TestRunIsDeterministicPerSeed(t *testing.T) {
	cfg := testConfig(harness.ModeTransfer)

	run := func(t *testing.T) harness.Result {
		eng, _ := newTestEngine(t)
		accountIDs, err := harness.Seed(context.Background(), eng, cfg)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		result, err := harness.Run(context.Background(), eng, cfg, accountIDs)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	first := run(t)
	second := run(t)
	// Scheduling varies between runs but the drawn operation sequence does
	// not, so per-worker skip tallies must match exactly.
	if first.Skipped != second.Skipped {
		t.Errorf("skipped differs across identical seeds: %d vs %d", first.Skipped, second.Skipped)
	}
}

func TestRunRejectsShortAccountList(t *testing.T) {
	eng, _ := newTestEngine(t)
	cfg := testConfig(harness.ModeTransfer)

	if _, err := harness.Run(context.Background(), eng, cfg, []int64{1}); err == nil {
		t.Error("Run() with one account id error = nil, want non-nil")
	}
}
