// Package harness drives many concurrent workers against the transaction
// engine and aggregates their outcomes. It produces the contention pattern
// the engine's locking protocol exists for: random transfers, deposits and
// withdrawals over a small shared account population.
//
// Business rejections (insufficient funds, unknown account) and transient
// storage faults are ordinary expected outcomes under contention and are
// tallied, not escalated. Only an error outside the engine's taxonomy
// aborts a run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/louisbranch/bankledger/internal/ledger/engine"
	"github.com/shopspring/decimal"
)

// Mode selects the operation mix workers draw from.
type Mode string

const (
	// ModeTransfer issues random transfers between account pairs.
	ModeTransfer Mode = "transfer"
	// ModeDepositWithdraw issues random deposits and withdrawals.
	ModeDepositWithdraw Mode = "deposit-withdraw"
	// ModeMixed alternates randomly between the two mixes.
	ModeMixed Mode = "mixed"
)

// Amount ranges per operation kind, in cents.
const (
	transferMinCents = 100
	transferMaxCents = 5000
	cashMinCents     = 1000
	cashMaxCents     = 10000
)

// Config controls one harness run.
type Config struct {
	Workers        int
	OpsPerWorker   int
	Accounts       int
	InitialBalance decimal.Decimal
	Mode           Mode
	Seed           int64
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.OpsPerWorker <= 0 {
		return fmt.Errorf("ops per worker must be positive")
	}
	if c.Accounts < 2 {
		return fmt.Errorf("at least two accounts are required")
	}
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("initial balance must be non-negative")
	}
	switch c.Mode {
	case ModeTransfer, ModeDepositWithdraw, ModeMixed:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
}

// ExpectedTotal is the amount of money seeded into the ledger: the
// conservation target every run must end at.
func (c Config) ExpectedTotal() decimal.Decimal {
	return c.InitialBalance.Mul(decimal.NewFromInt(int64(c.Accounts)))
}

// WorkerResult tallies one worker's outcomes. NetCash is the sum of
// committed deposits minus committed withdrawals; transfers contribute
// nothing since they redistribute existing funds.
type WorkerResult struct {
	WorkerID          int
	Succeeded         int
	InsufficientFunds int
	NotFound          int
	Transient         int
	Skipped           int
	NetCash           decimal.Decimal
}

// Result aggregates all worker tallies for one run.
type Result struct {
	Succeeded         int
	InsufficientFunds int
	NotFound          int
	Transient         int
	Skipped           int
	NetCash           decimal.Decimal
	Elapsed           time.Duration
	Workers           []WorkerResult
}

// ExpectedTotal is the conservation target after the run: the seeded total
// adjusted by the run's committed net cash flow.
func (r Result) ExpectedTotal(cfg Config) decimal.Decimal {
	return cfg.ExpectedTotal().Add(r.NetCash)
}

// Operations is the number of operations actually issued (skips excluded).
func (r Result) Operations() int {
	return r.Succeeded + r.InsufficientFunds + r.NotFound + r.Transient
}

// Throughput is committed operations per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Succeeded) / r.Elapsed.Seconds()
}

// Seed opens cfg.Accounts fresh accounts through the engine, each funded
// with the initial balance, and returns their IDs. Funding through
// OpenAccount keeps the reserve pool in lockstep, so the run's expected
// total is exactly ExpectedTotal.
func Seed(ctx context.Context, eng *engine.Engine, cfg Config) ([]int64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	accountIDs := make([]int64, 0, cfg.Accounts)
	for i := 0; i < cfg.Accounts; i++ {
		accountID, err := eng.OpenAccount(ctx,
			fmt.Sprintf("Stress User %d", i),
			fmt.Sprintf("STRESS-%04d", i),
			cfg.InitialBalance,
		)
		if err != nil {
			return nil, fmt.Errorf("seed account %d: %w", i, err)
		}
		accountIDs = append(accountIDs, accountID)
	}
	return accountIDs, nil
}

// Run starts cfg.Workers workers issuing cfg.OpsPerWorker random operations
// each over accountIDs, waits for all of them, and aggregates their
// tallies. Each worker owns an independent deterministic random stream
// derived from cfg.Seed.
func Run(ctx context.Context, eng *engine.Engine, cfg Config, accountIDs []int64) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if len(accountIDs) < 2 {
		return Result{}, fmt.Errorf("at least two account ids are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan WorkerResult, cfg.Workers)
	failures := make(chan error, cfg.Workers)

	started := time.Now()
	for workerID := 0; workerID < cfg.Workers; workerID++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			tally, err := runWorker(ctx, eng, cfg, accountIDs, workerID)
			if err != nil {
				failures <- fmt.Errorf("worker %d: %w", workerID, err)
				cancel()
				return
			}
			results <- tally
		}(workerID)
	}
	wg.Wait()
	close(results)
	close(failures)

	if err := <-failures; err != nil {
		return Result{}, err
	}

	aggregate := Result{Elapsed: time.Since(started)}
	for tally := range results {
		aggregate.Succeeded += tally.Succeeded
		aggregate.InsufficientFunds += tally.InsufficientFunds
		aggregate.NotFound += tally.NotFound
		aggregate.Transient += tally.Transient
		aggregate.Skipped += tally.Skipped
		aggregate.NetCash = aggregate.NetCash.Add(tally.NetCash)
		aggregate.Workers = append(aggregate.Workers, tally)
	}
	return aggregate, nil
}

func runWorker(ctx context.Context, eng *engine.Engine, cfg Config, accountIDs []int64, workerID int) (WorkerResult, error) {
	tally := WorkerResult{WorkerID: workerID}
	rng := rand.New(rand.NewSource(cfg.Seed + int64(workerID)))

	for i := 0; i < cfg.OpsPerWorker; i++ {
		if err := ctx.Err(); err != nil {
			return tally, err
		}

		var err error
		kind := pickKind(rng, cfg.Mode)
		var amount decimal.Decimal
		switch kind {
		case opTransfer:
			from := accountIDs[rng.Intn(len(accountIDs))]
			to := accountIDs[rng.Intn(len(accountIDs))]
			if from == to {
				tally.Skipped++
				continue
			}
			amount = randomAmount(rng, transferMinCents, transferMaxCents)
			err = eng.Transfer(ctx, from, to, amount)
		case opDeposit:
			account := accountIDs[rng.Intn(len(accountIDs))]
			amount = randomAmount(rng, cashMinCents, cashMaxCents)
			err = eng.Deposit(ctx, account, amount)
		case opWithdraw:
			account := accountIDs[rng.Intn(len(accountIDs))]
			amount = randomAmount(rng, cashMinCents, cashMaxCents)
			err = eng.Withdraw(ctx, account, amount)
		}

		switch {
		case err == nil:
			tally.Succeeded++
			if kind == opDeposit {
				tally.NetCash = tally.NetCash.Add(amount)
			} else if kind == opWithdraw {
				tally.NetCash = tally.NetCash.Sub(amount)
			}
		case errors.Is(err, engine.ErrInsufficientFunds):
			tally.InsufficientFunds++
		case errors.Is(err, engine.ErrNotFound):
			tally.NotFound++
		case engine.IsTransient(err):
			tally.Transient++
		default:
			return tally, err
		}
	}
	return tally, nil
}

type opKind int

const (
	opTransfer opKind = iota
	opDeposit
	opWithdraw
)

func pickKind(rng *rand.Rand, mode Mode) opKind {
	switch mode {
	case ModeTransfer:
		return opTransfer
	case ModeDepositWithdraw:
		if rng.Intn(2) == 0 {
			return opDeposit
		}
		return opWithdraw
	default:
		switch rng.Intn(3) {
		case 0:
			return opTransfer
		case 1:
			return opDeposit
		default:
			return opWithdraw
		}
	}
}

func randomAmount(rng *rand.Rand, minCents, maxCents int) decimal.Decimal {
	return decimal.New(int64(minCents+rng.Intn(maxCents-minCents+1)), -2)
}
