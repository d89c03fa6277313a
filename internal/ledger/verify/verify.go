// Package verify implements the consistency check over a ledger store: the
// sum of account balances and the reserve pool must both match the expected
// total within a fixed epsilon.
//
// The check is read-only and takes a single store snapshot. It is safe to
// run concurrently with the engine, but a run that overlaps in-flight
// operations may observe a transiently inconsistent state; callers are
// expected to drain workers first.
package verify

import (
	"context"
	"fmt"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/shopspring/decimal"
)

// Epsilon absorbs decimal rounding in stores with approximate decimal
// columns. The SQLite store keeps integer cents and never drifts, but the
// contract tolerates one cent either way so other backends verify too.
var Epsilon = decimal.New(1, -2)

// Report is the structured result of one consistency check.
type Report struct {
	SumAccounts   decimal.Decimal
	ReserveTotal  decimal.Decimal
	ExpectedTotal decimal.Decimal
	Pass          bool
}

// Check reads one snapshot and compares both aggregates to expectedTotal.
func Check(ctx context.Context, store storage.Store, expectedTotal decimal.Decimal) (Report, error) {
	snapshot, err := store.ConsistencySnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read consistency snapshot: %w", err)
	}

	report := Report{
		SumAccounts:   snapshot.SumAccounts,
		ReserveTotal:  snapshot.ReserveTotal,
		ExpectedTotal: expectedTotal,
	}
	report.Pass = withinEpsilon(report.SumAccounts, expectedTotal) &&
		withinEpsilon(report.ReserveTotal, expectedTotal)
	return report, nil
}

// CheckReserves compares account balances to the reserve pool without an
// external expected total. It catches conservation violations on databases
// whose seeded total is unknown, such as one inspected after the fact.
func CheckReserves(ctx context.Context, store storage.Store) (Report, error) {
	snapshot, err := store.ConsistencySnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read consistency snapshot: %w", err)
	}

	report := Report{
		SumAccounts:   snapshot.SumAccounts,
		ReserveTotal:  snapshot.ReserveTotal,
		ExpectedTotal: snapshot.ReserveTotal,
	}
	report.Pass = withinEpsilon(report.SumAccounts, report.ReserveTotal)
	return report, nil
}

func withinEpsilon(value, expected decimal.Decimal) bool {
	return value.Sub(expected).Abs().LessThanOrEqual(Epsilon)
}
