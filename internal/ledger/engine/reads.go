package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/shopspring/decimal"
)

// Balance reads one account balance.
func (e *Engine) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	balance, err := e.store.AccountBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
		}
		return decimal.Zero, storageFault("read balance", err)
	}
	return balance, nil
}

// ReserveTotal reads the default branch reserve pool value.
func (e *Engine) ReserveTotal(ctx context.Context) (decimal.Decimal, error) {
	total, err := e.store.ReserveTotal(ctx, e.branchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: branch %d", ErrNotFound, e.branchID)
		}
		return decimal.Zero, storageFault("read reserve total", err)
	}
	return total, nil
}

// ListAccounts lists all accounts with their owning customers.
func (e *Engine) ListAccounts(ctx context.Context) ([]storage.AccountSummary, error) {
	summaries, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, storageFault("list accounts", err)
	}
	return summaries, nil
}

// Statement lists the newest transaction records with customer names.
func (e *Engine) Statement(ctx context.Context, limit int) ([]storage.StatementEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	entries, err := e.store.ListTransactions(ctx, limit)
	if err != nil {
		return nil, storageFault("list transactions", err)
	}
	return entries, nil
}
