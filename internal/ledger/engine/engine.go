// Package engine implements the transaction engine: the four atomic ledger
// operations over the storage contract, plus the read-side queries the
// presentation layer consumes.
//
// Every operation runs inside a single unit of work: either every mutation
// is durably applied or none are. Business rejections (insufficient funds,
// unknown account, self-transfer) are returned as typed errors distinct
// from storage faults, which carry the Transient marker and are safe to
// retry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/bankledger/internal/ledger/engine"

// Engine executes atomic ledger operations against a Store.
type Engine struct {
	store    storage.Store
	branchID int64
	tracer   trace.Tracer
}

// New creates an engine bound to the default branch reserve pool.
func New(store storage.Store) *Engine {
	return &Engine{
		store:    store,
		branchID: storage.DefaultBranchID,
		tracer:   otel.Tracer(tracerName),
	}
}

// OpenAccount creates an account for the customer holding taxID, creating
// the customer first when absent. A positive initial deposit funds the new
// account, grows the reserve pool by the same amount, and appends an
// OPEN_ACCOUNT record. It returns the new account ID.
func (e *Engine) OpenAccount(ctx context.Context, name, taxID string, initialDeposit decimal.Decimal) (accountID int64, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.OpenAccount")
	defer func() { finishSpan(span, err) }()

	name = strings.TrimSpace(name)
	taxID = strings.TrimSpace(taxID)
	if name == "" {
		return 0, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if taxID == "" {
		return 0, fmt.Errorf("%w: tax id is required", ErrInvalidInput)
	}
	if initialDeposit.IsNegative() {
		return 0, fmt.Errorf("%w: initial deposit must be non-negative", ErrInvalidInput)
	}
	if err := checkScale(initialDeposit); err != nil {
		return 0, err
	}

	err = e.withUnit(ctx, "open account", func(tx storage.Tx) error {
		customerID, err := tx.UpsertCustomerByTaxID(ctx, taxID, name)
		if err != nil {
			return storageFault("upsert customer", err)
		}
		accountID, err = tx.CreateAccount(ctx, customerID, decimal.Zero)
		if err != nil {
			return storageFault("create account", err)
		}
		if !initialDeposit.IsPositive() {
			return nil
		}
		if err := tx.AdjustBalance(ctx, accountID, initialDeposit); err != nil {
			return storageFault("fund new account", err)
		}
		if err := tx.AdjustReserve(ctx, e.branchID, initialDeposit); err != nil {
			return storageFault("grow reserve", err)
		}
		if err := tx.AppendTransaction(ctx, accountID, storage.TransactionOpenAccount, initialDeposit); err != nil {
			return storageFault("record opening deposit", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("account_id", accountID))
	return accountID, nil
}

// Deposit increases an account balance and the reserve pool by amount and
// appends a DEPOSIT record.
func (e *Engine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Deposit",
		trace.WithAttributes(attribute.Int64("account_id", accountID)))
	defer func() { finishSpan(span, err) }()

	if err := checkPositiveAmount(amount); err != nil {
		return err
	}

	return e.withUnit(ctx, "deposit", func(tx storage.Tx) error {
		if _, err := e.lockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, accountID, amount); err != nil {
			return storageFault("credit account", err)
		}
		if err := tx.AdjustReserve(ctx, e.branchID, amount); err != nil {
			return storageFault("grow reserve", err)
		}
		if err := tx.AppendTransaction(ctx, accountID, storage.TransactionDeposit, amount); err != nil {
			return storageFault("record deposit", err)
		}
		return nil
	})
}

// Withdraw decreases an account balance and the reserve pool by amount and
// appends a WITHDRAW record. The balance is validated under the account row
// lock; an insufficient balance aborts the unit of work with no mutation.
func (e *Engine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Withdraw",
		trace.WithAttributes(attribute.Int64("account_id", accountID)))
	defer func() { finishSpan(span, err) }()

	if err := checkPositiveAmount(amount); err != nil {
		return err
	}

	return e.withUnit(ctx, "withdraw", func(tx storage.Tx) error {
		account, err := e.lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return fmt.Errorf("%w: account %d holds %s, requested %s",
				ErrInsufficientFunds, accountID, account.Balance, amount)
		}
		if err := tx.AdjustBalance(ctx, accountID, amount.Neg()); err != nil {
			return storageFault("debit account", err)
		}
		if err := tx.AdjustReserve(ctx, e.branchID, amount.Neg()); err != nil {
			return storageFault("shrink reserve", err)
		}
		if err := tx.AppendTransaction(ctx, accountID, storage.TransactionWithdraw, amount); err != nil {
			return storageFault("record withdrawal", err)
		}
		return nil
	})
}

// Transfer moves amount from one account to another. Both row locks are
// acquired in ascending account-ID order regardless of transfer direction,
// so concurrent transfers over a shared account can never circular-wait.
// The reserve pool is untouched: internal transfers redistribute reserves.
func (e *Engine) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Transfer",
		trace.WithAttributes(
			attribute.Int64("from_account_id", fromID),
			attribute.Int64("to_account_id", toID),
		))
	defer func() { finishSpan(span, err) }()

	if fromID == toID {
		return fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidInput)
	}
	if err := checkPositiveAmount(amount); err != nil {
		return err
	}

	return e.withUnit(ctx, "transfer", func(tx storage.Tx) error {
		var debit storage.Account
		for _, lockID := range lockOrder(fromID, toID) {
			account, err := e.lockAccount(ctx, tx, lockID)
			if err != nil {
				return err
			}
			if lockID == fromID {
				debit = account
			}
		}

		if debit.Balance.LessThan(amount) {
			return fmt.Errorf("%w: account %d holds %s, requested %s",
				ErrInsufficientFunds, fromID, debit.Balance, amount)
		}
		if err := tx.AdjustBalance(ctx, fromID, amount.Neg()); err != nil {
			return storageFault("debit sender", err)
		}
		if err := tx.AppendTransaction(ctx, fromID, storage.TransactionTransferOut, amount); err != nil {
			return storageFault("record debit leg", err)
		}
		if err := tx.AdjustBalance(ctx, toID, amount); err != nil {
			return storageFault("credit receiver", err)
		}
		if err := tx.AppendTransaction(ctx, toID, storage.TransactionTransferIn, amount); err != nil {
			return storageFault("record credit leg", err)
		}
		return nil
	})
}

// lockOrder returns the canonical total order both row locks are acquired
// in. Keeping it a separate function lets the protocol extend beyond
// two-party operations.
func lockOrder(ids ...int64) []int64 {
	ordered := make([]int64, len(ids))
	copy(ordered, ids)
	slices.Sort(ordered)
	return ordered
}

// withUnit runs fn inside one unit of work, committing on success and
// rolling back on any error. Begin and commit failures carry the Transient
// marker; errors from fn pass through unchanged.
func (e *Engine) withUnit(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Transient(fmt.Errorf("begin %s: %w", op, err))
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback %s: %v", err, op, rollbackErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return Transient(fmt.Errorf("commit %s: %w", op, err))
	}
	return nil
}

// lockAccount maps a missing row to ErrNotFound and everything else to a
// transient storage fault.
func (e *Engine) lockAccount(ctx context.Context, tx storage.Tx, accountID int64) (storage.Account, error) {
	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Account{}, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
		}
		return storage.Account{}, storageFault("lock account", err)
	}
	return account, nil
}

func storageFault(op string, err error) error {
	return Transient(fmt.Errorf("%s: %w", op, err))
}

func checkPositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return checkScale(amount)
}

func checkScale(amount decimal.Decimal) error {
	if _, err := storage.Cents(amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
