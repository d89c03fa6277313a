// Package storage defines the ledger store contract: durable records for
// customers, accounts, the per-branch reserve pool, and the append-only
// transaction log, together with the unit-of-work boundary every engine
// operation runs inside.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a referenced customer or account row is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write violated a uniqueness or check constraint.
	ErrConflict = errors.New("record conflict")
	// ErrBusy indicates the store could not grant a lock within its timeout.
	// Units of work that hit it roll back cleanly and are safe to retry.
	ErrBusy = errors.New("store busy")
)

// DefaultBranchID is the branch whose reserve row backs the single-branch
// deployments this repository targets.
const DefaultBranchID int64 = 1

// TransactionType tags one append-only transaction record.
type TransactionType string

const (
	// TransactionOpenAccount records the initial funding of a new account.
	TransactionOpenAccount TransactionType = "OPEN_ACCOUNT"
	// TransactionDeposit records an externally funded balance increase.
	TransactionDeposit TransactionType = "DEPOSIT"
	// TransactionWithdraw records an externally funded balance decrease.
	TransactionWithdraw TransactionType = "WITHDRAW"
	// TransactionTransferOut records the debit leg of a transfer.
	TransactionTransferOut TransactionType = "TRANSFER_OUT"
	// TransactionTransferIn records the credit leg of a transfer.
	TransactionTransferIn TransactionType = "TRANSFER_IN"
)

// Customer stores one customer identity row.
type Customer struct {
	ID        int64
	Name      string
	TaxID     string
	CreatedAt time.Time
}

// Account stores one account row. Balance is non-negative at every commit
// boundary.
type Account struct {
	ID         int64
	CustomerID int64
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

// Transaction stores one append-only transaction log entry. Amounts are
// signed by the Type tag, not the value: a WITHDRAW row carries the positive
// withdrawn amount.
type Transaction struct {
	ID        int64
	AccountID int64
	Type      TransactionType
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AccountSummary joins one account with its owning customer for listings.
type AccountSummary struct {
	AccountID    int64
	CustomerName string
	TaxID        string
	Balance      decimal.Decimal
}

// StatementEntry joins one transaction with the customer it belongs to.
type StatementEntry struct {
	CustomerName string
	AccountID    int64
	Type         TransactionType
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// Snapshot holds both consistency aggregates read from a single store
// snapshot.
type Snapshot struct {
	SumAccounts  decimal.Decimal
	ReserveTotal decimal.Decimal
}

// Tx is one unit of work: every mutation performed through it is applied
// atomically on Commit or discarded entirely on Rollback. Commit and
// Rollback are terminal; calling either after the unit of work concluded is
// an idempotent no-op.
type Tx interface {
	// LockAccount acquires the exclusive row lock for accountID and returns
	// the row read under that lock. Existence and balance checks both happen
	// against this single read.
	LockAccount(ctx context.Context, accountID int64) (Account, error)
	// ReadAccount reads accountID without acquiring the row lock.
	ReadAccount(ctx context.Context, accountID int64) (Account, error)
	// UpsertCustomerByTaxID returns the customer ID for taxID, creating the
	// customer with the given name when absent.
	UpsertCustomerByTaxID(ctx context.Context, taxID, name string) (int64, error)
	// CreateAccount inserts a new account owned by customerID.
	CreateAccount(ctx context.Context, customerID int64, initialBalance decimal.Decimal) (int64, error)
	// AdjustBalance applies a signed delta to an account balance.
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	// AdjustReserve applies a signed delta to a branch reserve pool.
	AdjustReserve(ctx context.Context, branchID int64, delta decimal.Decimal) error
	// AppendTransaction appends one transaction log record.
	AppendTransaction(ctx context.Context, accountID int64, txType TransactionType, amount decimal.Decimal) error
	Commit() error
	Rollback() error
}

// Store is the ledger store consumed by the transaction engine, the
// verifier, and the read-side queries.
type Store interface {
	// Begin opens a unit of work.
	Begin(ctx context.Context) (Tx, error)

	// ConsistencySnapshot reads both verifier aggregates from one snapshot.
	ConsistencySnapshot(ctx context.Context) (Snapshot, error)
	// AccountBalance reads one account balance outside any unit of work.
	AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	// ReserveTotal reads one branch reserve pool value.
	ReserveTotal(ctx context.Context, branchID int64) (decimal.Decimal, error)
	// ListAccounts lists all accounts joined with their customers.
	ListAccounts(ctx context.Context) ([]AccountSummary, error)
	// ListTransactions lists the newest transaction records joined with
	// customer names, up to limit.
	ListTransactions(ctx context.Context, limit int) ([]StatementEntry, error)
}
