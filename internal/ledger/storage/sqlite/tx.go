package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/shopspring/decimal"
)

// ledgerTx is one unit of work over the writer connection. The transaction
// already holds the database writer lock, so LockAccount reduces to reading
// the row; no concurrent unit of work can observe or mutate it until this
// one concludes.
type ledgerTx struct {
	tx   *sql.Tx
	done bool
}

var _ storage.Tx = (*ledgerTx)(nil)

func (t *ledgerTx) LockAccount(ctx context.Context, accountID int64) (storage.Account, error) {
	return t.readAccountRow(ctx, accountID)
}

func (t *ledgerTx) ReadAccount(ctx context.Context, accountID int64) (storage.Account, error) {
	return t.readAccountRow(ctx, accountID)
}

func (t *ledgerTx) readAccountRow(ctx context.Context, accountID int64) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	row := t.tx.QueryRowContext(ctx, `
SELECT account_id, customer_id, balance_cents, created_at
FROM accounts
WHERE account_id = ?
`, accountID)

	var account storage.Account
	var balanceCents int64
	var createdAt int64
	if err := row.Scan(&account.ID, &account.CustomerID, &balanceCents, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, mapWriteError("read account", err)
	}
	account.Balance = storage.FromCents(balanceCents)
	account.CreatedAt = fromMillis(createdAt)
	return account, nil
}

func (t *ledgerTx) UpsertCustomerByTaxID(ctx context.Context, taxID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var customerID int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT customer_id FROM customers WHERE tax_id = ?", taxID,
	).Scan(&customerID)
	if err == nil {
		return customerID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapWriteError("lookup customer", err)
	}

	result, err := t.tx.ExecContext(ctx,
		"INSERT INTO customers (name, tax_id, created_at) VALUES (?, ?, ?)",
		name, taxID, toMillis(time.Now()),
	)
	if err != nil {
		return 0, mapWriteError("insert customer", err)
	}
	customerID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert customer id: %w", err)
	}
	return customerID, nil
}

func (t *ledgerTx) CreateAccount(ctx context.Context, customerID int64, initialBalance decimal.Decimal) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cents, err := storage.Cents(initialBalance)
	if err != nil {
		return 0, err
	}

	result, err := t.tx.ExecContext(ctx,
		"INSERT INTO accounts (customer_id, balance_cents, created_at) VALUES (?, ?, ?)",
		customerID, cents, toMillis(time.Now()),
	)
	if err != nil {
		return 0, mapWriteError("insert account", err)
	}
	accountID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert account id: %w", err)
	}
	return accountID, nil
}

func (t *ledgerTx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cents, err := storage.Cents(delta)
	if err != nil {
		return err
	}

	result, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET balance_cents = balance_cents + ? WHERE account_id = ?",
		cents, accountID,
	)
	if err != nil {
		return mapWriteError("adjust balance", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) AdjustReserve(ctx context.Context, branchID int64, delta decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cents, err := storage.Cents(delta)
	if err != nil {
		return err
	}

	result, err := t.tx.ExecContext(ctx,
		"UPDATE bank_reserves SET total_reserve_cents = total_reserve_cents + ? WHERE branch_id = ?",
		cents, branchID,
	)
	if err != nil {
		return mapWriteError("adjust reserve", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust reserve rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, accountID int64, txType storage.TransactionType, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cents, err := storage.Cents(amount)
	if err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO transactions (account_id, transaction_type, amount_cents, created_at) VALUES (?, ?, ?, ?)",
		accountID, string(txType), cents, toMillis(time.Now()),
	); err != nil {
		return mapWriteError("append transaction", err)
	}
	return nil
}

func (t *ledgerTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		if isBusyError(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

func (t *ledgerTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}
