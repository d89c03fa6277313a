package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/bankledger/internal/ledger/storage"
	"github.com/shopspring/decimal"
)

// ConsistencySnapshot reads the balance sum and total reserves inside one
// read transaction so both aggregates come from the same snapshot.
func (s *Store) ConsistencySnapshot(ctx context.Context) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.readDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("begin snapshot read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sumCents int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(balance_cents), 0) FROM accounts",
	).Scan(&sumCents); err != nil {
		return storage.Snapshot{}, fmt.Errorf("sum account balances: %w", err)
	}

	var reserveCents int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(total_reserve_cents), 0) FROM bank_reserves",
	).Scan(&reserveCents); err != nil {
		return storage.Snapshot{}, fmt.Errorf("sum bank reserves: %w", err)
	}

	return storage.Snapshot{
		SumAccounts:  storage.FromCents(sumCents),
		ReserveTotal: storage.FromCents(reserveCents),
	}, nil
}

// AccountBalance reads one account balance.
func (s *Store) AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if s == nil || s.readDB == nil {
		return decimal.Zero, fmt.Errorf("storage is not configured")
	}

	var balanceCents int64
	err := s.readDB.QueryRowContext(ctx,
		"SELECT balance_cents FROM accounts WHERE account_id = ?", accountID,
	).Scan(&balanceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("read account balance: %w", err)
	}
	return storage.FromCents(balanceCents), nil
}

// ReserveTotal reads one branch reserve pool value.
func (s *Store) ReserveTotal(ctx context.Context, branchID int64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if s == nil || s.readDB == nil {
		return decimal.Zero, fmt.Errorf("storage is not configured")
	}

	var reserveCents int64
	err := s.readDB.QueryRowContext(ctx,
		"SELECT total_reserve_cents FROM bank_reserves WHERE branch_id = ?", branchID,
	).Scan(&reserveCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("read reserve total: %w", err)
	}
	return storage.FromCents(reserveCents), nil
}

// ListAccounts lists all accounts joined with their owning customers.
func (s *Store) ListAccounts(ctx context.Context) ([]storage.AccountSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.readDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.readDB.QueryContext(ctx, `
SELECT a.account_id, c.name, c.tax_id, a.balance_cents
FROM accounts a
JOIN customers c ON c.customer_id = a.customer_id
ORDER BY a.account_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var summaries []storage.AccountSummary
	for rows.Next() {
		var summary storage.AccountSummary
		var balanceCents int64
		if err := rows.Scan(&summary.AccountID, &summary.CustomerName, &summary.TaxID, &balanceCents); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		summary.Balance = storage.FromCents(balanceCents)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return summaries, nil
}

// ListTransactions lists the newest transaction records with customer names.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]storage.StatementEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.readDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.readDB.QueryContext(ctx, `
SELECT c.name, t.account_id, t.transaction_type, t.amount_cents, t.created_at
FROM transactions t
JOIN accounts a ON a.account_id = t.account_id
JOIN customers c ON c.customer_id = a.customer_id
ORDER BY t.transaction_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.StatementEntry, 0, limit)
	for rows.Next() {
		var entry storage.StatementEntry
		var txType string
		var amountCents int64
		var createdAt int64
		if err := rows.Scan(&entry.CustomerName, &entry.AccountID, &txType, &amountCents, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		entry.Type = storage.TransactionType(txType)
		entry.Amount = storage.FromCents(amountCents)
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return entries, nil
}
