package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository on a migrated SQLite database.
// Balance changes are conditional UPDATEs on the wallet version.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db. The schema must already
// be migrated, see migrations.OpenSQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// withTx runs fn inside a database transaction
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// CreateWallet stores a new wallet
func (r *SQLiteRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	ts := now()
	wallet.Balance = 0
	wallet.Version = 0
	wallet.Status = entities.WalletStatusOpen
	wallet.CreatedAt = ts
	wallet.LastUpdated = ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (id, account_id, currency, balance, version, status, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?, ?)`,
		wallet.ID, wallet.AccountID, wallet.Currency, string(wallet.Status), ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWalletExists
		}
		return fmt.Errorf("error creating wallet: %w", err)
	}
	return nil
}

func getWallet(ctx context.Context, q querier, walletID string) (*entities.Wallet, error) {
	wallet, err := scanWallet(q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ?`, walletID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return wallet, nil
}

// querier is the subset of *sql.DB and *sql.Tx the repository reads through
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetWallet retrieves a wallet by ID
func (r *SQLiteRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	return getWallet(ctx, r.db, walletID)
}

// FindWallet retrieves the wallet an account holds in a currency
func (r *SQLiteRepository) FindWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE account_id = ? AND currency = ?`, accountID, currency)
	wallet, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error finding wallet: %w", err)
	}
	return wallet, nil
}

// ListWallets retrieves every wallet held by an account
func (r *SQLiteRepository) ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("error listing wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]*entities.Wallet, 0)
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// CloseWallet marks an empty wallet closed
func (r *SQLiteRepository) CloseWallet(ctx context.Context, walletID string, expectedVersion int64) (*entities.Wallet, error) {
	var closed *entities.Wallet
	err := r.withTx(ctx, func(q *sql.Tx) error {
		wallet, err := getWallet(ctx, q, walletID)
		if err != nil {
			return err
		}
		if err := checkWritable(wallet, expectedVersion); err != nil {
			return err
		}
		if wallet.Balance != 0 {
			return ErrWalletNotEmpty
		}

		var unsettled int
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM transactions t
			WHERE t.wallet_id = ? AND t.type = ?
			AND NOT EXISTS (SELECT 1 FROM game_results g WHERE g.id = t.result_id AND g.status <> ?)`,
			walletID, string(entities.TransactionTypeBetDebit), string(entities.ResultStatusFailed),
		).Scan(&unsettled)
		if err != nil {
			return fmt.Errorf("error counting unsettled bets: %w", err)
		}
		if unsettled > 0 {
			return ErrUnsettledBets
		}

		ts := now()
		res, err := q.ExecContext(ctx, `
			UPDATE wallets SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ? AND balance = 0`,
			string(entities.WalletStatusClosed), ts, walletID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("error closing wallet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrVersionConflict
		}

		wallet.Status = entities.WalletStatusClosed
		wallet.Version++
		wallet.LastUpdated = ts
		closed = wallet
		return nil
	})
	return closed, err
}

// AppendTransaction applies and records a transaction
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, tx *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	var existing *entities.Transaction
	err := r.withTx(ctx, func(q *sql.Tx) error {
		wallet, err := getWallet(ctx, q, tx.WalletID)
		if err != nil {
			return err
		}
		if existing, err = transactionByKey(ctx, q, wallet.AccountID, tx.IdempotencyKey); err == nil {
			return ErrDuplicateIdempotencyKey
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		return applyTransaction(ctx, q, wallet, tx, expectedVersion, now())
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return existing, err
	}
	if err != nil {
		return nil, err
	}
	return copyTransaction(tx), nil
}

// applyTransaction is the compare-and-swap on the wallet row followed by the ledger insert
func applyTransaction(ctx context.Context, q querier, wallet *entities.Wallet, tx *entities.Transaction, expectedVersion int64, ts time.Time) error {
	if err := checkWritable(wallet, expectedVersion); err != nil {
		return err
	}
	details, err := encodeTransaction(tx)
	if err != nil {
		return err
	}
	balance, err := nextBalance(wallet.Balance, tx.Amount)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		balance, ts, wallet.ID, expectedVersion, string(entities.WalletStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("error updating wallet balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}

	prepareTransaction(tx, wallet, balance, ts)
	_, err = q.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, wallet_id, type, amount, balance_after, result_id,
			idempotency_key, request_hash, status, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.WalletID, string(tx.Type), tx.Amount, tx.BalanceAfter, tx.ResultID,
		tx.IdempotencyKey, tx.RequestHash, string(tx.Status), string(details), tx.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("error inserting transaction: %w", err)
	}

	wallet.Balance = balance
	wallet.Version++
	wallet.LastUpdated = ts
	return nil
}

func insertResult(ctx context.Context, q querier, result *entities.GameResult) error {
	outcome, err := encodeOutcome(result.Outcome)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO game_results (id, account_id, wallet_id, game_id, currency, bet, outcome, payout,
			balance_after, bonus_triggered, status, failure_reason, idempotency_key, request_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.AccountID, result.WalletID, result.GameID, result.Currency, result.Bet, outcome,
		result.Payout, result.BalanceAfter, result.BonusTriggered, string(result.Status), result.FailureReason,
		result.IdempotencyKey, result.RequestHash, result.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrResultExists
		}
		return fmt.Errorf("error inserting game result: %w", err)
	}
	return nil
}

// CommitSettlement records a committed result and its optional credit
func (r *SQLiteRepository) CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction, expectedVersion int64) (*entities.GameResult, error) {
	err := r.withTx(ctx, func(q *sql.Tx) error {
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM game_results WHERE id = ? OR (account_id = ? AND idempotency_key = ?))`,
			result.ID, result.AccountID, result.IdempotencyKey,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("error checking game result: %w", err)
		}
		if exists {
			return ErrResultExists
		}

		wallet, err := getWallet(ctx, q, result.WalletID)
		if err != nil {
			return err
		}

		ts := now()
		if credit != nil {
			credit.WalletID = result.WalletID
			credit.ResultID = result.ID
			if err := applyTransaction(ctx, q, wallet, credit, expectedVersion, ts); err != nil {
				return err
			}
		}

		prepareResult(result, entities.ResultStatusCommitted, ts)
		result.BalanceAfter = wallet.Balance
		return insertResult(ctx, q, result)
	})
	if err != nil {
		return nil, err
	}
	return copyResult(result), nil
}

// RecordFailedResult records a failed result without touching the balance
func (r *SQLiteRepository) RecordFailedResult(ctx context.Context, result *entities.GameResult) error {
	return r.withTx(ctx, func(q *sql.Tx) error {
		wallet, err := getWallet(ctx, q, result.WalletID)
		if err != nil {
			return err
		}
		prepareResult(result, entities.ResultStatusFailed, now())
		result.BalanceAfter = wallet.Balance
		return insertResult(ctx, q, result)
	})
}

// CompensateResult refunds a failed result and marks it compensated
func (r *SQLiteRepository) CompensateResult(ctx context.Context, resultID string, refund *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	var existing *entities.Transaction
	err := r.withTx(ctx, func(q *sql.Tx) error {
		result, err := gameResult(ctx, q, `WHERE id = ?`, resultID)
		if err != nil {
			return err
		}
		if existing, err = transactionByKey(ctx, q, result.AccountID, refund.IdempotencyKey); err == nil {
			return ErrDuplicateIdempotencyKey
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		if result.Status != entities.ResultStatusFailed {
			return ErrResultNotFailed
		}

		wallet, err := getWallet(ctx, q, result.WalletID)
		if err != nil {
			return err
		}
		refund.WalletID = result.WalletID
		refund.ResultID = resultID
		if err := applyTransaction(ctx, q, wallet, refund, expectedVersion, now()); err != nil {
			return err
		}

		res, err := q.ExecContext(ctx,
			`UPDATE game_results SET status = ?, balance_after = ? WHERE id = ? AND status = ?`,
			string(entities.ResultStatusCompensated), refund.BalanceAfter, resultID, string(entities.ResultStatusFailed),
		)
		if err != nil {
			return fmt.Errorf("error marking result compensated: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrResultNotFailed
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return existing, err
	}
	if err != nil {
		return nil, err
	}
	return copyTransaction(refund), nil
}

func transactionByKey(ctx context.Context, q querier, accountID, key string) (*entities.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? AND idempotency_key = ?`, accountID, key)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	return tx, nil
}

// GetTransactionByKey retrieves the transaction an account recorded under a key
func (r *SQLiteRepository) GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error) {
	return transactionByKey(ctx, r.db, accountID, idempotencyKey)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*entities.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*entities.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// GetTransactions retrieves recent transactions for a wallet, newest first
func (r *SQLiteRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return r.queryTransactions(ctx, `WHERE wallet_id = ? ORDER BY seq DESC LIMIT ?`, walletID, clampLimit(limit))
}

// GetTransactionsByType retrieves recent transactions of a specific type, newest first
func (r *SQLiteRepository) GetTransactionsByType(ctx context.Context, walletID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return r.queryTransactions(ctx, `WHERE wallet_id = ? AND type = ? ORDER BY seq DESC LIMIT ?`,
		walletID, string(transactionType), clampLimit(limit))
}

// GetTransactionsByResult retrieves the transactions that reference a game result
func (r *SQLiteRepository) GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `WHERE result_id = ? ORDER BY seq`, resultID)
}

// SumTransactions returns the sum of every transaction amount of a wallet
func (r *SQLiteRepository) SumTransactions(ctx context.Context, walletID string) (int64, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return 0, err
	}
	var sum int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE wallet_id = ?`, walletID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("error summing transactions: %w", err)
	}
	return sum, nil
}

func gameResult(ctx context.Context, q querier, where string, args ...any) (*entities.GameResult, error) {
	result, err := scanResult(q.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM game_results `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("error getting game result: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) queryResults(ctx context.Context, query string, args ...any) ([]*entities.GameResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM game_results `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying game results: %w", err)
	}
	defer rows.Close()

	results := make([]*entities.GameResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning game result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetGameResult retrieves a game result by ID
func (r *SQLiteRepository) GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error) {
	return gameResult(ctx, r.db, `WHERE id = ?`, resultID)
}

// GetGameResultByKey retrieves the game result an account recorded under a key
func (r *SQLiteRepository) GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error) {
	return gameResult(ctx, r.db, `WHERE account_id = ? AND idempotency_key = ?`, accountID, idempotencyKey)
}

// GetAccountResults retrieves recent game results for an account, newest first
func (r *SQLiteRepository) GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error) {
	return r.queryResults(ctx, `WHERE account_id = ? ORDER BY seq DESC LIMIT ?`, accountID, clampLimit(limit))
}

// GetFailedResults retrieves failed results awaiting compensation, oldest first
func (r *SQLiteRepository) GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error) {
	return r.queryResults(ctx, `WHERE status = ? ORDER BY seq LIMIT ?`, string(entities.ResultStatusFailed), clampLimit(limit))
}

// GetOrphanedDebits retrieves bet debits older than before that have no game result
func (r *SQLiteRepository) GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `
		WHERE type = ? AND created_at < ?
		AND NOT EXISTS (SELECT 1 FROM game_results g WHERE g.id = transactions.result_id)
		ORDER BY seq LIMIT ?`,
		string(entities.TransactionTypeBetDebit), before.UTC(), clampLimit(limit))
}
