package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a migrated Postgres database.
// Writes lock the wallet row and still verify the version on update.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over pool, see migrations.OpenPostgres
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// CreateWallet stores a new wallet
func (r *PostgresRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	ts := now()
	wallet.Balance = 0
	wallet.Version = 0
	wallet.Status = entities.WalletStatusOpen
	wallet.CreatedAt = ts
	wallet.LastUpdated = ts

	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (id, account_id, currency, balance, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5, $6)`,
		wallet.ID, wallet.AccountID, wallet.Currency, string(wallet.Status), ts, ts,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrWalletExists
		}
		return fmt.Errorf("error creating wallet: %w", err)
	}
	return nil
}

func pgWallet(ctx context.Context, q pgQuerier, query string, args ...any) (*entities.Wallet, error) {
	wallet, err := scanWallet(q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets `+query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return wallet, nil
}

// GetWallet retrieves a wallet by ID
func (r *PostgresRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	return pgWallet(ctx, r.pool, `WHERE id = $1`, walletID)
}

// FindWallet retrieves the wallet an account holds in a currency
func (r *PostgresRepository) FindWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error) {
	return pgWallet(ctx, r.pool, `WHERE account_id = $1 AND currency = $2`, accountID, currency)
}

// ListWallets retrieves every wallet held by an account
func (r *PostgresRepository) ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE account_id = $1 ORDER BY created_at`, accountID)
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
func (r *PostgresRepository) CloseWallet(ctx context.Context, walletID string, expectedVersion int64) (*entities.Wallet, error) {
	var closed *entities.Wallet
	err := r.withTx(ctx, func(q pgx.Tx) error {
		wallet, err := pgWallet(ctx, q, `WHERE id = $1 FOR UPDATE`, walletID)
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
		err = q.QueryRow(ctx, `
			SELECT COUNT(*) FROM transactions t
			WHERE t.wallet_id = $1 AND t.type = $2
			AND NOT EXISTS (SELECT 1 FROM game_results g WHERE g.id = t.result_id AND g.status <> $3)`,
			walletID, string(entities.TransactionTypeBetDebit), string(entities.ResultStatusFailed),
		).Scan(&unsettled)
		if err != nil {
			return fmt.Errorf("error counting unsettled bets: %w", err)
		}
		if unsettled > 0 {
			return ErrUnsettledBets
		}

		ts := now()
		tag, err := q.Exec(ctx, `
			UPDATE wallets SET status = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4 AND balance = 0`,
			string(entities.WalletStatusClosed), ts, walletID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("error closing wallet: %w", err)
		}
		if tag.RowsAffected() == 0 {
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
func (r *PostgresRepository) AppendTransaction(ctx context.Context, tx *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	var existing *entities.Transaction
	err := r.withTx(ctx, func(q pgx.Tx) error {
		wallet, err := pgWallet(ctx, q, `WHERE id = $1 FOR UPDATE`, tx.WalletID)
		if err != nil {
			return err
		}
		if existing, err = pgTransactionByKey(ctx, q, wallet.AccountID, tx.IdempotencyKey); err == nil {
			return ErrDuplicateIdempotencyKey
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		return pgApplyTransaction(ctx, q, wallet, tx, expectedVersion, now())
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return existing, err
	}
	if err != nil {
		return nil, err
	}
	return copyTransaction(tx), nil
}

func pgApplyTransaction(ctx context.Context, q pgQuerier, wallet *entities.Wallet, tx *entities.Transaction, expectedVersion int64, ts time.Time) error {
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

	tag, err := q.Exec(ctx, `
		UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4 AND status = $5`,
		balance, ts, wallet.ID, expectedVersion, string(entities.WalletStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("error updating wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	prepareTransaction(tx, wallet, balance, ts)
	_, err = q.Exec(ctx, `
		INSERT INTO transactions (id, account_id, wallet_id, type, amount, balance_after, result_id,
			idempotency_key, request_hash, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.AccountID, tx.WalletID, string(tx.Type), tx.Amount, tx.BalanceAfter, tx.ResultID,
		tx.IdempotencyKey, tx.RequestHash, string(tx.Status), string(details), tx.Timestamp,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("error inserting transaction: %w", err)
	}

	wallet.Balance = balance
	wallet.Version++
	wallet.LastUpdated = ts
	return nil
}

func pgInsertResult(ctx context.Context, q pgQuerier, result *entities.GameResult) error {
	outcome, err := encodeOutcome(result.Outcome)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO game_results (id, account_id, wallet_id, game_id, currency, bet, outcome, payout,
			balance_after, bonus_triggered, status, failure_reason, idempotency_key, request_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		result.ID, result.AccountID, result.WalletID, result.GameID, result.Currency, result.Bet, outcome,
		result.Payout, result.BalanceAfter, result.BonusTriggered, string(result.Status), result.FailureReason,
		result.IdempotencyKey, result.RequestHash, result.Timestamp,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrResultExists
		}
		return fmt.Errorf("error inserting game result: %w", err)
	}
	return nil
}

// CommitSettlement records a committed result and its optional credit
func (r *PostgresRepository) CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction, expectedVersion int64) (*entities.GameResult, error) {
	err := r.withTx(ctx, func(q pgx.Tx) error {
		wallet, err := pgWallet(ctx, q, `WHERE id = $1 FOR UPDATE`, result.WalletID)
		if err != nil {
			return err
		}

		var exists bool
		err = q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM game_results WHERE id = $1 OR (account_id = $2 AND idempotency_key = $3))`,
			result.ID, result.AccountID, result.IdempotencyKey,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("error checking game result: %w", err)
		}
		if exists {
			return ErrResultExists
		}

		ts := now()
		if credit != nil {
			credit.WalletID = result.WalletID
			credit.ResultID = result.ID
			if err := pgApplyTransaction(ctx, q, wallet, credit, expectedVersion, ts); err != nil {
				return err
			}
		}

		prepareResult(result, entities.ResultStatusCommitted, ts)
		result.BalanceAfter = wallet.Balance
		return pgInsertResult(ctx, q, result)
	})
	if err != nil {
		return nil, err
	}
	return copyResult(result), nil
}

// RecordFailedResult records a failed result without touching the balance
func (r *PostgresRepository) RecordFailedResult(ctx context.Context, result *entities.GameResult) error {
	return r.withTx(ctx, func(q pgx.Tx) error {
		wallet, err := pgWallet(ctx, q, `WHERE id = $1 FOR UPDATE`, result.WalletID)
		if err != nil {
			return err
		}
		prepareResult(result, entities.ResultStatusFailed, now())
		result.BalanceAfter = wallet.Balance
		return pgInsertResult(ctx, q, result)
	})
}

// CompensateResult refunds a failed result and marks it compensated
func (r *PostgresRepository) CompensateResult(ctx context.Context, resultID string, refund *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	var existing *entities.Transaction
	err := r.withTx(ctx, func(q pgx.Tx) error {
		result, err := pgGameResult(ctx, q, `WHERE id = $1 FOR UPDATE`, resultID)
		if err != nil {
			return err
		}
		if existing, err = pgTransactionByKey(ctx, q, result.AccountID, refund.IdempotencyKey); err == nil {
			return ErrDuplicateIdempotencyKey
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		if result.Status != entities.ResultStatusFailed {
			return ErrResultNotFailed
		}

		wallet, err := pgWallet(ctx, q, `WHERE id = $1 FOR UPDATE`, result.WalletID)
		if err != nil {
			return err
		}
		refund.WalletID = result.WalletID
		refund.ResultID = resultID
		if err := pgApplyTransaction(ctx, q, wallet, refund, expectedVersion, now()); err != nil {
			return err
		}

		_, err = q.Exec(ctx,
			`UPDATE game_results SET status = $1, balance_after = $2 WHERE id = $3`,
			string(entities.ResultStatusCompensated), refund.BalanceAfter, resultID,
		)
		if err != nil {
			return fmt.Errorf("error marking result compensated: %w", err)
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

func pgTransactionByKey(ctx context.Context, q pgQuerier, accountID, key string) (*entities.Transaction, error) {
	row := q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = $1 AND idempotency_key = $2`, accountID, key)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}
	return tx, nil
}

// GetTransactionByKey retrieves the transaction an account recorded under a key
func (r *PostgresRepository) GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error) {
	return pgTransactionByKey(ctx, r.pool, accountID, idempotencyKey)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*entities.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions `+query, args...)
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
func (r *PostgresRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return r.queryTransactions(ctx, `WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2`, walletID, clampLimit(limit))
}

// GetTransactionsByType retrieves recent transactions of a specific type, newest first
func (r *PostgresRepository) GetTransactionsByType(ctx context.Context, walletID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return r.queryTransactions(ctx, `WHERE wallet_id = $1 AND type = $2 ORDER BY seq DESC LIMIT $3`,
		walletID, string(transactionType), clampLimit(limit))
}

// GetTransactionsByResult retrieves the transactions that reference a game result
func (r *PostgresRepository) GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `WHERE result_id = $1 ORDER BY seq`, resultID)
}

// SumTransactions returns the sum of every transaction amount of a wallet
func (r *PostgresRepository) SumTransactions(ctx context.Context, walletID string) (int64, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return 0, err
	}
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM transactions WHERE wallet_id = $1`, walletID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("error summing transactions: %w", err)
	}
	return sum, nil
}

func pgGameResult(ctx context.Context, q pgQuerier, where string, args ...any) (*entities.GameResult, error) {
	result, err := scanResult(q.QueryRow(ctx, `SELECT `+resultColumns+` FROM game_results `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("error getting game result: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) queryResults(ctx context.Context, query string, args ...any) ([]*entities.GameResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resultColumns+` FROM game_results `+query, args...)
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
func (r *PostgresRepository) GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error) {
	return pgGameResult(ctx, r.pool, `WHERE id = $1`, resultID)
}

// GetGameResultByKey retrieves the game result an account recorded under a key
func (r *PostgresRepository) GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error) {
	return pgGameResult(ctx, r.pool, `WHERE account_id = $1 AND idempotency_key = $2`, accountID, idempotencyKey)
}

// GetAccountResults retrieves recent game results for an account, newest first
func (r *PostgresRepository) GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error) {
	return r.queryResults(ctx, `WHERE account_id = $1 ORDER BY seq DESC LIMIT $2`, accountID, clampLimit(limit))
}

// GetFailedResults retrieves failed results awaiting compensation, oldest first
func (r *PostgresRepository) GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error) {
	return r.queryResults(ctx, `WHERE status = $1 ORDER BY seq LIMIT $2`, string(entities.ResultStatusFailed), clampLimit(limit))
}

// GetOrphanedDebits retrieves bet debits older than before that have no game result
func (r *PostgresRepository) GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `
		WHERE type = $1 AND created_at < $2
		AND NOT EXISTS (SELECT 1 FROM game_results g WHERE g.id = transactions.result_id)
		ORDER BY seq LIMIT $3`,
		string(entities.TransactionTypeBetDebit), before, clampLimit(limit))
}
