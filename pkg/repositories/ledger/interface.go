package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
)

var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrWalletExists            = errors.New("wallet already exists for account and currency")
	ErrWalletClosed            = errors.New("wallet is closed")
	ErrWalletNotEmpty          = errors.New("wallet balance must be zero to close")
	ErrUnsettledBets           = errors.New("wallet has bets awaiting settlement or compensation")
	ErrVersionConflict         = errors.New("wallet version conflict")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrResultNotFound          = errors.New("game result not found")
	ErrResultExists            = errors.New("game result already recorded")
	ErrResultNotFailed         = errors.New("game result is not in failed state")
)

// Repository is the durable store behind the wallet ledger. Every method that
// changes a balance takes the wallet version the caller last read and applies
// its writes as one atomic unit only if that version is still current.
type Repository interface {
	// CreateWallet stores a new wallet. Returns ErrWalletExists if the account
	// already holds a wallet in that currency.
	CreateWallet(ctx context.Context, wallet *entities.Wallet) error

	// GetWallet retrieves a wallet by ID
	GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error)

	// FindWallet retrieves the wallet an account holds in a currency
	FindWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error)

	// ListWallets retrieves every wallet held by an account
	ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error)

	// CloseWallet marks an empty wallet closed. A wallet holding a bet debit
	// whose result is missing or failed cannot be closed.
	CloseWallet(ctx context.Context, walletID string, expectedVersion int64) (*entities.Wallet, error)

	// AppendTransaction applies tx.Amount to the wallet and records tx.
	// If the account already used tx.IdempotencyKey the stored transaction is
	// returned together with ErrDuplicateIdempotencyKey and nothing changes.
	AppendTransaction(ctx context.Context, tx *entities.Transaction, expectedVersion int64) (*entities.Transaction, error)

	// CommitSettlement records a committed game result and, when credit is
	// non-nil, applies the payout credit in the same unit of work.
	CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction, expectedVersion int64) (*entities.GameResult, error)

	// RecordFailedResult records a failed game result without touching the balance
	RecordFailedResult(ctx context.Context, result *entities.GameResult) error

	// CompensateResult refunds a failed result and marks it compensated
	CompensateResult(ctx context.Context, resultID string, refund *entities.Transaction, expectedVersion int64) (*entities.Transaction, error)

	// GetTransactionByKey retrieves the transaction an account recorded under a key
	GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error)

	// GetTransactions retrieves the most recent transactions of a wallet, newest first
	GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error)

	// GetTransactionsByType retrieves recent transactions of a specific type, newest first
	GetTransactionsByType(ctx context.Context, walletID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error)

	// GetTransactionsByResult retrieves the transactions that reference a game result
	GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error)

	// SumTransactions returns the sum of every transaction amount of a wallet
	SumTransactions(ctx context.Context, walletID string) (int64, error)

	// GetGameResult retrieves a game result by ID
	GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error)

	// GetGameResultByKey retrieves the game result an account recorded under a key
	GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error)

	// GetAccountResults retrieves recent game results for an account, newest first
	GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error)

	// GetFailedResults retrieves failed results awaiting compensation, oldest first
	GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error)

	// GetOrphanedDebits retrieves bet debits older than before that have no game
	// result, which happens when a process dies between reserving funds and
	// recording the outcome.
	GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error)
}
