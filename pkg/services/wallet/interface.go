package wallet

import (
	"context"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_wallet_service

// WalletService is the ledger surface the settlement engine depends on
type WalletService interface {
	GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error)
	AppendTransaction(ctx context.Context, req *TransactionRequest) (*entities.Transaction, bool, error)
	CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction) (*entities.GameResult, error)
	RecordFailedResult(ctx context.Context, result *entities.GameResult) error
	Compensate(ctx context.Context, resultID, reason string) (*entities.Transaction, error)
	GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error)
	GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error)
	GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error)
	GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error)
	GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error)
}
