package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/catalog"
	"github.com/fadedpez/spinz/pkg/repositories/ledger"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	mock_wallet_service "github.com/fadedpez/spinz/pkg/services/wallet/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockedEngine(t *testing.T) (*Engine, *mock_wallet_service.MockWalletService) {
	ctrl := gomock.NewController(t)
	wallets := mock_wallet_service.NewMockWalletService(ctrl)

	games, err := catalog.NewMemoryCatalog(catalog.DefaultGames()...)
	require.NoError(t, err)

	engine := NewEngine(wallets, games, &fixedDrawer{outcome: jackpot}, Config{StepTimeout: time.Second},
		logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false))
	return engine, wallets
}

func expectFreshBet(wallets *mock_wallet_service.MockWalletService, req *entities.BetRequest) {
	wallets.EXPECT().GetGameResultByKey(gomock.Any(), req.AccountID, req.IdempotencyKey).
		Return(nil, types.NewError(types.ErrResultNotFound, "game result not found"))
	wallets.EXPECT().GetTransactionByKey(gomock.Any(), req.AccountID, req.IdempotencyKey).
		Return(nil, types.NewError(types.ErrTxNotFound, "transaction not found"))
	wallets.EXPECT().GetWallet(gomock.Any(), req.WalletID).
		Return(&entities.Wallet{ID: req.WalletID, AccountID: req.AccountID, Currency: "USD", Balance: 1000, Status: entities.WalletStatusOpen}, nil)
	wallets.EXPECT().AppendTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx *wallet.TransactionRequest) (*entities.Transaction, bool, error) {
			return &entities.Transaction{
				ID:             "debit-1",
				WalletID:       tx.WalletID,
				Type:           tx.Type,
				Amount:         tx.Amount,
				ResultID:       tx.ResultID,
				IdempotencyKey: tx.IdempotencyKey,
				RequestHash:    tx.RequestHash,
				BalanceAfter:   1000 + tx.Amount,
			}, true, nil
		})
}

func mockedBet() *entities.BetRequest {
	return &entities.BetRequest{
		AccountID:      "acc-1",
		WalletID:       "wallet-1",
		GameID:         "classic",
		Amount:         10,
		Currency:       "USD",
		IdempotencyKey: "bet-1",
	}
}

func TestCommitFailureRecordsFailedResult(t *testing.T) {
	// Setup
	engine, wallets := newMockedEngine(t)
	req := mockedBet()
	expectFreshBet(wallets, req)

	commitErr := types.WrapError(types.ErrPersistenceFailure, "ledger store failed", errors.New("connection reset"))
	wallets.EXPECT().CommitSettlement(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, commitErr)

	var recorded *entities.GameResult
	wallets.EXPECT().RecordFailedResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, result *entities.GameResult) error {
			recorded = result
			return nil
		})

	// Execute
	_, err := engine.PlaceBet(context.Background(), req)

	// Assert
	assert.True(t, types.IsCode(err, types.ErrPersistenceFailure))
	require.NotNil(t, recorded)
	assert.Equal(t, resultIDOf(err), recorded.ID)
	assert.Equal(t, jackpot, recorded.Outcome)
	assert.Equal(t, req.Fingerprint(), recorded.RequestHash)
	assert.Contains(t, recorded.FailureReason, "connection reset")
}

func TestCommitThatLandedDespiteErrorIsReturned(t *testing.T) {
	// Setup
	engine, wallets := newMockedEngine(t)
	req := mockedBet()
	expectFreshBet(wallets, req)

	var committed *entities.GameResult
	wallets.EXPECT().CommitSettlement(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, result *entities.GameResult, credit *entities.Transaction) (*entities.GameResult, error) {
			require.NotNil(t, credit)
			assert.Equal(t, int64(100), credit.Amount)
			assert.Equal(t, "bet-1:payout", credit.IdempotencyKey)

			c := *result
			c.Status = entities.ResultStatusCommitted
			c.BalanceAfter = 1090
			committed = &c
			return nil, context.DeadlineExceeded
		})
	wallets.EXPECT().RecordFailedResult(gomock.Any(), gomock.Any()).
		Return(types.WrapError(types.ErrDuplicateIdempotency, "idempotency key already used", ledger.ErrResultExists))
	wallets.EXPECT().GetGameResultByKey(gomock.Any(), req.AccountID, req.IdempotencyKey).
		DoAndReturn(func(ctx context.Context, accountID, key string) (*entities.GameResult, error) {
			return committed, nil
		})

	// Execute
	receipt, err := engine.PlaceBet(context.Background(), req)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, committed.ID, receipt.ResultID)
	assert.Equal(t, int64(1090), receipt.NewBalance)
	assert.False(t, receipt.Replayed)
}

func TestLookupErrorsAreReturned(t *testing.T) {
	// Setup
	engine, wallets := newMockedEngine(t)
	req := mockedBet()
	storeErr := types.WrapError(types.ErrPersistenceFailure, "ledger store failed", errors.New("timeout"))
	wallets.EXPECT().GetGameResultByKey(gomock.Any(), req.AccountID, req.IdempotencyKey).Return(nil, storeErr)

	// Execute
	_, err := engine.PlaceBet(context.Background(), req)

	// Assert
	assert.True(t, types.IsCode(err, types.ErrPersistenceFailure))
}

func TestReconcileCollectsPerResultErrors(t *testing.T) {
	// Setup
	engine, wallets := newMockedEngine(t)
	failed := []*entities.GameResult{
		{ID: "res-1", Status: entities.ResultStatusFailed, FailureReason: "draw timed out"},
		{ID: "res-2", Status: entities.ResultStatusFailed, FailureReason: "draw timed out"},
	}
	wallets.EXPECT().GetOrphanedDebits(gomock.Any(), gomock.Any(), 100).Return(nil, nil)
	wallets.EXPECT().GetFailedResults(gomock.Any(), 100).Return(failed, nil)
	wallets.EXPECT().Compensate(gomock.Any(), "res-1", "draw timed out").
		Return(&entities.Transaction{ID: "refund-1", Amount: 10}, nil)
	wallets.EXPECT().Compensate(gomock.Any(), "res-2", "draw timed out").
		Return(nil, types.NewError(types.ErrWalletClosed, "wallet is closed"))

	// Execute
	report, err := engine.Reconcile(context.Background(), true)

	// Assert
	require.NoError(t, err)
	assert.Len(t, report.Failed, 2)
	require.Len(t, report.Compensated, 1)
	assert.Equal(t, "refund-1", report.Compensated[0].ID)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "res-2")
}
