package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fadedpez/spinz/pkg/db/migrations"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// RepositoryTestSuite runs the same behaviour checks against every backend
type RepositoryTestSuite struct {
	suite.Suite
	newRepo func() Repository
	cleanup func()
	repo    Repository
	ctx     context.Context
}

func TestMemoryRepository(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{
		newRepo: func() Repository { return NewMemoryRepository() },
	})
}

func TestSQLiteRepository(t *testing.T) {
	s := &RepositoryTestSuite{}
	s.newRepo = func() Repository {
		db, err := migrations.OpenSQLite(filepath.Join(s.T().TempDir(), "ledger.db"))
		s.Require().NoError(err)
		s.cleanup = func() { db.Close() }
		return NewSQLiteRepository(db)
	}
	suite.Run(t, s)
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("SPINZ_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("SPINZ_TEST_POSTGRES not set")
	}

	s := &RepositoryTestSuite{}
	s.newRepo = func() Repository {
		pool, db, err := migrations.OpenPostgres(context.Background(), dsn)
		s.Require().NoError(err)
		_, err = db.Exec(`TRUNCATE transactions, game_results, wallets`)
		s.Require().NoError(err)
		s.cleanup = func() {
			db.Close()
			pool.Close()
		}
		return NewPostgresRepository(pool)
	}
	suite.Run(t, s)
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

func (s *RepositoryTestSuite) openWallet(accountID string) *entities.Wallet {
	wallet := &entities.Wallet{AccountID: accountID, Currency: "USD"}
	s.Require().NoError(s.repo.CreateWallet(s.ctx, wallet))
	return wallet
}

func (s *RepositoryTestSuite) deposit(wallet *entities.Wallet, amount int64) *entities.Wallet {
	current, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	_, err = s.repo.AppendTransaction(s.ctx, &entities.Transaction{
		WalletID:       wallet.ID,
		Type:           entities.TransactionTypeDeposit,
		Amount:         amount,
		IdempotencyKey: uuid.New().String(),
		Details:        &entities.TransferDetails{Direction: entities.TransactionTypeDeposit},
	}, current.Version)
	s.Require().NoError(err)

	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	return updated
}

func (s *RepositoryTestSuite) debit(wallet *entities.Wallet, amount int64, key, resultID string) (*entities.Transaction, error) {
	return s.repo.AppendTransaction(s.ctx, &entities.Transaction{
		WalletID:       wallet.ID,
		Type:           entities.TransactionTypeBetDebit,
		Amount:         -amount,
		ResultID:       resultID,
		IdempotencyKey: key,
		Details:        &entities.BetDetails{GameID: "classic"},
	}, wallet.Version)
}

func (s *RepositoryTestSuite) TestCreateWalletOncePerCurrency() {
	// Setup
	wallet := s.openWallet("acc-1")

	// Execute
	err := s.repo.CreateWallet(s.ctx, &entities.Wallet{AccountID: "acc-1", Currency: "USD"})

	// Assert
	s.ErrorIs(err, ErrWalletExists)
	found, err := s.repo.FindWallet(s.ctx, "acc-1", "USD")
	s.Require().NoError(err)
	s.Equal(wallet.ID, found.ID)
	s.Equal(int64(0), found.Balance)
	s.Equal(entities.WalletStatusOpen, found.Status)

	s.Require().NoError(s.repo.CreateWallet(s.ctx, &entities.Wallet{AccountID: "acc-1", Currency: "EUR"}))
	wallets, err := s.repo.ListWallets(s.ctx, "acc-1")
	s.Require().NoError(err)
	s.Len(wallets, 2)
}

func (s *RepositoryTestSuite) TestGetUnknownWallet() {
	_, err := s.repo.GetWallet(s.ctx, "missing")
	s.ErrorIs(err, ErrWalletNotFound)

	_, err = s.repo.FindWallet(s.ctx, "nobody", "USD")
	s.ErrorIs(err, ErrWalletNotFound)
}

func (s *RepositoryTestSuite) TestAppendTransactionAppliesAndBumpsVersion() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)

	// Execute
	tx, err := s.debit(wallet, 30, "bet-1", "res-1")

	// Assert
	s.Require().NoError(err)
	s.Equal(int64(70), tx.BalanceAfter)
	s.Equal("acc-1", tx.AccountID)
	s.Equal(entities.TransactionStatusCompleted, tx.Status)
	s.NotEmpty(tx.ID)

	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	s.Equal(int64(70), updated.Balance)
	s.Equal(wallet.Version+1, updated.Version)

	stored, err := s.repo.GetTransactionByKey(s.ctx, "acc-1", "bet-1")
	s.Require().NoError(err)
	s.Equal(tx.ID, stored.ID)
	details, ok := stored.Details.(*entities.BetDetails)
	s.Require().True(ok)
	s.Equal("classic", details.GameID)
}

func (s *RepositoryTestSuite) TestAppendTransactionDuplicateKey() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	first, err := s.debit(wallet, 30, "bet-1", "res-1")
	s.Require().NoError(err)
	wallet, err = s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)

	// Execute
	existing, err := s.debit(wallet, 30, "bet-1", "res-2")

	// Assert
	s.ErrorIs(err, ErrDuplicateIdempotencyKey)
	s.Require().NotNil(existing)
	s.Equal(first.ID, existing.ID)

	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	s.Equal(int64(70), updated.Balance, "duplicate must not be applied twice")
}

func (s *RepositoryTestSuite) TestAppendTransactionVersionConflict() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	stale := *wallet
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)

	// Execute
	_, err = s.debit(&stale, 10, "bet-2", "res-2")

	// Assert
	s.ErrorIs(err, ErrVersionConflict)
	_, err = s.repo.GetTransactionByKey(s.ctx, "acc-1", "bet-2")
	s.ErrorIs(err, ErrTransactionNotFound)
}

func (s *RepositoryTestSuite) TestAppendTransactionInsufficientFunds() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 5)

	// Execute
	_, err := s.debit(wallet, 6, "bet-1", "res-1")

	// Assert
	s.ErrorIs(err, ErrInsufficientFunds)
	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), updated.Balance)
	s.Equal(wallet.Version, updated.Version)
}

func (s *RepositoryTestSuite) TestAppendTransactionRejectsInvalidDetails() {
	wallet := s.deposit(s.openWallet("acc-1"), 5)

	_, err := s.repo.AppendTransaction(s.ctx, &entities.Transaction{
		WalletID:       wallet.ID,
		Type:           entities.TransactionTypeBetDebit,
		Amount:         -1,
		IdempotencyKey: "bet-1",
		Details:        &entities.BetDetails{},
	}, wallet.Version)

	s.Error(err)
}

func (s *RepositoryTestSuite) TestCloseWallet() {
	// Setup
	funded := s.deposit(s.openWallet("acc-1"), 5)

	// Execute
	_, err := s.repo.CloseWallet(s.ctx, funded.ID, funded.Version)

	// Assert
	s.ErrorIs(err, ErrWalletNotEmpty)

	empty := s.openWallet("acc-2")
	closed, err := s.repo.CloseWallet(s.ctx, empty.ID, empty.Version)
	s.Require().NoError(err)
	s.True(closed.IsClosed())

	_, err = s.repo.AppendTransaction(s.ctx, &entities.Transaction{
		WalletID:       empty.ID,
		Type:           entities.TransactionTypeDeposit,
		Amount:         1,
		IdempotencyKey: "dep-1",
	}, closed.Version)
	s.ErrorIs(err, ErrWalletClosed)
}

func (s *RepositoryTestSuite) TestCloseWalletWithUnsettledBet() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 10)
	debit, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)
	current := func() *entities.Wallet {
		w, err := s.repo.GetWallet(s.ctx, wallet.ID)
		s.Require().NoError(err)
		return w
	}

	// Execute
	_, inFlightErr := s.repo.CloseWallet(s.ctx, wallet.ID, current().Version)

	s.Require().NoError(s.repo.RecordFailedResult(s.ctx, &entities.GameResult{
		ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, FailureReason: "draw timed out", IdempotencyKey: "bet-1",
	}))
	_, failedErr := s.repo.CloseWallet(s.ctx, wallet.ID, current().Version)

	// Assert
	s.ErrorIs(inFlightErr, ErrUnsettledBets)
	s.ErrorIs(failedErr, ErrUnsettledBets)
	s.False(current().IsClosed())

	refund, err := s.repo.CompensateResult(s.ctx, "res-1", &entities.Transaction{
		Type:           entities.TransactionTypeBetRefund,
		Amount:         10,
		IdempotencyKey: "bet-1:refund",
		Details:        &entities.RefundDetails{RefundedTransactionID: debit.ID, Reason: "operator"},
	}, current().Version)
	s.Require().NoError(err)
	s.Equal(int64(10), refund.BalanceAfter)
}

func (s *RepositoryTestSuite) TestCloseWalletAfterSettledBet() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 10)
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)
	_, err = s.repo.CommitSettlement(s.ctx, &entities.GameResult{
		ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, Outcome: entities.Outcome{"🍒", "🍋", "🍊"}, IdempotencyKey: "bet-1",
	}, nil, wallet.Version+1)
	s.Require().NoError(err)

	current, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)

	// Execute
	closed, err := s.repo.CloseWallet(s.ctx, wallet.ID, current.Version)

	// Assert
	s.Require().NoError(err)
	s.True(closed.IsClosed())
}

func (s *RepositoryTestSuite) TestCommitSettlementWithCredit() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	debit, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)

	result := &entities.GameResult{
		ID:             "res-1",
		AccountID:      "acc-1",
		WalletID:       wallet.ID,
		GameID:         "classic",
		Currency:       "USD",
		Bet:            10,
		Outcome:        entities.Outcome{"🍒", "🍒", "🍒"},
		Payout:         20,
		BonusTriggered: true,
		IdempotencyKey: "bet-1",
	}
	credit := &entities.Transaction{
		Type:           entities.TransactionTypePayoutCredit,
		Amount:         20,
		IdempotencyKey: "bet-1:payout",
		Details:        &entities.PayoutDetails{GameID: "classic", Outcome: result.Outcome, BetAmount: 10},
	}

	// Execute
	committed, err := s.repo.CommitSettlement(s.ctx, result, credit, wallet.Version+1)

	// Assert
	s.Require().NoError(err)
	s.Equal(entities.ResultStatusCommitted, committed.Status)
	s.Equal(int64(110), committed.BalanceAfter)

	stored, err := s.repo.GetGameResultByKey(s.ctx, "acc-1", "bet-1")
	s.Require().NoError(err)
	s.Equal("res-1", stored.ID)
	s.Equal(entities.Outcome{"🍒", "🍒", "🍒"}, stored.Outcome)
	s.True(stored.BonusTriggered)

	linked, err := s.repo.GetTransactionsByResult(s.ctx, "res-1")
	s.Require().NoError(err)
	s.Require().Len(linked, 2)
	s.Equal(debit.ID, linked[0].ID)
	s.Equal(entities.TransactionTypePayoutCredit, linked[1].Type)

	sum, err := s.repo.SumTransactions(s.ctx, wallet.ID)
	s.Require().NoError(err)
	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	s.Equal(updated.Balance, sum)
	s.Equal(int64(110), sum)
}

func (s *RepositoryTestSuite) TestCommitSettlementLossAndDuplicate() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)
	result := func() *entities.GameResult {
		return &entities.GameResult{
			ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
			Currency: "USD", Bet: 10, Outcome: entities.Outcome{"🍒", "🍋", "🍊"}, IdempotencyKey: "bet-1",
		}
	}

	// Execute
	committed, err := s.repo.CommitSettlement(s.ctx, result(), nil, wallet.Version+1)
	s.Require().NoError(err)
	_, dupErr := s.repo.CommitSettlement(s.ctx, result(), nil, wallet.Version+1)

	// Assert
	s.Equal(int64(90), committed.BalanceAfter)
	s.ErrorIs(dupErr, ErrResultExists)
}

func (s *RepositoryTestSuite) TestCommitSettlementStaleVersionWritesNothing() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)

	result := &entities.GameResult{
		ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, Outcome: entities.Outcome{"🍒", "🍒", "🍒"}, Payout: 20, IdempotencyKey: "bet-1",
	}
	credit := &entities.Transaction{
		Type:           entities.TransactionTypePayoutCredit,
		Amount:         20,
		IdempotencyKey: "bet-1:payout",
		Details:        &entities.PayoutDetails{GameID: "classic", Outcome: result.Outcome, BetAmount: 10},
	}

	// Execute
	_, err = s.repo.CommitSettlement(s.ctx, result, credit, wallet.Version)

	// Assert
	s.ErrorIs(err, ErrVersionConflict)
	_, err = s.repo.GetGameResult(s.ctx, "res-1")
	s.ErrorIs(err, ErrResultNotFound)
	_, err = s.repo.GetTransactionByKey(s.ctx, "acc-1", "bet-1:payout")
	s.ErrorIs(err, ErrTransactionNotFound)
}

func (s *RepositoryTestSuite) TestFailedResultCompensation() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	debit, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)

	failed := &entities.GameResult{
		ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, FailureReason: "entropy unavailable", IdempotencyKey: "bet-1",
	}
	s.Require().NoError(s.repo.RecordFailedResult(s.ctx, failed))

	pending, err := s.repo.GetFailedResults(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("res-1", pending[0].ID)

	refund := func() *entities.Transaction {
		return &entities.Transaction{
			Type:           entities.TransactionTypeBetRefund,
			Amount:         10,
			IdempotencyKey: "bet-1:refund",
			Details:        &entities.RefundDetails{RefundedTransactionID: debit.ID, Reason: "operator"},
		}
	}

	// Execute
	tx, err := s.repo.CompensateResult(s.ctx, "res-1", refund(), wallet.Version+1)

	// Assert
	s.Require().NoError(err)
	s.Equal(int64(100), tx.BalanceAfter)
	s.Equal("res-1", tx.ResultID)

	stored, err := s.repo.GetGameResult(s.ctx, "res-1")
	s.Require().NoError(err)
	s.Equal(entities.ResultStatusCompensated, stored.Status)
	s.Equal(int64(100), stored.BalanceAfter)

	again, err := s.repo.CompensateResult(s.ctx, "res-1", refund(), wallet.Version+2)
	s.ErrorIs(err, ErrDuplicateIdempotencyKey)
	s.Equal(tx.ID, again.ID)

	pending, err = s.repo.GetFailedResults(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *RepositoryTestSuite) TestCompensateCommittedResult() {
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)
	_, err = s.repo.CommitSettlement(s.ctx, &entities.GameResult{
		ID: "res-1", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, Outcome: entities.Outcome{"🍒", "🍋", "🍊"}, IdempotencyKey: "bet-1",
	}, nil, wallet.Version+1)
	s.Require().NoError(err)

	_, err = s.repo.CompensateResult(s.ctx, "res-1", &entities.Transaction{
		Type:           entities.TransactionTypeBetRefund,
		Amount:         10,
		IdempotencyKey: "bet-1:refund",
		Details:        &entities.RefundDetails{RefundedTransactionID: "x"},
	}, wallet.Version+1)

	s.ErrorIs(err, ErrResultNotFailed)
}

func (s *RepositoryTestSuite) TestOrphanedDebits() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	_, err := s.debit(wallet, 10, "bet-1", "res-1")
	s.Require().NoError(err)
	_, err = s.debit(&entities.Wallet{ID: wallet.ID, Version: wallet.Version + 1}, 10, "bet-2", "res-2")
	s.Require().NoError(err)
	_, err = s.repo.CommitSettlement(s.ctx, &entities.GameResult{
		ID: "res-2", AccountID: "acc-1", WalletID: wallet.ID, GameID: "classic",
		Currency: "USD", Bet: 10, Outcome: entities.Outcome{"🍒", "🍋", "🍊"}, IdempotencyKey: "bet-2",
	}, nil, wallet.Version+2)
	s.Require().NoError(err)

	// Execute
	orphans, err := s.repo.GetOrphanedDebits(s.ctx, time.Now().Add(time.Second), 10)
	s.Require().NoError(err)
	none, err := s.repo.GetOrphanedDebits(s.ctx, time.Now().Add(-time.Hour), 10)
	s.Require().NoError(err)

	// Assert
	s.Require().Len(orphans, 1)
	s.Equal("bet-1", orphans[0].IdempotencyKey)
	s.Empty(none)
}

func (s *RepositoryTestSuite) TestHistoryNewestFirst() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)
	for i, key := range []string{"bet-1", "bet-2", "bet-3"} {
		_, err := s.debit(&entities.Wallet{ID: wallet.ID, Version: wallet.Version + int64(i)}, 1, key, "res-"+key)
		s.Require().NoError(err)
	}

	// Execute
	recent, err := s.repo.GetTransactions(s.ctx, wallet.ID, 2)
	s.Require().NoError(err)
	bets, err := s.repo.GetTransactionsByType(s.ctx, wallet.ID, entities.TransactionTypeBetDebit, 0)
	s.Require().NoError(err)

	// Assert
	s.Require().Len(recent, 2)
	s.Equal("bet-3", recent[0].IdempotencyKey)
	s.Equal("bet-2", recent[1].IdempotencyKey)
	s.Len(bets, 3)

	_, err = s.repo.GetTransactions(s.ctx, "missing", 10)
	s.ErrorIs(err, ErrWalletNotFound)
}

func (s *RepositoryTestSuite) TestConcurrentWritersOneWinsPerVersion() {
	// Setup
	wallet := s.deposit(s.openWallet("acc-1"), 100)

	// Execute
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.debit(wallet, 1, uuid.New().String(), uuid.New().String())
		}(i)
	}
	wg.Wait()

	// Assert
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, ErrVersionConflict)
	}
	s.Equal(1, succeeded)

	updated, err := s.repo.GetWallet(s.ctx, wallet.ID)
	s.Require().NoError(err)
	s.Equal(int64(99), updated.Balance)
}
