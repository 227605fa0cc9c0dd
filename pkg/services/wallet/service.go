package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/money"
	"github.com/fadedpez/spinz/pkg/repositories/ledger"
	"github.com/google/uuid"
)

// DefaultMaxConflictRetries bounds how often a write is retried after losing a version race
const DefaultMaxConflictRetries = 5

// MaxIdempotencyKeyLength bounds client supplied idempotency keys
const MaxIdempotencyKeyLength = 255

// DerivedKeySeparator joins a client key to the suffix of an entry derived from
// it. Client keys may not contain it, so derived keys never collide with them.
const DerivedKeySeparator = ":"

// PayoutKey derives the idempotency key of the payout credit for a bet key
func PayoutKey(betKey string) string {
	return betKey + DerivedKeySeparator + "payout"
}

// RefundKey derives the idempotency key of the compensating refund for a bet key
func RefundKey(betKey string) string {
	return betKey + DerivedKeySeparator + "refund"
}

// ValidateClientKey checks an idempotency key supplied by a client
func ValidateClientKey(key string) error {
	switch {
	case key == "":
		return types.NewError(types.ErrValidation, "idempotency key is required")
	case len(key) > MaxIdempotencyKeyLength:
		return types.NewError(types.ErrValidation, fmt.Sprintf("idempotency key longer than %d bytes", MaxIdempotencyKeyLength))
	case strings.Contains(key, DerivedKeySeparator):
		return types.NewError(types.ErrValidation, fmt.Sprintf("idempotency key may not contain %q", DerivedKeySeparator))
	}
	return nil
}

// Service handles wallet business logic
type Service struct {
	repo       ledger.Repository
	locks      *keyedMutex
	maxRetries int
	logger     *logging.Logger
}

var _ WalletService = (*Service)(nil)

// NewService creates a new wallet service
func NewService(repo ledger.Repository, maxRetries int, logger *logging.Logger) *Service {
	if maxRetries < 0 {
		maxRetries = DefaultMaxConflictRetries
	}
	if logger == nil {
		logger = logging.Default
	}
	return &Service{
		repo:       repo,
		locks:      newKeyedMutex(),
		maxRetries: maxRetries,
		logger:     logger.With("component", "wallet"),
	}
}

// TransactionRequest describes a single balance change
type TransactionRequest struct {
	WalletID       string
	Type           entities.TransactionType
	Amount         int64 // Signed, negative for debits
	ResultID       string
	IdempotencyKey string
	RequestHash    string // Compared when the key is reused
	Details        entities.TransactionDetails
}

func (r *TransactionRequest) validate() error {
	if r.WalletID == "" {
		return errors.New("wallet id is required")
	}
	if r.IdempotencyKey == "" {
		return errors.New("idempotency key is required")
	}
	if r.Amount == 0 {
		return errors.New("amount cannot be zero")
	}
	if r.Type.IsDebit() != (r.Amount < 0) {
		return fmt.Errorf("amount sign does not match transaction type %s", r.Type)
	}
	if r.Details != nil {
		if r.Details.Kind() != r.Type {
			return fmt.Errorf("details of kind %s attached to %s", r.Details.Kind(), r.Type)
		}
		if err := r.Details.ValidateDetails(); err != nil {
			return err
		}
	}
	return nil
}

// TransferRequest describes a deposit or withdrawal made outside of play
type TransferRequest struct {
	AccountID      string
	WalletID       string // Optional, resolved from AccountID and Currency when empty
	Currency       string
	Amount         int64 // Positive minor units
	IdempotencyKey string
	Reference      string
	Note           string
}

func (r *TransferRequest) fingerprint(direction entities.TransactionType, walletID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", direction, walletID, r.Amount, r.Reference)))
	return hex.EncodeToString(sum[:])
}

// ReconcileReport compares a wallet's stored balance against its ledger
type ReconcileReport struct {
	WalletID   string `json:"wallet_id"`
	Currency   string `json:"currency"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

// OpenWallet creates a wallet for the account in the given currency
func (s *Service) OpenWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error) {
	wallet, err := s.newWallet(accountID, currency)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateWallet(ctx, wallet); err != nil {
		if errors.Is(err, ledger.ErrWalletExists) {
			return nil, types.WrapError(types.ErrValidation, fmt.Sprintf("account already holds a %s wallet", wallet.Currency), err)
		}
		return nil, translate(err)
	}

	s.logger.Info("opened %s wallet %s for account %s", wallet.Currency, wallet.ID, accountID)
	return wallet, nil
}

// GetOrCreateWallet retrieves the account's wallet in a currency, opening it if needed
func (s *Service) GetOrCreateWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, bool, error) {
	wallet, err := s.newWallet(accountID, currency)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindWallet(ctx, accountID, wallet.Currency)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		return nil, false, translate(err)
	}

	err = s.repo.CreateWallet(ctx, wallet)
	if errors.Is(err, ledger.ErrWalletExists) {
		// lost the race to another request opening the same wallet
		existing, err = s.repo.FindWallet(ctx, accountID, wallet.Currency)
		if err != nil {
			return nil, false, translate(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}

	s.logger.Info("opened %s wallet %s for account %s", wallet.Currency, wallet.ID, accountID)
	return wallet, true, nil
}

func (s *Service) newWallet(accountID, currency string) (*entities.Wallet, error) {
	if accountID == "" {
		return nil, types.NewError(types.ErrValidation, "account id is required")
	}
	c, err := money.Lookup(currency)
	if err != nil {
		return nil, types.WrapError(types.ErrValidation, "unsupported currency", err)
	}

	ts := time.Now()
	return &entities.Wallet{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Currency:    c.Code,
		Status:      entities.WalletStatusOpen,
		CreatedAt:   ts,
		LastUpdated: ts,
	}, nil
}

// GetWallet retrieves a wallet by ID
func (s *Service) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	wallet, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, translate(err)
	}
	return wallet, nil
}

// ListWallets retrieves every wallet an account holds
func (s *Service) ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error) {
	wallets, err := s.repo.ListWallets(ctx, accountID)
	if err != nil {
		return nil, translate(err)
	}
	return wallets, nil
}

// GetBalance returns the current balance of a wallet
func (s *Service) GetBalance(ctx context.Context, walletID string) (int64, error) {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// CloseWallet closes an empty wallet with no bet awaiting settlement or
// compensation. Closed wallets reject every further transaction.
func (s *Service) CloseWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	var closed *entities.Wallet
	err := s.withRetry(ctx, walletID, func(wallet *entities.Wallet) error {
		var err error
		closed, err = s.repo.CloseWallet(ctx, walletID, wallet.Version)
		return err
	})
	if errors.Is(err, ledger.ErrWalletNotEmpty) {
		return nil, types.WrapError(types.ErrValidation, "withdraw the remaining balance before closing", err)
	}
	if errors.Is(err, ledger.ErrUnsettledBets) {
		return nil, types.WrapError(types.ErrBetInProgress, "settle or compensate outstanding bets before closing", err)
	}
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("closed wallet %s", walletID)
	return closed, nil
}

// AppendTransaction applies a balance change exactly once per idempotency key.
// The bool result is false when the key was already used by an identical request
// and the stored transaction is returned instead of applying a new one.
func (s *Service) AppendTransaction(ctx context.Context, req *TransactionRequest) (*entities.Transaction, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, types.WrapError(types.ErrValidation, err.Error(), err)
	}

	var stored *entities.Transaction
	err := s.withRetry(ctx, req.WalletID, func(wallet *entities.Wallet) error {
		tx := &entities.Transaction{
			WalletID:       req.WalletID,
			Type:           req.Type,
			Amount:         req.Amount,
			ResultID:       req.ResultID,
			IdempotencyKey: req.IdempotencyKey,
			RequestHash:    req.RequestHash,
			Details:        req.Details,
		}

		var err error
		stored, err = s.repo.AppendTransaction(ctx, tx, wallet.Version)
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) && stored == nil {
			stored, _ = s.repo.GetTransactionByKey(ctx, wallet.AccountID, req.IdempotencyKey)
		}
		return err
	})

	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		if stored == nil {
			return nil, false, translate(err)
		}
		if !sameRequest(stored, req) {
			return nil, false, types.WrapError(types.ErrIdempotencyMismatch, "idempotency key was used for a different request", err)
		}
		s.logger.Debug("replayed transaction %s for key %s", stored.ID, req.IdempotencyKey)
		return stored, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}

	s.logger.Debug("applied %s of %d to wallet %s, balance now %d", stored.Type, stored.Amount, stored.WalletID, stored.BalanceAfter)
	return stored, true, nil
}

func sameRequest(stored *entities.Transaction, req *TransactionRequest) bool {
	if req.RequestHash != "" || stored.RequestHash != "" {
		return stored.RequestHash == req.RequestHash
	}
	return stored.WalletID == req.WalletID && stored.Type == req.Type && stored.Amount == req.Amount
}

// Deposit credits funds from outside of play
func (s *Service) Deposit(ctx context.Context, req *TransferRequest) (*entities.Transaction, bool, error) {
	if req.Amount <= 0 {
		return nil, false, types.NewError(types.ErrValidation, "deposit amount must be positive")
	}
	if err := ValidateClientKey(req.IdempotencyKey); err != nil {
		return nil, false, err
	}

	wallet, err := s.resolveWallet(ctx, req, true)
	if err != nil {
		return nil, false, err
	}

	return s.AppendTransaction(ctx, &TransactionRequest{
		WalletID:       wallet.ID,
		Type:           entities.TransactionTypeDeposit,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    req.fingerprint(entities.TransactionTypeDeposit, wallet.ID),
		Details: &entities.TransferDetails{
			Direction: entities.TransactionTypeDeposit,
			Reference: req.Reference,
			Note:      req.Note,
		},
	})
}

// Withdraw removes funds from an existing wallet
func (s *Service) Withdraw(ctx context.Context, req *TransferRequest) (*entities.Transaction, bool, error) {
	if req.Amount <= 0 {
		return nil, false, types.NewError(types.ErrValidation, "withdrawal amount must be positive")
	}
	if err := ValidateClientKey(req.IdempotencyKey); err != nil {
		return nil, false, err
	}

	wallet, err := s.resolveWallet(ctx, req, false)
	if err != nil {
		return nil, false, err
	}

	return s.AppendTransaction(ctx, &TransactionRequest{
		WalletID:       wallet.ID,
		Type:           entities.TransactionTypeWithdrawal,
		Amount:         -req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    req.fingerprint(entities.TransactionTypeWithdrawal, wallet.ID),
		Details: &entities.TransferDetails{
			Direction: entities.TransactionTypeWithdrawal,
			Reference: req.Reference,
			Note:      req.Note,
		},
	})
}

// resolveWallet finds the wallet a transfer targets and checks the account owns it
func (s *Service) resolveWallet(ctx context.Context, req *TransferRequest, create bool) (*entities.Wallet, error) {
	if req.WalletID == "" {
		if create {
			wallet, _, err := s.GetOrCreateWallet(ctx, req.AccountID, req.Currency)
			return wallet, err
		}
		c, err := money.Lookup(req.Currency)
		if err != nil {
			return nil, types.WrapError(types.ErrValidation, "unsupported currency", err)
		}
		wallet, err := s.repo.FindWallet(ctx, req.AccountID, c.Code)
		if err != nil {
			return nil, translate(err)
		}
		return wallet, nil
	}

	wallet, err := s.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if req.AccountID != "" && wallet.AccountID != req.AccountID {
		return nil, types.NewError(types.ErrWalletNotFound, "wallet not found")
	}
	if req.Currency != "" {
		if c, err := money.Lookup(req.Currency); err != nil || c.Code != wallet.Currency {
			return nil, types.NewError(types.ErrValidation, fmt.Sprintf("wallet holds %s", wallet.Currency))
		}
	}
	return wallet, nil
}

// CommitSettlement records a committed game result and its payout credit, if any,
// as one atomic write against the wallet.
func (s *Service) CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction) (*entities.GameResult, error) {
	var committed *entities.GameResult
	err := s.withRetry(ctx, result.WalletID, func(wallet *entities.Wallet) error {
		var err error
		committed, err = s.repo.CommitSettlement(ctx, result, credit, wallet.Version)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Debug("committed result %s on wallet %s, payout %d", committed.ID, committed.WalletID, committed.Payout)
	return committed, nil
}

// RecordFailedResult persists a result for a bet that could not be settled
func (s *Service) RecordFailedResult(ctx context.Context, result *entities.GameResult) error {
	unlock := s.locks.Lock(result.WalletID)
	defer unlock()

	if err := s.repo.RecordFailedResult(ctx, result); err != nil {
		return translate(err)
	}

	s.logger.Warn("recorded failed result %s for account %s: %s", result.ID, result.AccountID, result.FailureReason)
	return nil
}

// Compensate refunds the bet debit of a failed result and marks it compensated.
// Compensating an already compensated result returns the original refund.
func (s *Service) Compensate(ctx context.Context, resultID, reason string) (*entities.Transaction, error) {
	result, err := s.repo.GetGameResult(ctx, resultID)
	if err != nil {
		return nil, translate(err)
	}

	refundKey := RefundKey(result.IdempotencyKey)
	switch result.Status {
	case entities.ResultStatusCompensated:
		refund, err := s.repo.GetTransactionByKey(ctx, result.AccountID, refundKey)
		if err != nil {
			return nil, translate(err)
		}
		return refund, nil
	case entities.ResultStatusCommitted:
		return nil, types.NewError(types.ErrCompensationNotNeeded, "result was committed").WithResult(resultID)
	}

	linked, err := s.repo.GetTransactionsByResult(ctx, resultID)
	if err != nil {
		return nil, translate(err)
	}
	var debit *entities.Transaction
	for _, tx := range linked {
		if tx.Type == entities.TransactionTypeBetDebit {
			debit = tx
			break
		}
	}
	if debit == nil {
		return nil, types.NewError(types.ErrCompensationNotNeeded, "no funds were reserved for this result").WithResult(resultID)
	}

	var refund *entities.Transaction
	err = s.withRetry(ctx, result.WalletID, func(wallet *entities.Wallet) error {
		tx := &entities.Transaction{
			Type:           entities.TransactionTypeBetRefund,
			Amount:         -debit.Amount,
			IdempotencyKey: refundKey,
			RequestHash:    result.RequestHash,
			Details: &entities.RefundDetails{
				RefundedTransactionID: debit.ID,
				Reason:                reason,
			},
		}

		var err error
		refund, err = s.repo.CompensateResult(ctx, resultID, tx, wallet.Version)
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) && refund != nil {
			return nil
		}
		return err
	})
	if errors.Is(err, ledger.ErrResultNotFailed) {
		return nil, types.WrapError(types.ErrCompensationNotNeeded, "result is no longer failed", err).WithResult(resultID)
	}
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("refunded %d to wallet %s for failed result %s", refund.Amount, refund.WalletID, resultID)
	return refund, nil
}

// Reconcile checks that the stored balance equals the sum of the wallet's ledger
func (s *Service) Reconcile(ctx context.Context, walletID string) (*ReconcileReport, error) {
	unlock := s.locks.Lock(walletID)
	defer unlock()

	wallet, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, translate(err)
	}
	sum, err := s.repo.SumTransactions(ctx, walletID)
	if err != nil {
		return nil, translate(err)
	}

	report := &ReconcileReport{
		WalletID:   walletID,
		Currency:   wallet.Currency,
		Balance:    wallet.Balance,
		LedgerSum:  sum,
		Consistent: wallet.Balance == sum,
	}
	if !report.Consistent {
		s.logger.Error("wallet %s balance %d does not match ledger sum %d", walletID, wallet.Balance, sum)
		return report, types.NewError(types.ErrLedgerMismatch, fmt.Sprintf("balance %d differs from ledger sum %d", wallet.Balance, sum))
	}
	return report, nil
}

// GetRecentTransactions retrieves recent transactions of a wallet, newest first
func (s *Service) GetRecentTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	transactions, err := s.repo.GetTransactions(ctx, walletID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return transactions, nil
}

// GetTransactionsByResult retrieves the transactions linked to a game result
func (s *Service) GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error) {
	transactions, err := s.repo.GetTransactionsByResult(ctx, resultID)
	if err != nil {
		return nil, translate(err)
	}
	return transactions, nil
}

// GetTransactionByKey retrieves the transaction an account recorded under a key
func (s *Service) GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error) {
	tx, err := s.repo.GetTransactionByKey(ctx, accountID, idempotencyKey)
	if err != nil {
		return nil, translate(err)
	}
	return tx, nil
}

// GetGameResult retrieves a game result by ID
func (s *Service) GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error) {
	result, err := s.repo.GetGameResult(ctx, resultID)
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// GetGameResultByKey retrieves the game result an account recorded under a key
func (s *Service) GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error) {
	result, err := s.repo.GetGameResultByKey(ctx, accountID, idempotencyKey)
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// GetAccountResults retrieves recent game results of an account, newest first
func (s *Service) GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error) {
	results, err := s.repo.GetAccountResults(ctx, accountID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return results, nil
}

// GetFailedResults retrieves failed results awaiting compensation
func (s *Service) GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error) {
	results, err := s.repo.GetFailedResults(ctx, limit)
	if err != nil {
		return nil, translate(err)
	}
	return results, nil
}

// GetOrphanedDebits retrieves bet debits older than before that never got a result
func (s *Service) GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error) {
	debits, err := s.repo.GetOrphanedDebits(ctx, before, limit)
	if err != nil {
		return nil, translate(err)
	}
	return debits, nil
}

// withRetry runs fn against a fresh read of the wallet while holding the wallet's
// lock, retrying when the store reports a version conflict. Errors from fn are
// returned untranslated.
func (s *Service) withRetry(ctx context.Context, walletID string, fn func(wallet *entities.Wallet) error) error {
	unlock := s.locks.Lock(walletID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		wallet, err := s.repo.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}

		err = fn(wallet)
		if !errors.Is(err, ledger.ErrVersionConflict) {
			return err
		}
		lastErr = err
		s.logger.Debug("version conflict on wallet %s, attempt %d", walletID, attempt+1)
	}

	conflict := types.WrapError(types.ErrLedgerWriteConflict, fmt.Sprintf("gave up after %d attempts", s.maxRetries+1), lastErr)
	return types.WrapError(types.ErrBusy, "wallet is busy, retry later", conflict)
}

// translate maps store errors onto service error codes. The store error stays in
// the chain so errors.Is keeps working for callers.
func translate(err error) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}

	switch {
	case errors.Is(err, ledger.ErrWalletNotFound):
		return types.WrapError(types.ErrWalletNotFound, "wallet not found", err)
	case errors.Is(err, ledger.ErrWalletClosed):
		return types.WrapError(types.ErrWalletClosed, "wallet is closed", err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return types.WrapError(types.ErrInsufficientFunds, "insufficient funds", err)
	case errors.Is(err, ledger.ErrBalanceOverflow):
		return types.WrapError(types.ErrValidation, "amount would overflow the balance", err)
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey), errors.Is(err, ledger.ErrResultExists):
		return types.WrapError(types.ErrDuplicateIdempotency, "idempotency key already used", err)
	case errors.Is(err, ledger.ErrVersionConflict):
		return types.WrapError(types.ErrLedgerWriteConflict, "wallet changed concurrently", err)
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return types.WrapError(types.ErrTxNotFound, "transaction not found", err)
	case errors.Is(err, ledger.ErrResultNotFound):
		return types.WrapError(types.ErrResultNotFound, "game result not found", err)
	case errors.Is(err, ledger.ErrResultNotFailed):
		return types.WrapError(types.ErrCompensationNotNeeded, "game result is not failed", err)
	case errors.Is(err, ledger.ErrWalletNotEmpty):
		return types.WrapError(types.ErrValidation, "wallet balance must be zero", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.WrapError(types.ErrPersistenceFailure, "request ended before the write completed", err)
	default:
		return types.WrapError(types.ErrPersistenceFailure, "ledger store failed", err)
	}
}
