package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/google/uuid"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	wallets        map[string]*entities.Wallet
	walletIndex    map[string]string // account+currency -> wallet id
	transactions   map[string][]*entities.Transaction
	txByKey        map[string]*entities.Transaction
	results        map[string]*entities.GameResult
	resultByKey    map[string]string
	resultOrder    []string
	accountResults map[string][]string
	mu             sync.RWMutex
}

// NewMemoryRepository creates a new in-memory ledger repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets:        make(map[string]*entities.Wallet),
		walletIndex:    make(map[string]string),
		transactions:   make(map[string][]*entities.Transaction),
		txByKey:        make(map[string]*entities.Transaction),
		results:        make(map[string]*entities.GameResult),
		resultByKey:    make(map[string]string),
		accountResults: make(map[string][]string),
	}
}

// CreateWallet stores a new wallet
func (r *MemoryRepository) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := accountKey(wallet.AccountID, wallet.Currency)
	if _, exists := r.walletIndex[index]; exists {
		return ErrWalletExists
	}

	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	if _, exists := r.wallets[wallet.ID]; exists {
		return ErrWalletExists
	}
	ts := now()
	wallet.Balance = 0
	wallet.Version = 0
	wallet.Status = entities.WalletStatusOpen
	wallet.CreatedAt = ts
	wallet.LastUpdated = ts

	r.wallets[wallet.ID] = copyWallet(wallet)
	r.walletIndex[index] = wallet.ID
	return nil
}

// GetWallet retrieves a wallet by ID
func (r *MemoryRepository) GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallet, exists := r.wallets[walletID]
	if !exists {
		return nil, ErrWalletNotFound
	}
	return copyWallet(wallet), nil
}

// FindWallet retrieves the wallet an account holds in a currency
func (r *MemoryRepository) FindWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.walletIndex[accountKey(accountID, currency)]
	if !exists {
		return nil, ErrWalletNotFound
	}
	return copyWallet(r.wallets[id]), nil
}

// ListWallets retrieves every wallet held by an account
func (r *MemoryRepository) ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallets := make([]*entities.Wallet, 0)
	for _, wallet := range r.wallets {
		if wallet.AccountID == accountID {
			wallets = append(wallets, copyWallet(wallet))
		}
	}
	return wallets, nil
}

// CloseWallet marks an empty wallet closed
func (r *MemoryRepository) CloseWallet(ctx context.Context, walletID string, expectedVersion int64) (*entities.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallet, exists := r.wallets[walletID]
	if !exists {
		return nil, ErrWalletNotFound
	}
	if err := checkWritable(wallet, expectedVersion); err != nil {
		return nil, err
	}
	if wallet.Balance != 0 {
		return nil, ErrWalletNotEmpty
	}
	for _, tx := range r.transactions[walletID] {
		if tx.Type != entities.TransactionTypeBetDebit {
			continue
		}
		if result, settled := r.results[tx.ResultID]; !settled || result.Status == entities.ResultStatusFailed {
			return nil, ErrUnsettledBets
		}
	}

	wallet.Status = entities.WalletStatusClosed
	wallet.Version++
	wallet.LastUpdated = now()
	return copyWallet(wallet), nil
}

// AppendTransaction applies and records a transaction
func (r *MemoryRepository) AppendTransaction(ctx context.Context, tx *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, dup := r.duplicateLocked(tx); dup {
		return existing, ErrDuplicateIdempotencyKey
	}
	if err := r.applyLocked(tx, expectedVersion, now()); err != nil {
		return nil, err
	}
	return copyTransaction(tx), nil
}

// CommitSettlement records a committed result and its optional credit
func (r *MemoryRepository) CommitSettlement(ctx context.Context, result *entities.GameResult, credit *entities.Transaction, expectedVersion int64) (*entities.GameResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resultExistsLocked(result) {
		return nil, ErrResultExists
	}

	wallet, exists := r.wallets[result.WalletID]
	if !exists {
		return nil, ErrWalletNotFound
	}

	ts := now()
	if credit != nil {
		if _, dup := r.duplicateLocked(credit); dup {
			return nil, ErrDuplicateIdempotencyKey
		}
		credit.WalletID = result.WalletID
		credit.ResultID = result.ID
		if err := r.applyLocked(credit, expectedVersion, ts); err != nil {
			return nil, err
		}
	}

	prepareResult(result, entities.ResultStatusCommitted, ts)
	result.BalanceAfter = wallet.Balance
	r.storeResultLocked(result)

	return copyResult(result), nil
}

// RecordFailedResult records a failed result without touching the balance
func (r *MemoryRepository) RecordFailedResult(ctx context.Context, result *entities.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resultExistsLocked(result) {
		return ErrResultExists
	}
	wallet, exists := r.wallets[result.WalletID]
	if !exists {
		return ErrWalletNotFound
	}

	prepareResult(result, entities.ResultStatusFailed, now())
	result.BalanceAfter = wallet.Balance
	r.storeResultLocked(result)
	return nil
}

// CompensateResult refunds a failed result and marks it compensated
func (r *MemoryRepository) CompensateResult(ctx context.Context, resultID string, refund *entities.Transaction, expectedVersion int64) (*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, exists := r.results[resultID]
	if !exists {
		return nil, ErrResultNotFound
	}
	refund.WalletID = result.WalletID
	if existing, dup := r.duplicateLocked(refund); dup {
		return existing, ErrDuplicateIdempotencyKey
	}
	if result.Status != entities.ResultStatusFailed {
		return nil, ErrResultNotFailed
	}

	refund.ResultID = resultID
	if err := r.applyLocked(refund, expectedVersion, now()); err != nil {
		return nil, err
	}

	result.Status = entities.ResultStatusCompensated
	result.BalanceAfter = refund.BalanceAfter
	return copyTransaction(refund), nil
}

// GetTransactionByKey retrieves the transaction an account recorded under a key
func (r *MemoryRepository) GetTransactionByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.txByKey[accountKey(accountID, idempotencyKey)]
	if !exists {
		return nil, ErrTransactionNotFound
	}
	return copyTransaction(tx), nil
}

// GetTransactions retrieves recent transactions for a wallet, newest first
func (r *MemoryRepository) GetTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error) {
	return r.filterTransactions(walletID, limit, func(*entities.Transaction) bool { return true })
}

// GetTransactionsByType retrieves recent transactions of a specific type, newest first
func (r *MemoryRepository) GetTransactionsByType(ctx context.Context, walletID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error) {
	return r.filterTransactions(walletID, limit, func(tx *entities.Transaction) bool {
		return tx.Type == transactionType
	})
}

func (r *MemoryRepository) filterTransactions(walletID string, limit int, keep func(*entities.Transaction) bool) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.wallets[walletID]; !exists {
		return nil, ErrWalletNotFound
	}

	limit = clampLimit(limit)
	transactions := r.transactions[walletID]
	filtered := make([]*entities.Transaction, 0)
	for i := len(transactions) - 1; i >= 0 && len(filtered) < limit; i-- {
		if keep(transactions[i]) {
			filtered = append(filtered, copyTransaction(transactions[i]))
		}
	}
	return filtered, nil
}

// GetTransactionsByResult retrieves the transactions that reference a game result
func (r *MemoryRepository) GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*entities.Transaction, 0)
	for _, transactions := range r.transactions {
		for _, tx := range transactions {
			if tx.ResultID == resultID {
				matched = append(matched, copyTransaction(tx))
			}
		}
	}
	sortTransactions(matched)
	return matched, nil
}

// SumTransactions returns the sum of every transaction amount of a wallet
func (r *MemoryRepository) SumTransactions(ctx context.Context, walletID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.wallets[walletID]; !exists {
		return 0, ErrWalletNotFound
	}

	var sum int64
	for _, tx := range r.transactions[walletID] {
		sum += tx.Amount
	}
	return sum, nil
}

// GetGameResult retrieves a game result by ID
func (r *MemoryRepository) GetGameResult(ctx context.Context, resultID string) (*entities.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, exists := r.results[resultID]
	if !exists {
		return nil, ErrResultNotFound
	}
	return copyResult(result), nil
}

// GetGameResultByKey retrieves the game result an account recorded under a key
func (r *MemoryRepository) GetGameResultByKey(ctx context.Context, accountID, idempotencyKey string) (*entities.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.resultByKey[accountKey(accountID, idempotencyKey)]
	if !exists {
		return nil, ErrResultNotFound
	}
	return copyResult(r.results[id]), nil
}

// GetAccountResults retrieves recent game results for an account, newest first
func (r *MemoryRepository) GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit = clampLimit(limit)
	ids := r.accountResults[accountID]
	results := make([]*entities.GameResult, 0)
	for i := len(ids) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, copyResult(r.results[ids[i]]))
	}
	return results, nil
}

// GetFailedResults retrieves failed results awaiting compensation, oldest first
func (r *MemoryRepository) GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit = clampLimit(limit)
	results := make([]*entities.GameResult, 0)
	for _, id := range r.resultOrder {
		if len(results) >= limit {
			break
		}
		if result := r.results[id]; result.Status == entities.ResultStatusFailed {
			results = append(results, copyResult(result))
		}
	}
	return results, nil
}

// GetOrphanedDebits retrieves bet debits older than before that have no game result
func (r *MemoryRepository) GetOrphanedDebits(ctx context.Context, before time.Time, limit int) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit = clampLimit(limit)
	orphans := make([]*entities.Transaction, 0)
	for _, transactions := range r.transactions {
		for _, tx := range transactions {
			if tx.Type != entities.TransactionTypeBetDebit || !tx.Timestamp.Before(before) {
				continue
			}
			if _, settled := r.results[tx.ResultID]; settled {
				continue
			}
			orphans = append(orphans, copyTransaction(tx))
		}
	}
	sortTransactions(orphans)
	if len(orphans) > limit {
		orphans = orphans[:limit]
	}
	return orphans, nil
}

// duplicateLocked returns the stored transaction if tx's key was already used
func (r *MemoryRepository) duplicateLocked(tx *entities.Transaction) (*entities.Transaction, bool) {
	wallet, exists := r.wallets[tx.WalletID]
	if !exists {
		return nil, false
	}
	existing, dup := r.txByKey[accountKey(wallet.AccountID, tx.IdempotencyKey)]
	if !dup {
		return nil, false
	}
	return copyTransaction(existing), true
}

// applyLocked checks and applies tx against its wallet
func (r *MemoryRepository) applyLocked(tx *entities.Transaction, expectedVersion int64, ts time.Time) error {
	wallet, exists := r.wallets[tx.WalletID]
	if !exists {
		return ErrWalletNotFound
	}
	if err := checkWritable(wallet, expectedVersion); err != nil {
		return err
	}
	if _, err := encodeTransaction(tx); err != nil {
		return err
	}
	balance, err := nextBalance(wallet.Balance, tx.Amount)
	if err != nil {
		return err
	}

	wallet.Balance = balance
	wallet.Version++
	wallet.LastUpdated = ts

	prepareTransaction(tx, wallet, balance, ts)
	stored := copyTransaction(tx)
	r.transactions[wallet.ID] = append(r.transactions[wallet.ID], stored)
	r.txByKey[accountKey(wallet.AccountID, tx.IdempotencyKey)] = stored
	return nil
}

func (r *MemoryRepository) resultExistsLocked(result *entities.GameResult) bool {
	if _, exists := r.results[result.ID]; exists && result.ID != "" {
		return true
	}
	_, exists := r.resultByKey[accountKey(result.AccountID, result.IdempotencyKey)]
	return exists
}

func (r *MemoryRepository) storeResultLocked(result *entities.GameResult) {
	stored := copyResult(result)
	r.results[result.ID] = stored
	r.resultByKey[accountKey(result.AccountID, result.IdempotencyKey)] = result.ID
	r.resultOrder = append(r.resultOrder, result.ID)
	r.accountResults[result.AccountID] = append(r.accountResults[result.AccountID], result.ID)
}
