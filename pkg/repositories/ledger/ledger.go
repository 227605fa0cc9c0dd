package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/google/uuid"
)

// ErrBalanceOverflow is returned when a credit would overflow the balance
var ErrBalanceOverflow = errors.New("balance overflow")

// checkWritable verifies the wallet may be mutated at expectedVersion
func checkWritable(wallet *entities.Wallet, expectedVersion int64) error {
	if wallet.IsClosed() {
		return ErrWalletClosed
	}
	if wallet.Version != expectedVersion {
		return ErrVersionConflict
	}
	return nil
}

// nextBalance returns the balance after applying amount
func nextBalance(balance, amount int64) (int64, error) {
	if amount > 0 && balance > math.MaxInt64-amount {
		return 0, ErrBalanceOverflow
	}
	next := balance + amount
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	return next, nil
}

// prepareTransaction fills the fields the store owns
func prepareTransaction(tx *entities.Transaction, wallet *entities.Wallet, balanceAfter int64, now time.Time) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.AccountID = wallet.AccountID
	tx.WalletID = wallet.ID
	tx.BalanceAfter = balanceAfter
	tx.Status = entities.TransactionStatusCompleted
	tx.Timestamp = now
}

// prepareResult fills the fields the store owns
func prepareResult(result *entities.GameResult, status entities.ResultStatus, now time.Time) {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.Status = status
	if result.Timestamp.IsZero() {
		result.Timestamp = now
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func accountKey(accountID, key string) string {
	return accountID + "\x00" + key
}

func copyResult(r *entities.GameResult) *entities.GameResult {
	c := *r
	c.Outcome = append(entities.Outcome(nil), r.Outcome...)
	return &c
}

func copyTransaction(tx *entities.Transaction) *entities.Transaction {
	c := *tx
	return &c
}

func copyWallet(w *entities.Wallet) *entities.Wallet {
	c := *w
	return &c
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 1000
	}
	return limit
}

// sortTransactions orders transactions oldest first
func sortTransactions(transactions []*entities.Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.Before(transactions[j].Timestamp)
	})
}

const (
	walletColumns = `id, account_id, currency, balance, version, status, created_at, updated_at`

	transactionColumns = `id, account_id, wallet_id, type, amount, balance_after, result_id,
		idempotency_key, request_hash, status, details, created_at`

	resultColumns = `id, account_id, wallet_id, game_id, currency, bet, outcome, payout,
		balance_after, bonus_triggered, status, failure_reason, idempotency_key, request_hash, created_at`
)

// rowScanner is satisfied by database/sql and pgx rows alike
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*entities.Wallet, error) {
	var w entities.Wallet
	var status string
	if err := row.Scan(&w.ID, &w.AccountID, &w.Currency, &w.Balance, &w.Version, &status, &w.CreatedAt, &w.LastUpdated); err != nil {
		return nil, err
	}
	w.Status = entities.WalletStatus(status)
	return &w, nil
}

func scanTransaction(row rowScanner) (*entities.Transaction, error) {
	var tx entities.Transaction
	var txType, status string
	var details []byte
	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.WalletID, &txType, &tx.Amount, &tx.BalanceAfter, &tx.ResultID,
		&tx.IdempotencyKey, &tx.RequestHash, &status, &details, &tx.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = entities.TransactionType(txType)
	tx.Status = entities.TransactionStatus(status)
	if tx.Details, err = entities.UnmarshalDetails(tx.Type, details); err != nil {
		return nil, err
	}
	return &tx, nil
}

func scanResult(row rowScanner) (*entities.GameResult, error) {
	var r entities.GameResult
	var outcome, status string
	err := row.Scan(
		&r.ID, &r.AccountID, &r.WalletID, &r.GameID, &r.Currency, &r.Bet, &outcome, &r.Payout,
		&r.BalanceAfter, &r.BonusTriggered, &status, &r.FailureReason, &r.IdempotencyKey, &r.RequestHash, &r.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	r.Status = entities.ResultStatus(status)
	if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
		return nil, fmt.Errorf("error decoding outcome of result %s: %w", r.ID, err)
	}
	return &r, nil
}

// encodeTransaction returns the details column value
func encodeTransaction(tx *entities.Transaction) ([]byte, error) {
	if tx.Details != nil {
		if err := tx.Details.ValidateDetails(); err != nil {
			return nil, fmt.Errorf("invalid %s details: %w", tx.Type, err)
		}
	}
	return entities.MarshalDetails(tx.Details)
}

// encodeOutcome returns the outcome column value
func encodeOutcome(outcome entities.Outcome) (string, error) {
	if outcome == nil {
		outcome = entities.Outcome{}
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return "", fmt.Errorf("error encoding outcome: %w", err)
	}
	return string(data), nil
}
