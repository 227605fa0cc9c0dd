package entities

import (
	"time"
)

// WalletStatus represents whether a wallet still accepts transactions
type WalletStatus string

const (
	WalletStatusOpen   WalletStatus = "open"
	WalletStatusClosed WalletStatus = "closed"
)

// Wallet holds an account's balance in a single currency
type Wallet struct {
	ID          string       // Unique identifier
	AccountID   string       // Owning account
	Currency    string       // ISO-style currency code, e.g. USD
	Balance     int64        // Current balance in minor units
	Version     int64        // Incremented on every applied transaction
	Status      WalletStatus // Open or closed
	CreatedAt   time.Time    // When the wallet was opened
	LastUpdated time.Time    // When the wallet was last updated
}

// IsClosed reports whether the wallet rejects further mutation
func (w *Wallet) IsClosed() bool {
	return w.Status == WalletStatusClosed
}

// TransactionType represents the type of wallet transaction
type TransactionType string

const (
	TransactionTypeBetDebit     TransactionType = "bet_debit"
	TransactionTypePayoutCredit TransactionType = "payout_credit"
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypeBetRefund    TransactionType = "bet_refund"
)

// IsDebit reports whether transactions of this type remove funds
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeBetDebit || t == TransactionTypeWithdrawal
}

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction represents a single ledger entry. Entries are append-only.
type Transaction struct {
	ID             string             // Unique identifier
	AccountID      string             // Account the wallet belongs to
	WalletID       string             // Wallet the entry applies to
	Type           TransactionType    // Type of transaction
	Amount         int64              // Signed amount in minor units (negative for debits)
	BalanceAfter   int64              // Wallet balance after this entry was applied
	ResultID       string             // Related game result, empty for deposits and withdrawals
	IdempotencyKey string             // Unique per account
	RequestHash    string             // Fingerprint of the request that produced the entry
	Status         TransactionStatus  // Completed once applied
	Details        TransactionDetails // Type-specific fields
	Timestamp      time.Time          // When the entry was applied
}
