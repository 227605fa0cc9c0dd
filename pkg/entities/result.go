package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Outcome is the ordered sequence of symbols drawn for a spin, one per reel
type Outcome []string

// AllMatch reports whether every reel shows the same symbol
func (o Outcome) AllMatch() bool {
	if len(o) == 0 {
		return false
	}
	for _, symbol := range o[1:] {
		if symbol != o[0] {
			return false
		}
	}
	return true
}

// ResultStatus represents the terminal state of a settled bet
type ResultStatus string

const (
	ResultStatusCommitted   ResultStatus = "committed"
	ResultStatusFailed      ResultStatus = "failed"
	ResultStatusCompensated ResultStatus = "compensated"
)

// GameResult is the persisted record of a single settled bet
type GameResult struct {
	ID             string
	AccountID      string
	WalletID       string
	GameID         string
	Currency       string
	Bet            int64
	Outcome        Outcome // empty when the bet failed before the draw
	Payout         int64
	BalanceAfter   int64 // wallet balance once the result was written
	BonusTriggered bool
	Status         ResultStatus
	FailureReason  string
	IdempotencyKey string
	RequestHash    string
	Timestamp      time.Time
}

// IsWin returns true if the result paid anything back
func (r *GameResult) IsWin() bool {
	return r.Status == ResultStatusCommitted && r.Payout > 0
}

// IsJackpot returns true if every reel matched
func (r *GameResult) IsJackpot() bool {
	return r.Status == ResultStatusCommitted && r.Outcome.AllMatch()
}

// BetRequest is the input to a settlement
type BetRequest struct {
	AccountID      string
	WalletID       string
	GameID         string
	Amount         int64 // Bet in minor units
	Currency       string
	IdempotencyKey string
}

// Fingerprint identifies the payload of the request, independent of the key.
// A key reused with a different fingerprint is rejected.
func (b *BetRequest) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("bet|%s|%s|%d|%s", b.WalletID, b.GameID, b.Amount, b.Currency)))
	return hex.EncodeToString(sum[:])
}

// SettlementState is a step of the per-bet state machine
type SettlementState string

const (
	StateValidated      SettlementState = "validated"
	StateFundsReserved  SettlementState = "funds_reserved"
	StateOutcomeDrawn   SettlementState = "outcome_drawn"
	StatePayoutComputed SettlementState = "payout_computed"
	StateCommitted      SettlementState = "committed"
	StateRejected       SettlementState = "rejected"
	StateFailed         SettlementState = "failed"
)

// Receipt is returned to the caller of a settlement
type Receipt struct {
	ResultID             string    `json:"result_id"`
	AccountID            string    `json:"account_id"`
	WalletID             string    `json:"wallet_id"`
	GameID               string    `json:"game_id"`
	Currency             string    `json:"currency"`
	Bet                  int64     `json:"bet"`
	Outcome              Outcome   `json:"outcome"`
	Payout               int64     `json:"payout"`
	NewBalance           int64     `json:"new_balance"`
	BonusTriggered       bool      `json:"bonus_triggered"`
	AchievementsUnlocked []string  `json:"achievements_unlocked"`
	Replayed             bool      `json:"replayed"`
	SettledAt            time.Time `json:"settled_at"`
}

// NewReceipt builds a receipt from a committed result
func NewReceipt(result *GameResult, achievements []string) *Receipt {
	if achievements == nil {
		achievements = []string{}
	}
	return &Receipt{
		ResultID:             result.ID,
		AccountID:            result.AccountID,
		WalletID:             result.WalletID,
		GameID:               result.GameID,
		Currency:             result.Currency,
		Bet:                  result.Bet,
		Outcome:              result.Outcome,
		Payout:               result.Payout,
		NewBalance:           result.BalanceAfter,
		BonusTriggered:       result.BonusTriggered,
		AchievementsUnlocked: achievements,
		SettledAt:            result.Timestamp,
	}
}
