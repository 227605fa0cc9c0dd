package api

import (
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/money"
)

// Amounts cross the API as decimal strings in major units, e.g. "10.50"

type betRequest struct {
	WalletID string `json:"wallet_id"`
	GameID   string `json:"game_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type openWalletRequest struct {
	Currency string `json:"currency"`
}

type transferRequest struct {
	Currency  string `json:"currency,omitempty"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note,omitempty"`
}

type compensateRequest struct {
	Reason string `json:"reason,omitempty"`
}

type receiptResponse struct {
	ResultID             string           `json:"result_id"`
	WalletID             string           `json:"wallet_id"`
	GameID               string           `json:"game_id"`
	Currency             string           `json:"currency"`
	Bet                  string           `json:"bet"`
	Outcome              entities.Outcome `json:"outcome"`
	Payout               string           `json:"payout"`
	NewBalance           string           `json:"new_balance"`
	BonusTriggered       bool             `json:"bonus_triggered"`
	AchievementsUnlocked []string         `json:"achievements_unlocked"`
	Replayed             bool             `json:"replayed"`
	SettledAt            time.Time        `json:"settled_at"`
}

func newReceiptResponse(r *entities.Receipt) *receiptResponse {
	return &receiptResponse{
		ResultID:             r.ResultID,
		WalletID:             r.WalletID,
		GameID:               r.GameID,
		Currency:             r.Currency,
		Bet:                  money.Format(r.Bet, r.Currency),
		Outcome:              r.Outcome,
		Payout:               money.Format(r.Payout, r.Currency),
		NewBalance:           money.Format(r.NewBalance, r.Currency),
		BonusTriggered:       r.BonusTriggered,
		AchievementsUnlocked: r.AchievementsUnlocked,
		Replayed:             r.Replayed,
		SettledAt:            r.SettledAt,
	}
}

type walletResponse struct {
	ID          string                `json:"id"`
	AccountID   string                `json:"account_id"`
	Currency    string                `json:"currency"`
	Balance     string                `json:"balance"`
	Status      entities.WalletStatus `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	LastUpdated time.Time             `json:"last_updated"`
}

func newWalletResponse(w *entities.Wallet) *walletResponse {
	return &walletResponse{
		ID:          w.ID,
		AccountID:   w.AccountID,
		Currency:    w.Currency,
		Balance:     money.Format(w.Balance, w.Currency),
		Status:      w.Status,
		CreatedAt:   w.CreatedAt,
		LastUpdated: w.LastUpdated,
	}
}

type transactionResponse struct {
	ID             string                      `json:"id"`
	WalletID       string                      `json:"wallet_id"`
	Type           entities.TransactionType    `json:"type"`
	Amount         string                      `json:"amount"`
	BalanceAfter   string                      `json:"balance_after"`
	ResultID       string                      `json:"result_id,omitempty"`
	IdempotencyKey string                      `json:"idempotency_key"`
	Status         entities.TransactionStatus  `json:"status"`
	Details        entities.TransactionDetails `json:"details,omitempty"`
	Timestamp      time.Time                   `json:"timestamp"`
}

func newTransactionResponse(tx *entities.Transaction, currency string) *transactionResponse {
	return &transactionResponse{
		ID:             tx.ID,
		WalletID:       tx.WalletID,
		Type:           tx.Type,
		Amount:         money.Format(tx.Amount, currency),
		BalanceAfter:   money.Format(tx.BalanceAfter, currency),
		ResultID:       tx.ResultID,
		IdempotencyKey: tx.IdempotencyKey,
		Status:         tx.Status,
		Details:        tx.Details,
		Timestamp:      tx.Timestamp,
	}
}

func newTransactionResponses(txs []*entities.Transaction, currency string) []*transactionResponse {
	out := make([]*transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionResponse(tx, currency))
	}
	return out
}

type resultResponse struct {
	ID             string                  `json:"id"`
	AccountID      string                  `json:"account_id"`
	WalletID       string                  `json:"wallet_id"`
	GameID         string                  `json:"game_id"`
	Currency       string                  `json:"currency"`
	Bet            string                  `json:"bet"`
	Outcome        entities.Outcome        `json:"outcome"`
	Payout         string                  `json:"payout"`
	BalanceAfter   string                  `json:"balance_after"`
	BonusTriggered bool                    `json:"bonus_triggered"`
	Status         entities.ResultStatus   `json:"status"`
	FailureReason  string                  `json:"failure_reason,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key"`
	Timestamp      time.Time               `json:"timestamp"`
	Transactions   []*transactionResponse `json:"transactions,omitempty"`
}

func newResultResponse(r *entities.GameResult) *resultResponse {
	return &resultResponse{
		ID:             r.ID,
		AccountID:      r.AccountID,
		WalletID:       r.WalletID,
		GameID:         r.GameID,
		Currency:       r.Currency,
		Bet:            money.Format(r.Bet, r.Currency),
		Outcome:        r.Outcome,
		Payout:         money.Format(r.Payout, r.Currency),
		BalanceAfter:   money.Format(r.BalanceAfter, r.Currency),
		BonusTriggered: r.BonusTriggered,
		Status:         r.Status,
		FailureReason:  r.FailureReason,
		IdempotencyKey: r.IdempotencyKey,
		Timestamp:      r.Timestamp,
	}
}

type reconcileResponse struct {
	OrphansRecovered int                    `json:"orphans_recovered"`
	Failed           []*resultResponse      `json:"failed"`
	Compensated      []*transactionResponse `json:"compensated"`
	Errors           []string               `json:"errors,omitempty"`
}

type gameResponse struct {
	ID           string                            `json:"id"`
	Name         string                            `json:"name"`
	Type         entities.GameType                 `json:"type"`
	MinBet       int64                             `json:"min_bet_minor"`
	MaxBet       int64                             `json:"max_bet_minor"`
	Currencies   []string                          `json:"currencies"`
	Reels        int                               `json:"reels"`
	Symbols      []string                          `json:"symbols"`
	Paytable     entities.Paytable                 `json:"paytable"`
	Achievements []*entities.AchievementDefinition `json:"achievements"`
}

func newGameResponse(g *entities.Game) *gameResponse {
	return &gameResponse{
		ID:           g.ID,
		Name:         g.Name,
		Type:         g.Type,
		MinBet:       g.MinBet,
		MaxBet:       g.MaxBet,
		Currencies:   g.Currencies,
		Reels:        g.Reels,
		Symbols:      g.Symbols,
		Paytable:     g.Paytable,
		Achievements: g.Achievements,
	}
}

type rtpResponse struct {
	GameID         string  `json:"game_id"`
	ExpectedReturn float64 `json:"expected_return"`
	HouseEdge      float64 `json:"house_edge"`
}
