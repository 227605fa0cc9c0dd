package analytics

import (
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
)

// esResult is a settled round as stored in Elasticsearch
type esResult struct {
	ResultID       string    `json:"result_id"`
	AccountID      string    `json:"account_id"`
	WalletID       string    `json:"wallet_id"`
	GameID         string    `json:"game_id"`
	Currency       string    `json:"currency"`
	Bet            int64     `json:"bet"`
	Payout         int64     `json:"payout"`
	Net            int64     `json:"net"`
	Outcome        []string  `json:"outcome"`
	Win            bool      `json:"win"`
	BonusTriggered bool      `json:"bonus_triggered"`
	Status         string    `json:"status"`
	SettledAt      time.Time `json:"settled_at"`
}

func newESResult(r *entities.GameResult) *esResult {
	return &esResult{
		ResultID:       r.ID,
		AccountID:      r.AccountID,
		WalletID:       r.WalletID,
		GameID:         r.GameID,
		Currency:       r.Currency,
		Bet:            r.Bet,
		Payout:         r.Payout,
		Net:            r.Payout - r.Bet,
		Outcome:        r.Outcome,
		Win:            r.IsWin(),
		BonusTriggered: r.BonusTriggered,
		Status:         string(r.Status),
		SettledAt:      r.Timestamp,
	}
}

const resultMapping = `{
	"mappings": {
		"properties": {
			"result_id": { "type": "keyword" },
			"account_id": { "type": "keyword" },
			"wallet_id": { "type": "keyword" },
			"game_id": { "type": "keyword" },
			"currency": { "type": "keyword" },
			"bet": { "type": "long" },
			"payout": { "type": "long" },
			"net": { "type": "long" },
			"outcome": { "type": "keyword" },
			"win": { "type": "boolean" },
			"bonus_triggered": { "type": "boolean" },
			"status": { "type": "keyword" },
			"settled_at": { "type": "date" }
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 1,
		"refresh_interval": "1s"
	}
}`
