package entities

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TransactionDetails defines what type-specific transaction details must provide
type TransactionDetails interface {
	// Kind returns the transaction type these details belong to
	Kind() TransactionType
	// ValidateDetails ensures the details are valid for the transaction type
	ValidateDetails() error
}

// BetDetails describes a bet debit
type BetDetails struct {
	GameID string `json:"game_id"`
}

func (d *BetDetails) Kind() TransactionType { return TransactionTypeBetDebit }

func (d *BetDetails) ValidateDetails() error {
	if d.GameID == "" {
		return errors.New("bet details require a game id")
	}
	return nil
}

// PayoutDetails describes a payout credit
type PayoutDetails struct {
	GameID    string  `json:"game_id"`
	Outcome   Outcome `json:"outcome"`
	BetAmount int64   `json:"bet_amount"`
}

func (d *PayoutDetails) Kind() TransactionType { return TransactionTypePayoutCredit }

func (d *PayoutDetails) ValidateDetails() error {
	if d.GameID == "" {
		return errors.New("payout details require a game id")
	}
	if len(d.Outcome) == 0 {
		return errors.New("payout details require an outcome")
	}
	return nil
}

// TransferDetails describes a deposit or withdrawal made outside of play
type TransferDetails struct {
	Direction TransactionType `json:"direction"`
	Reference string          `json:"reference,omitempty"` // external payment reference
	Note      string          `json:"note,omitempty"`
}

func (d *TransferDetails) Kind() TransactionType { return d.Direction }

func (d *TransferDetails) ValidateDetails() error {
	if d.Direction != TransactionTypeDeposit && d.Direction != TransactionTypeWithdrawal {
		return fmt.Errorf("invalid transfer direction %q", d.Direction)
	}
	return nil
}

// RefundDetails describes a compensating refund of a failed bet
type RefundDetails struct {
	RefundedTransactionID string `json:"refunded_transaction_id"`
	Reason                string `json:"reason"`
}

func (d *RefundDetails) Kind() TransactionType { return TransactionTypeBetRefund }

func (d *RefundDetails) ValidateDetails() error {
	if d.RefundedTransactionID == "" {
		return errors.New("refund details require the refunded transaction id")
	}
	return nil
}

// MarshalDetails serializes details for storage. Nil details encode as null.
func MarshalDetails(details TransactionDetails) ([]byte, error) {
	if details == nil {
		return []byte("null"), nil
	}
	return json.Marshal(details)
}

// UnmarshalDetails decodes stored details using the transaction type as the tag
func UnmarshalDetails(kind TransactionType, data []byte) (TransactionDetails, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var details TransactionDetails
	switch kind {
	case TransactionTypeBetDebit:
		details = &BetDetails{}
	case TransactionTypePayoutCredit:
		details = &PayoutDetails{}
	case TransactionTypeDeposit, TransactionTypeWithdrawal:
		details = &TransferDetails{}
	case TransactionTypeBetRefund:
		details = &RefundDetails{}
	default:
		return nil, fmt.Errorf("unknown transaction type %q", kind)
	}

	if err := json.Unmarshal(data, details); err != nil {
		return nil, fmt.Errorf("error decoding %s details: %w", kind, err)
	}
	return details, nil
}
