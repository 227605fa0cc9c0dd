// Package paytable turns a drawn outcome into a payout.
//
// Line-pay policy:
//   - every reel shows the same symbol: bet * multiplier[symbol]
//   - exactly two distinct symbols: bet * multiplier[majority] / 2, where the
//     majority is the symbol seen most often and ties go to the symbol seen first
//   - anything else pays nothing
//
// All arithmetic is int64 in minor units. Division truncates toward zero.
// A symbol with no paytable entry has multiplier 0.
package paytable

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fadedpez/spinz/pkg/entities"
)

var (
	ErrEmptyOutcome       = errors.New("outcome has no symbols")
	ErrNegativeBet        = errors.New("bet cannot be negative")
	ErrPayoutOverflow     = errors.New("payout overflows int64")
	ErrInvalidReels       = errors.New("reel count must be at least 1")
	ErrInvalidProbability = errors.New("symbol probabilities must be non-negative")
)

// Ratio returns the payout multiplier for outcome as the exact fraction num/den
func Ratio(outcome entities.Outcome, table entities.Paytable) (num, den int64, err error) {
	if len(outcome) == 0 {
		return 0, 1, ErrEmptyOutcome
	}

	// count occurrences, remembering first-seen order for the tie-break
	counts := make(map[string]int, len(outcome))
	order := make([]string, 0, len(outcome))
	for _, symbol := range outcome {
		if counts[symbol] == 0 {
			order = append(order, symbol)
		}
		counts[symbol]++
	}

	switch len(order) {
	case 1:
		return table[order[0]], 1, nil
	case 2:
		majority := order[0]
		if counts[order[1]] > counts[majority] {
			majority = order[1]
		}
		return table[majority], 2, nil
	default:
		return 0, 1, nil
	}
}

// Evaluate returns the payout for bet on outcome
func Evaluate(bet int64, outcome entities.Outcome, table entities.Paytable) (int64, error) {
	if bet < 0 {
		return 0, ErrNegativeBet
	}

	num, den, err := Ratio(outcome, table)
	if err != nil {
		return 0, err
	}
	if num == 0 || bet == 0 {
		return 0, nil
	}
	if bet > math.MaxInt64/num {
		return 0, fmt.Errorf("%w: %d * %d", ErrPayoutOverflow, bet, num)
	}

	return bet * num / den, nil
}

// UniformProbabilities gives every symbol the same weight
func UniformProbabilities(symbols []string) map[string]float64 {
	probs := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return probs
	}
	p := 1.0 / float64(len(symbols))
	for _, symbol := range symbols {
		probs[symbol] = p
	}
	return probs
}

// ExpectedReturn computes the long-run payout per unit bet by enumerating every
// combination of reelCount symbols. It is for reporting only and does not
// apply truncation, so it is an upper bound for small bets.
func ExpectedReturn(table entities.Paytable, probs map[string]float64, reelCount int) (float64, error) {
	if reelCount < 1 {
		return 0, ErrInvalidReels
	}

	symbols := make([]string, 0, len(probs))
	for symbol, p := range probs {
		if p < 0 {
			return 0, fmt.Errorf("%w: %s=%v", ErrInvalidProbability, symbol, p)
		}
		if p > 0 {
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		return 0, nil
	}
	sort.Strings(symbols)

	var total float64
	outcome := make(entities.Outcome, reelCount)
	digits := make([]int, reelCount)
	for {
		p := 1.0
		for reel, d := range digits {
			outcome[reel] = symbols[d]
			p *= probs[symbols[d]]
		}
		num, den, err := Ratio(outcome, table)
		if err != nil {
			return 0, err
		}
		total += p * float64(num) / float64(den)

		// advance the odometer
		reel := reelCount - 1
		for reel >= 0 {
			digits[reel]++
			if digits[reel] < len(symbols) {
				break
			}
			digits[reel] = 0
			reel--
		}
		if reel < 0 {
			break
		}
	}

	return total, nil
}
