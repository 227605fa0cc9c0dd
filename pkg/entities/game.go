package entities

import (
	"errors"
	"fmt"
)

// GameType represents the kind of game a catalog entry describes
type GameType string

const (
	GameTypeSlot  GameType = "slot"
	GameTypeOther GameType = "other"
)

// Paytable maps a symbol to its integer payout multiplier
type Paytable map[string]int64

// Game is a catalog entry. It is read-only while bets are being settled.
type Game struct {
	ID           string
	Name         string
	Type         GameType
	MinBet       int64    // Minimum bet in minor units
	MaxBet       int64    // Maximum bet in minor units
	Currencies   []string // Currencies a wallet may use to play
	Reels        int      // Number of reels drawn per spin
	Symbols      []string // Symbol set every reel draws from
	Paytable     Paytable
	Achievements []*AchievementDefinition
}

// AcceptsCurrency reports whether wallets in the given currency may play this game
func (g *Game) AcceptsCurrency(currency string) bool {
	for _, c := range g.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Validate checks that the catalog entry is internally consistent
func (g *Game) Validate() error {
	if g.ID == "" {
		return errors.New("game id is required")
	}
	if g.Type != GameTypeSlot && g.Type != GameTypeOther {
		return fmt.Errorf("game %s: unknown type %q", g.ID, g.Type)
	}
	if g.MinBet < 1 {
		return fmt.Errorf("game %s: min bet must be at least 1", g.ID)
	}
	if g.MaxBet < g.MinBet {
		return fmt.Errorf("game %s: max bet %d is below min bet %d", g.ID, g.MaxBet, g.MinBet)
	}
	if len(g.Currencies) == 0 {
		return fmt.Errorf("game %s: at least one currency is required", g.ID)
	}
	if g.Reels < 1 {
		return fmt.Errorf("game %s: reel count must be at least 1", g.ID)
	}
	if len(g.Symbols) == 0 {
		return fmt.Errorf("game %s: symbol set is empty", g.ID)
	}

	seen := make(map[string]bool, len(g.Symbols))
	for _, symbol := range g.Symbols {
		if symbol == "" {
			return fmt.Errorf("game %s: empty symbol", g.ID)
		}
		if seen[symbol] {
			return fmt.Errorf("game %s: duplicate symbol %q", g.ID, symbol)
		}
		seen[symbol] = true
	}
	for symbol, multiplier := range g.Paytable {
		if !seen[symbol] {
			return fmt.Errorf("game %s: paytable symbol %q is not in the symbol set", g.ID, symbol)
		}
		if multiplier < 0 {
			return fmt.Errorf("game %s: negative multiplier for %q", g.ID, symbol)
		}
	}

	ids := make(map[string]bool, len(g.Achievements))
	for _, achievement := range g.Achievements {
		if err := achievement.Validate(); err != nil {
			return fmt.Errorf("game %s: %w", g.ID, err)
		}
		if ids[achievement.ID] {
			return fmt.Errorf("game %s: duplicate achievement %q", g.ID, achievement.ID)
		}
		ids[achievement.ID] = true
	}

	return nil
}
