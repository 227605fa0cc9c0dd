package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fadedpez/spinz/pkg/entities"
)

var ErrGameNotFound = errors.New("game not found")

// Catalog resolves game definitions
type Catalog interface {
	GetGame(ctx context.Context, gameID string) (*entities.Game, error)
	ListGames(ctx context.Context) ([]*entities.Game, error)
}

// MemoryCatalog holds validated game definitions in memory
type MemoryCatalog struct {
	mu    sync.RWMutex
	games map[string]*entities.Game
}

// NewMemoryCatalog creates a catalog holding games. Every game is validated.
func NewMemoryCatalog(games ...*entities.Game) (*MemoryCatalog, error) {
	c := &MemoryCatalog{games: make(map[string]*entities.Game)}
	for _, g := range games {
		if err := c.SaveGame(g); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SaveGame validates and stores a game, replacing any game with the same ID
func (c *MemoryCatalog) SaveGame(game *entities.Game) error {
	if err := game.Validate(); err != nil {
		return fmt.Errorf("invalid game: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[game.ID] = game
	return nil
}

// GetGame retrieves a game by ID
func (c *MemoryCatalog) GetGame(ctx context.Context, gameID string) (*entities.Game, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	game, exists := c.games[gameID]
	if !exists {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// ListGames returns every game ordered by ID
func (c *MemoryCatalog) ListGames(ctx context.Context) ([]*entities.Game, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	games := make([]*entities.Game, 0, len(c.games))
	for _, g := range c.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

// DefaultGames returns the built-in catalog: the classic three reel fruit slot
func DefaultGames() []*entities.Game {
	return []*entities.Game{
		{
			ID:         "classic",
			Name:       "Classic Fruits",
			Type:       entities.GameTypeSlot,
			MinBet:     10,
			MaxBet:     10000,
			Currencies: []string{"USD", "EUR", "SC", "GC"},
			Reels:      3,
			Symbols:    []string{"🍒", "🍋", "🍊", "🍇", "🔔", "💎"},
			Paytable: entities.Paytable{
				"🍒": 2,
				"🍋": 3,
				"🍊": 4,
				"🍇": 5,
				"🔔": 8,
				"💎": 10,
			},
			Achievements: []*entities.AchievementDefinition{
				{ID: "first-spin", Name: "First Spin", Description: "Play your first round", Criterion: entities.CriterionGamesPlayed, Threshold: 1},
				{ID: "regular", Name: "Regular", Description: "Play 100 rounds", Criterion: entities.CriterionGamesPlayed, Threshold: 100},
				{ID: "jackpot", Name: "Three Of A Kind", Description: "Match every reel", Criterion: entities.CriterionJackpots, Threshold: 1},
				{ID: "hot-streak", Name: "Hot Streak", Description: "Win three rounds in a row", Criterion: entities.CriterionWinStreak, Threshold: 3},
			},
		},
	}
}
