package catalog

import (
	"fmt"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/spf13/viper"
)

// fileCatalog mirrors the YAML layout. Paytables are lists because viper
// lowercases map keys.
type fileCatalog struct {
	Games []fileGame `mapstructure:"games"`
}

type fileGame struct {
	ID           string            `mapstructure:"id"`
	Name         string            `mapstructure:"name"`
	Type         string            `mapstructure:"type"`
	MinBet       int64             `mapstructure:"min_bet"`
	MaxBet       int64             `mapstructure:"max_bet"`
	Currencies   []string          `mapstructure:"currencies"`
	Reels        int               `mapstructure:"reels"`
	Symbols      []string          `mapstructure:"symbols"`
	Paytable     []filePay         `mapstructure:"paytable"`
	Achievements []fileAchievement `mapstructure:"achievements"`
}

type filePay struct {
	Symbol     string `mapstructure:"symbol"`
	Multiplier int64  `mapstructure:"multiplier"`
}

type fileAchievement struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Criterion   string `mapstructure:"criterion"`
	Threshold   int64  `mapstructure:"threshold"`
}

// LoadFile reads a YAML game catalog
func LoadFile(path string) (*MemoryCatalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading catalog %s: %w", path, err)
	}

	var file fileCatalog
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("error parsing catalog %s: %w", path, err)
	}
	if len(file.Games) == 0 {
		return nil, fmt.Errorf("catalog %s defines no games", path)
	}

	games := make([]*entities.Game, 0, len(file.Games))
	for _, fg := range file.Games {
		game, err := fg.toGame()
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		games = append(games, game)
	}
	return NewMemoryCatalog(games...)
}

func (fg fileGame) toGame() (*entities.Game, error) {
	game := &entities.Game{
		ID:         fg.ID,
		Name:       fg.Name,
		Type:       entities.GameType(fg.Type),
		MinBet:     fg.MinBet,
		MaxBet:     fg.MaxBet,
		Currencies: fg.Currencies,
		Reels:      fg.Reels,
		Symbols:    fg.Symbols,
		Paytable:   make(entities.Paytable, len(fg.Paytable)),
	}
	if game.Type == "" {
		game.Type = entities.GameTypeSlot
	}
	for _, p := range fg.Paytable {
		if _, dup := game.Paytable[p.Symbol]; dup {
			return nil, fmt.Errorf("game %s: symbol %s paid twice", fg.ID, p.Symbol)
		}
		game.Paytable[p.Symbol] = p.Multiplier
	}
	for _, a := range fg.Achievements {
		game.Achievements = append(game.Achievements, &entities.AchievementDefinition{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Criterion:   entities.AchievementCriterion(a.Criterion),
			Threshold:   a.Threshold,
		})
	}
	return game, nil
}
