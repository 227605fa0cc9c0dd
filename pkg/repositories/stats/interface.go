package stats

import (
	"context"

	"github.com/fadedpez/spinz/pkg/entities"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_stats

// Repository stores per account aggregates and unlocked achievements
type Repository interface {
	// UpdatePlayerStatistics folds a committed result into the account's
	// statistics for its game. Each result is applied at most once; applied
	// reports whether this call applied it.
	UpdatePlayerStatistics(ctx context.Context, result *entities.GameResult) (stats *entities.PlayerStatistics, applied bool, err error)

	// GetPlayerStatistics returns the statistics for an account and game.
	// An account that never played gets zeroed statistics.
	GetPlayerStatistics(ctx context.Context, accountID, gameID string) (*entities.PlayerStatistics, error)

	// GetAllPlayerStatistics returns every account's statistics for a game,
	// highest total won first
	GetAllPlayerStatistics(ctx context.Context, gameID string) ([]*entities.PlayerStatistics, error)

	// UnlockAchievement records an unlock. Returns false if the account
	// already holds the achievement.
	UnlockAchievement(ctx context.Context, unlock *entities.UnlockedAchievement) (bool, error)

	// GetUnlockedAchievements returns an account's achievements, oldest first
	GetUnlockedAchievements(ctx context.Context, accountID string) ([]*entities.UnlockedAchievement, error)

	// GetAchievementsByResult returns the achievements a result unlocked
	GetAchievementsByResult(ctx context.Context, resultID string) ([]*entities.UnlockedAchievement, error)
}
