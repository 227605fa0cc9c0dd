// Package achievement unlocks game-defined achievements from committed results.
package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/stats"
)

// Evaluator folds committed results into player statistics and unlocks
// the achievements whose thresholds the statistics reach
type Evaluator struct {
	repo   stats.Repository
	logger *logging.Logger
}

// NewEvaluator creates a new achievement evaluator
func NewEvaluator(repo stats.Repository, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.Default
	}
	return &Evaluator{
		repo:   repo,
		logger: logger.With("component", "achievement"),
	}
}

// Progress describes how far an account is towards an achievement
type Progress struct {
	*entities.AchievementDefinition
	Current    int64      `json:"current"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Evaluate applies a committed result to the account's statistics and returns
// the ids of the achievements it unlocked. Evaluating the same result again
// returns the same ids without counting the result twice.
func (e *Evaluator) Evaluate(ctx context.Context, game *entities.Game, result *entities.GameResult) ([]string, error) {
	if result.Status != entities.ResultStatusCommitted {
		return nil, nil
	}

	playerStats, applied, err := e.repo.UpdatePlayerStatistics(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("error updating statistics: %w", err)
	}

	unlocked := make([]string, 0)
	seen := make(map[string]bool)
	if !applied {
		previous, err := e.repo.GetAchievementsByResult(ctx, result.ID)
		if err != nil {
			return nil, fmt.Errorf("error loading achievements for result %s: %w", result.ID, err)
		}
		for _, a := range previous {
			unlocked = append(unlocked, a.AchievementID)
			seen[a.AchievementID] = true
		}
	}

	for _, def := range game.Achievements {
		if seen[def.ID] || Current(def.Criterion, playerStats) < def.Threshold {
			continue
		}

		inserted, err := e.repo.UnlockAchievement(ctx, &entities.UnlockedAchievement{
			AccountID:     result.AccountID,
			AchievementID: def.ID,
			GameID:        game.ID,
			ResultID:      result.ID,
			UnlockedAt:    time.Now(),
		})
		if err != nil {
			return unlocked, fmt.Errorf("error unlocking %s: %w", def.ID, err)
		}
		if inserted {
			e.logger.Info("account %s unlocked %s on %s", result.AccountID, def.ID, game.ID)
			unlocked = append(unlocked, def.ID)
		}
	}

	return unlocked, nil
}

// Current returns the statistic an achievement criterion is measured against
func Current(criterion entities.AchievementCriterion, s *entities.PlayerStatistics) int64 {
	switch criterion {
	case entities.CriterionGamesPlayed:
		return int64(s.GamesPlayed)
	case entities.CriterionTotalWagered:
		return s.TotalWagered
	case entities.CriterionTotalWon:
		return s.TotalWon
	case entities.CriterionSingleWin:
		return s.BiggestWin
	case entities.CriterionJackpots:
		return int64(s.Jackpots)
	case entities.CriterionWinStreak:
		return int64(s.BestStreak)
	default:
		return 0
	}
}

// GetUnlocked returns an account's unlocked achievements, oldest first
func (e *Evaluator) GetUnlocked(ctx context.Context, accountID string) ([]*entities.UnlockedAchievement, error) {
	return e.repo.GetUnlockedAchievements(ctx, accountID)
}

// GetProgress reports an account's progress on every achievement of a game
func (e *Evaluator) GetProgress(ctx context.Context, accountID string, game *entities.Game) ([]*Progress, error) {
	playerStats, err := e.repo.GetPlayerStatistics(ctx, accountID, game.ID)
	if err != nil {
		return nil, err
	}
	unlocked, err := e.repo.GetUnlockedAchievements(ctx, accountID)
	if err != nil {
		return nil, err
	}

	unlockedAt := make(map[string]time.Time, len(unlocked))
	for _, a := range unlocked {
		if a.GameID == game.ID {
			unlockedAt[a.AchievementID] = a.UnlockedAt
		}
	}

	progress := make([]*Progress, 0, len(game.Achievements))
	for _, def := range game.Achievements {
		p := &Progress{
			AchievementDefinition: def,
			Current:               Current(def.Criterion, playerStats),
		}
		if at, ok := unlockedAt[def.ID]; ok {
			p.Unlocked = true
			p.UnlockedAt = &at
		}
		progress = append(progress, p)
	}
	return progress, nil
}
