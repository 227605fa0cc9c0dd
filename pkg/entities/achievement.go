package entities

import (
	"fmt"
	"time"
)

// AchievementCriterion names the player statistic an achievement is measured against
type AchievementCriterion string

const (
	CriterionGamesPlayed  AchievementCriterion = "games_played"
	CriterionTotalWagered AchievementCriterion = "total_wagered"
	CriterionTotalWon     AchievementCriterion = "total_won"
	CriterionSingleWin    AchievementCriterion = "single_win"
	CriterionJackpots     AchievementCriterion = "jackpots"
	CriterionWinStreak    AchievementCriterion = "win_streak"
)

// AchievementDefinition is a game-defined goal. It unlocks once the
// player's statistic for Criterion reaches Threshold.
type AchievementDefinition struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Criterion   AchievementCriterion `json:"criterion"`
	Threshold   int64                `json:"threshold"`
}

// Validate checks the definition is usable
func (d *AchievementDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("achievement id is required")
	}
	switch d.Criterion {
	case CriterionGamesPlayed, CriterionTotalWagered, CriterionTotalWon,
		CriterionSingleWin, CriterionJackpots, CriterionWinStreak:
	default:
		return fmt.Errorf("achievement %s: unknown criterion %q", d.ID, d.Criterion)
	}
	if d.Threshold < 1 {
		return fmt.Errorf("achievement %s: threshold must be at least 1", d.ID)
	}
	return nil
}

// UnlockedAchievement records that an account earned an achievement
type UnlockedAchievement struct {
	AccountID     string    `json:"account_id"`
	AchievementID string    `json:"achievement_id"`
	GameID        string    `json:"game_id"`
	ResultID      string    `json:"result_id"` // result that crossed the threshold
	UnlockedAt    time.Time `json:"unlocked_at"`
}
