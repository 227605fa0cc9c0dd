package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fadedpez/spinz/pkg/db/migrations"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/stretchr/testify/suite"
)

type StatsTestSuite struct {
	suite.Suite
	newRepo func() Repository
	cleanup func()
	repo    Repository
	ctx     context.Context
}

func TestMemoryStats(t *testing.T) {
	suite.Run(t, &StatsTestSuite{newRepo: func() Repository { return NewMemoryRepository() }})
}

func TestSQLiteStats(t *testing.T) {
	s := &StatsTestSuite{}
	s.newRepo = func() Repository {
		db, err := migrations.OpenSQLite(filepath.Join(s.T().TempDir(), "stats.db"))
		s.Require().NoError(err)
		s.cleanup = func() { db.Close() }
		return NewSQLRepository(db, migrations.DialectSQLite)
	}
	suite.Run(t, s)
}

func (s *StatsTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo()
}

func (s *StatsTestSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

func result(id, accountID string, bet, payout int64, outcome ...string) *entities.GameResult {
	return &entities.GameResult{
		ID:        id,
		AccountID: accountID,
		GameID:    "classic",
		Bet:       bet,
		Payout:    payout,
		Outcome:   outcome,
		Status:    entities.ResultStatusCommitted,
		Timestamp: time.Now().UTC(),
	}
}

func (s *StatsTestSuite) TestUpdatePlayerStatisticsOncePerResult() {
	// Setup
	win := result("res-1", "acc-1", 10, 100, "💎", "💎", "💎")

	// Execute
	first, applied, err := s.repo.UpdatePlayerStatistics(s.ctx, win)
	s.Require().NoError(err)
	s.True(applied)
	again, appliedAgain, err := s.repo.UpdatePlayerStatistics(s.ctx, win)
	s.Require().NoError(err)

	// Assert
	s.False(appliedAgain)
	s.Equal(1, first.GamesPlayed)
	s.Equal(1, again.GamesPlayed)
	s.Equal(1, again.Jackpots)
	s.Equal(int64(100), again.BiggestWin)
}

func (s *StatsTestSuite) TestStatisticsAccumulate() {
	// Setup
	results := []*entities.GameResult{
		result("res-1", "acc-1", 10, 20, "🍒", "🍒", "🍋"),
		result("res-2", "acc-1", 10, 30, "🍒", "🍒", "🍒"),
		result("res-3", "acc-1", 10, 0, "🍒", "🍋", "🍊"),
	}

	// Execute
	for _, r := range results {
		_, _, err := s.repo.UpdatePlayerStatistics(s.ctx, r)
		s.Require().NoError(err)
	}

	// Assert
	stats, err := s.repo.GetPlayerStatistics(s.ctx, "acc-1", "classic")
	s.Require().NoError(err)
	s.Equal(3, stats.GamesPlayed)
	s.Equal(2, stats.Wins)
	s.Equal(int64(30), stats.TotalWagered)
	s.Equal(int64(50), stats.TotalWon)
	s.Equal(0, stats.CurrentStreak)
	s.Equal(2, stats.BestStreak)
	s.Equal(int64(20), stats.NetProfit())
}

func (s *StatsTestSuite) TestGetPlayerStatisticsUnknownAccount() {
	stats, err := s.repo.GetPlayerStatistics(s.ctx, "nobody", "classic")

	s.Require().NoError(err)
	s.Equal("nobody", stats.AccountID)
	s.Zero(stats.GamesPlayed)
}

func (s *StatsTestSuite) TestGetAllPlayerStatisticsOrdering() {
	// Setup
	for _, r := range []*entities.GameResult{
		result("res-1", "acc-1", 10, 20, "🍒", "🍒", "🍋"),
		result("res-2", "acc-2", 10, 80, "🍇", "🍇", "🍇"),
		result("res-3", "acc-3", 10, 0, "🍒", "🍋", "🍊"),
	} {
		_, _, err := s.repo.UpdatePlayerStatistics(s.ctx, r)
		s.Require().NoError(err)
	}

	// Execute
	all, err := s.repo.GetAllPlayerStatistics(s.ctx, "classic")

	// Assert
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("acc-2", all[0].AccountID)
	s.Equal("acc-1", all[1].AccountID)
	s.Equal("acc-3", all[2].AccountID)

	other, err := s.repo.GetAllPlayerStatistics(s.ctx, "other")
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *StatsTestSuite) TestUnlockAchievementOnce() {
	// Setup
	unlock := &entities.UnlockedAchievement{
		AccountID:     "acc-1",
		AchievementID: "first-spin",
		GameID:        "classic",
		ResultID:      "res-1",
		UnlockedAt:    time.Now().UTC(),
	}

	// Execute
	inserted, err := s.repo.UnlockAchievement(s.ctx, unlock)
	s.Require().NoError(err)
	again, err := s.repo.UnlockAchievement(s.ctx, &entities.UnlockedAchievement{
		AccountID: "acc-1", AchievementID: "first-spin", GameID: "classic", ResultID: "res-2", UnlockedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	// Assert
	s.True(inserted)
	s.False(again)

	held, err := s.repo.GetUnlockedAchievements(s.ctx, "acc-1")
	s.Require().NoError(err)
	s.Require().Len(held, 1)
	s.Equal("res-1", held[0].ResultID)

	byResult, err := s.repo.GetAchievementsByResult(s.ctx, "res-1")
	s.Require().NoError(err)
	s.Len(byResult, 1)

	none, err := s.repo.GetAchievementsByResult(s.ctx, "res-2")
	s.Require().NoError(err)
	s.Empty(none)
}
