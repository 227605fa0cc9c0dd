package achievement

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type EvaluatorTestSuite struct {
	suite.Suite
	repo      *stats.MemoryRepository
	evaluator *Evaluator
	game      *entities.Game
	ctx       context.Context
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorTestSuite))
}

func (s *EvaluatorTestSuite) SetupTest() {
	s.repo = stats.NewMemoryRepository()
	s.evaluator = NewEvaluator(s.repo, logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false))
	s.ctx = context.Background()
	s.game = &entities.Game{
		ID:       "classic",
		Type:     entities.GameTypeSlot,
		MinBet:   1,
		MaxBet:   100,
		Reels:    3,
		Symbols:  []string{"A", "B", "C"},
		Paytable: entities.Paytable{"A": 10, "B": 2},
		Achievements: []*entities.AchievementDefinition{
			{ID: "first-spin", Criterion: entities.CriterionGamesPlayed, Threshold: 1},
			{ID: "jackpot", Criterion: entities.CriterionJackpots, Threshold: 1},
			{ID: "hot-streak", Criterion: entities.CriterionWinStreak, Threshold: 3},
			{ID: "high-roller", Criterion: entities.CriterionTotalWagered, Threshold: 100},
		},
	}
}

func (s *EvaluatorTestSuite) result(outcome entities.Outcome, bet, payout int64) *entities.GameResult {
	return &entities.GameResult{
		ID:        uuid.New().String(),
		AccountID: "acc-1",
		GameID:    "classic",
		Bet:       bet,
		Outcome:   outcome,
		Payout:    payout,
		Status:    entities.ResultStatusCommitted,
	}
}

func (s *EvaluatorTestSuite) TestFirstSpinUnlocksOnce() {
	// Setup
	first := s.result(entities.Outcome{"A", "B", "C"}, 10, 0)

	// Execute
	unlocked, err := s.evaluator.Evaluate(s.ctx, s.game, first)

	// Assert
	s.Require().NoError(err)
	s.Equal([]string{"first-spin"}, unlocked)

	unlocked, err = s.evaluator.Evaluate(s.ctx, s.game, s.result(entities.Outcome{"A", "B", "C"}, 10, 0))
	s.Require().NoError(err)
	s.Empty(unlocked)
}

func (s *EvaluatorTestSuite) TestReplayReturnsSameUnlocks() {
	// Setup
	jackpot := s.result(entities.Outcome{"A", "A", "A"}, 10, 100)

	// Execute
	first, err := s.evaluator.Evaluate(s.ctx, s.game, jackpot)
	s.Require().NoError(err)
	replay, err := s.evaluator.Evaluate(s.ctx, s.game, jackpot)

	// Assert
	s.Require().NoError(err)
	s.ElementsMatch([]string{"first-spin", "jackpot"}, first)
	s.ElementsMatch(first, replay)

	st, err := s.repo.GetPlayerStatistics(s.ctx, "acc-1", "classic")
	s.Require().NoError(err)
	s.Equal(1, st.GamesPlayed)
	s.Equal(int64(100), st.TotalWon)
}

func (s *EvaluatorTestSuite) TestWinStreakAndWagered() {
	var unlocked []string
	for i := 0; i < 3; i++ {
		ids, err := s.evaluator.Evaluate(s.ctx, s.game, s.result(entities.Outcome{"B", "B", "C"}, 40, 40))
		s.Require().NoError(err)
		unlocked = append(unlocked, ids...)
	}

	s.ElementsMatch([]string{"first-spin", "hot-streak", "high-roller"}, unlocked)
}

func (s *EvaluatorTestSuite) TestIgnoresUncommittedResults() {
	failed := s.result(nil, 10, 0)
	failed.Status = entities.ResultStatusFailed

	unlocked, err := s.evaluator.Evaluate(s.ctx, s.game, failed)
	s.Require().NoError(err)
	s.Empty(unlocked)

	st, err := s.repo.GetPlayerStatistics(s.ctx, "acc-1", "classic")
	s.Require().NoError(err)
	s.Equal(0, st.GamesPlayed)
}

func (s *EvaluatorTestSuite) TestGetProgress() {
	// Setup
	_, err := s.evaluator.Evaluate(s.ctx, s.game, s.result(entities.Outcome{"B", "B", "C"}, 30, 30))
	s.Require().NoError(err)

	// Execute
	progress, err := s.evaluator.GetProgress(s.ctx, "acc-1", s.game)

	// Assert
	s.Require().NoError(err)
	s.Require().Len(progress, 4)
	s.Equal("first-spin", progress[0].ID)
	s.True(progress[0].Unlocked)
	s.NotNil(progress[0].UnlockedAt)
	s.False(progress[1].Unlocked)
	s.Equal(int64(1), progress[2].Current)
	s.Equal(int64(30), progress[3].Current)

	unlocked, err := s.evaluator.GetUnlocked(s.ctx, "acc-1")
	s.Require().NoError(err)
	s.Len(unlocked, 1)
}

func (s *EvaluatorTestSuite) TestPropagatesRepositoryErrors() {
	evaluator := NewEvaluator(&failingRepository{Repository: s.repo}, nil)

	_, err := evaluator.Evaluate(s.ctx, s.game, s.result(entities.Outcome{"A", "B", "C"}, 10, 0))
	s.ErrorIs(err, errUnavailable)
}

func (s *EvaluatorTestSuite) TestCurrentCoversEveryCriterion() {
	st := &entities.PlayerStatistics{GamesPlayed: 4, TotalWagered: 40, TotalWon: 55, BiggestWin: 30, Jackpots: 1, BestStreak: 2}

	s.Equal(int64(4), Current(entities.CriterionGamesPlayed, st))
	s.Equal(int64(40), Current(entities.CriterionTotalWagered, st))
	s.Equal(int64(55), Current(entities.CriterionTotalWon, st))
	s.Equal(int64(30), Current(entities.CriterionSingleWin, st))
	s.Equal(int64(1), Current(entities.CriterionJackpots, st))
	s.Equal(int64(2), Current(entities.CriterionWinStreak, st))
	s.Equal(int64(0), Current("luck", st))
}

var errUnavailable = errors.New("stats store unavailable")

type failingRepository struct {
	stats.Repository
}

func (r *failingRepository) UpdatePlayerStatistics(ctx context.Context, result *entities.GameResult) (*entities.PlayerStatistics, bool, error) {
	return nil, false, errUnavailable
}
