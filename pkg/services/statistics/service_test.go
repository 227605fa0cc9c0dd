package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of the stats.Repository interface
type MockRepository struct {
	mock.Mock
}

// GetAllPlayerStatistics is a mock implementation of the Repository.GetAllPlayerStatistics method
func (m *MockRepository) GetAllPlayerStatistics(ctx context.Context, gameID string) ([]*entities.PlayerStatistics, error) {
	args := m.Called(ctx, gameID)
	return args.Get(0).([]*entities.PlayerStatistics), args.Error(1)
}

// GetPlayerStatistics is a mock implementation of the Repository.GetPlayerStatistics method
func (m *MockRepository) GetPlayerStatistics(ctx context.Context, accountID, gameID string) (*entities.PlayerStatistics, error) {
	args := m.Called(ctx, accountID, gameID)
	return args.Get(0).(*entities.PlayerStatistics), args.Error(1)
}

// UpdatePlayerStatistics implements Repository
func (m *MockRepository) UpdatePlayerStatistics(ctx context.Context, result *entities.GameResult) (*entities.PlayerStatistics, bool, error) {
	return nil, false, nil
}

// UnlockAchievement implements Repository
func (m *MockRepository) UnlockAchievement(ctx context.Context, unlock *entities.UnlockedAchievement) (bool, error) {
	return false, nil
}

// GetUnlockedAchievements implements Repository
func (m *MockRepository) GetUnlockedAchievements(ctx context.Context, accountID string) ([]*entities.UnlockedAchievement, error) {
	return nil, nil
}

// GetAchievementsByResult implements Repository
func (m *MockRepository) GetAchievementsByResult(ctx context.Context, resultID string) ([]*entities.UnlockedAchievement, error) {
	return nil, nil
}

func testStats() []*entities.PlayerStatistics {
	return []*entities.PlayerStatistics{
		{
			AccountID:    "player1",
			GameID:       "classic",
			GamesPlayed:  10,
			Wins:         5,
			TotalWagered: 1000,
			TotalWon:     1500,
			LastUpdated:  time.Now(),
		},
		{
			AccountID:    "player2",
			GameID:       "classic",
			GamesPlayed:  25,
			Wins:         8,
			TotalWagered: 2000,
			TotalWon:     1800,
			LastUpdated:  time.Now(),
		},
		{
			AccountID:    "player3",
			GameID:       "classic",
			GamesPlayed:  20,
			Wins:         12,
			TotalWagered: 3000,
			TotalWon:     4000,
			LastUpdated:  time.Now(),
		},
		{
			AccountID: "idle",
			GameID:    "classic",
		},
	}
}

// TestGetLeaderboard tests the GetLeaderboard method
func TestGetLeaderboard(t *testing.T) {
	// Setup
	mockRepo := new(MockRepository)
	mockRepo.On("GetAllPlayerStatistics", mock.Anything, "classic").Return(testStats(), nil)
	service := NewService(mockRepo)

	// Execute
	leaderboard, err := service.GetLeaderboard(context.Background(), "classic", 1, 10)

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, leaderboard)
	assert.Equal(t, "classic", leaderboard.GameID)
	assert.Equal(t, 3, leaderboard.TotalPlayers)
	assert.Equal(t, 1, leaderboard.CurrentPage)
	assert.Equal(t, 1, leaderboard.TotalPages)
	assert.Equal(t, 10, leaderboard.PlayersPerPage)

	// Sorted by total won, idle players dropped
	assert.Equal(t, 3, len(leaderboard.Players))
	assert.Equal(t, "player3", leaderboard.Players[0].AccountID)
	assert.Equal(t, "player2", leaderboard.Players[1].AccountID)
	assert.Equal(t, "player1", leaderboard.Players[2].AccountID)

	assert.Equal(t, 1, leaderboard.Players[0].Rank)
	assert.Equal(t, 3, leaderboard.Players[2].Rank)
	assert.InDelta(t, 0.6, leaderboard.Players[0].WinRate, 0.0001)
	assert.InDelta(t, 0.9, leaderboard.Players[1].ReturnRate, 0.0001)
	assert.Equal(t, int64(-200), leaderboard.Players[1].NetProfit)

	assert.True(t, leaderboard.Players[0].IsTopWinner)
	assert.False(t, leaderboard.Players[0].IsTopPlayer)
	assert.True(t, leaderboard.Players[1].IsTopPlayer) // player2 has the most games played

	mockRepo.AssertExpectations(t)
}

// TestGetLeaderboardPagination tests page clamping and slicing
func TestGetLeaderboardPagination(t *testing.T) {
	// Setup
	mockRepo := new(MockRepository)
	mockRepo.On("GetAllPlayerStatistics", mock.Anything, "classic").Return(testStats(), nil)
	service := NewService(mockRepo)

	// Execute
	leaderboard, err := service.GetLeaderboard(context.Background(), "classic", 7, 2)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 2, leaderboard.TotalPages)
	assert.Equal(t, 2, leaderboard.CurrentPage)
	assert.Len(t, leaderboard.Players, 1)
	assert.Equal(t, "player1", leaderboard.Players[0].AccountID)
}

// TestGetLeaderboardEmpty tests a game nobody played
func TestGetLeaderboardEmpty(t *testing.T) {
	// Setup
	mockRepo := new(MockRepository)
	mockRepo.On("GetAllPlayerStatistics", mock.Anything, "gems").Return([]*entities.PlayerStatistics{}, nil)
	service := NewService(mockRepo)

	// Execute
	leaderboard, err := service.GetLeaderboard(context.Background(), "gems", 0, 0)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 0, leaderboard.TotalPlayers)
	assert.Equal(t, 1, leaderboard.CurrentPage)
	assert.Equal(t, 10, leaderboard.PlayersPerPage)
	assert.NotNil(t, leaderboard.Players)
	assert.Empty(t, leaderboard.Players)
}

// TestGetPlayerStatistics tests the pass-through to the repository
func TestGetPlayerStatistics(t *testing.T) {
	// Setup
	mockRepo := new(MockRepository)
	expected := &entities.PlayerStatistics{AccountID: "player1", GameID: "classic", GamesPlayed: 3}
	mockRepo.On("GetPlayerStatistics", mock.Anything, "player1", "classic").Return(expected, nil)
	service := NewService(mockRepo)

	// Execute
	st, err := service.GetPlayerStatistics(context.Background(), "player1", "classic")

	// Assert
	assert.NoError(t, err)
	assert.Same(t, expected, st)
	mockRepo.AssertExpectations(t)
}
