package statistics

import (
	"context"
	"sort"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/stats"
)

// Service provides methods for retrieving and processing player statistics
type Service struct {
	repository stats.Repository
}

// NewService creates a new statistics service
func NewService(repository stats.Repository) *Service {
	return &Service{
		repository: repository,
	}
}

// PlayerRank represents a player's statistics with ranking information
type PlayerRank struct {
	*entities.PlayerStatistics
	Rank        int     `json:"rank"`
	WinRate     float64 `json:"win_rate"`
	ReturnRate  float64 `json:"return_rate"`
	NetProfit   int64   `json:"net_profit"`
	IsTopWinner bool    `json:"is_top_winner"`
	IsTopPlayer bool    `json:"is_top_player"`
}

// Leaderboard represents a paginated leaderboard of player statistics for a game
type Leaderboard struct {
	GameID         string        `json:"game_id"`
	Players        []*PlayerRank `json:"players"`
	TotalPlayers   int           `json:"total_players"`
	CurrentPage    int           `json:"current_page"`
	TotalPages     int           `json:"total_pages"`
	PlayersPerPage int           `json:"players_per_page"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// GetLeaderboard retrieves a paginated leaderboard of a game's players ranked by total won
func (s *Service) GetLeaderboard(ctx context.Context, gameID string, page, playersPerPage int) (*Leaderboard, error) {
	// Default values
	if page < 1 {
		page = 1
	}
	if playersPerPage < 1 {
		playersPerPage = 10
	}

	allStats, err := s.repository.GetAllPlayerStatistics(ctx, gameID)
	if err != nil {
		return nil, err
	}

	playerRanks := make([]*PlayerRank, 0, len(allStats))
	for _, st := range allStats {
		// Skip players with no games
		if st.GamesPlayed == 0 {
			continue
		}

		var returnRate float64
		if st.TotalWagered > 0 {
			returnRate = float64(st.TotalWon) / float64(st.TotalWagered)
		}

		playerRanks = append(playerRanks, &PlayerRank{
			PlayerStatistics: st,
			WinRate:          float64(st.Wins) / float64(st.GamesPlayed),
			ReturnRate:       returnRate,
			NetProfit:        st.NetProfit(),
		})
	}

	// Sort by total won (descending), ties by account for a stable order
	sort.SliceStable(playerRanks, func(i, j int) bool {
		if playerRanks[i].TotalWon != playerRanks[j].TotalWon {
			return playerRanks[i].TotalWon > playerRanks[j].TotalWon
		}
		return playerRanks[i].AccountID < playerRanks[j].AccountID
	})

	if len(playerRanks) > 0 {
		playerRanks[0].IsTopWinner = true

		// Find the player with the most games played
		mostGamesIdx := 0
		for i := 1; i < len(playerRanks); i++ {
			if playerRanks[i].GamesPlayed > playerRanks[mostGamesIdx].GamesPlayed {
				mostGamesIdx = i
			}
		}
		playerRanks[mostGamesIdx].IsTopPlayer = true
	}

	for i := range playerRanks {
		playerRanks[i].Rank = i + 1
	}

	// Calculate pagination
	totalPlayers := len(playerRanks)
	totalPages := (totalPlayers + playersPerPage - 1) / playersPerPage
	if page > totalPages && totalPages > 0 {
		page = totalPages
	}

	start := (page - 1) * playersPerPage
	end := start + playersPerPage
	if end > totalPlayers {
		end = totalPlayers
	}

	currentPagePlayers := []*PlayerRank{}
	if start < totalPlayers {
		currentPagePlayers = playerRanks[start:end]
	}

	return &Leaderboard{
		GameID:         gameID,
		Players:        currentPagePlayers,
		TotalPlayers:   totalPlayers,
		CurrentPage:    page,
		TotalPages:     totalPages,
		PlayersPerPage: playersPerPage,
		LastUpdated:    time.Now(),
	}, nil
}

// GetPlayerStatistics returns an account's statistics for a game
func (s *Service) GetPlayerStatistics(ctx context.Context, accountID, gameID string) (*entities.PlayerStatistics, error) {
	return s.repository.GetPlayerStatistics(ctx, accountID, gameID)
}
