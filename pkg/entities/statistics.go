package entities

import "time"

// PlayerStatistics represents aggregated statistics for an account in a specific game
type PlayerStatistics struct {
	AccountID     string    `json:"account_id"`
	GameID        string    `json:"game_id"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Jackpots      int       `json:"jackpots"`
	TotalWagered  int64     `json:"total_wagered"`
	TotalWon      int64     `json:"total_won"`
	BiggestWin    int64     `json:"biggest_win"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Apply folds a committed result into the statistics
func (s *PlayerStatistics) Apply(result *GameResult) {
	s.GamesPlayed++
	s.TotalWagered += result.Bet
	s.TotalWon += result.Payout
	if result.Payout > s.BiggestWin {
		s.BiggestWin = result.Payout
	}
	if result.IsJackpot() {
		s.Jackpots++
	}
	if result.IsWin() {
		s.Wins++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}
	s.LastUpdated = result.Timestamp
}

// NetProfit calculates the player's net profit
func (s *PlayerStatistics) NetProfit() int64 {
	return s.TotalWon - s.TotalWagered
}

// WinRate calculates the player's win rate as a percentage
func (s *PlayerStatistics) WinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0.0
	}
	return float64(s.Wins) / float64(s.GamesPlayed) * 100.0
}
