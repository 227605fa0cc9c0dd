package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/fadedpez/spinz/pkg/entities"
)

// MemoryRepository implements Repository with in-memory storage
type MemoryRepository struct {
	mu           sync.RWMutex
	statistics   map[string]*entities.PlayerStatistics // account\x00game
	applied      map[string]bool
	achievements map[string][]*entities.UnlockedAchievement // by account
}

// NewMemoryRepository creates a new in-memory statistics repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		statistics:   make(map[string]*entities.PlayerStatistics),
		applied:      make(map[string]bool),
		achievements: make(map[string][]*entities.UnlockedAchievement),
	}
}

func statsKey(accountID, gameID string) string {
	return accountID + "\x00" + gameID
}

// UpdatePlayerStatistics folds a committed result into the account's statistics
func (r *MemoryRepository) UpdatePlayerStatistics(ctx context.Context, result *entities.GameResult) (*entities.PlayerStatistics, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := statsKey(result.AccountID, result.GameID)
	stats, exists := r.statistics[key]
	if !exists {
		stats = &entities.PlayerStatistics{AccountID: result.AccountID, GameID: result.GameID}
		r.statistics[key] = stats
	}

	if r.applied[result.ID] {
		c := *stats
		return &c, false, nil
	}
	r.applied[result.ID] = true
	stats.Apply(result)

	c := *stats
	return &c, true, nil
}

// GetPlayerStatistics returns the statistics for an account and game
func (r *MemoryRepository) GetPlayerStatistics(ctx context.Context, accountID, gameID string) (*entities.PlayerStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, exists := r.statistics[statsKey(accountID, gameID)]
	if !exists {
		return &entities.PlayerStatistics{AccountID: accountID, GameID: gameID}, nil
	}
	c := *stats
	return &c, nil
}

// GetAllPlayerStatistics returns every account's statistics for a game
func (r *MemoryRepository) GetAllPlayerStatistics(ctx context.Context, gameID string) ([]*entities.PlayerStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*entities.PlayerStatistics, 0)
	for _, stats := range r.statistics {
		if stats.GameID == gameID {
			c := *stats
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalWon != all[j].TotalWon {
			return all[i].TotalWon > all[j].TotalWon
		}
		return all[i].AccountID < all[j].AccountID
	})
	return all, nil
}

// UnlockAchievement records an unlock
func (r *MemoryRepository) UnlockAchievement(ctx context.Context, unlock *entities.UnlockedAchievement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, held := range r.achievements[unlock.AccountID] {
		if held.AchievementID == unlock.AchievementID {
			return false, nil
		}
	}
	c := *unlock
	r.achievements[unlock.AccountID] = append(r.achievements[unlock.AccountID], &c)
	return true, nil
}

// GetUnlockedAchievements returns an account's achievements, oldest first
func (r *MemoryRepository) GetUnlockedAchievements(ctx context.Context, accountID string) ([]*entities.UnlockedAchievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unlocked := make([]*entities.UnlockedAchievement, 0, len(r.achievements[accountID]))
	for _, held := range r.achievements[accountID] {
		c := *held
		unlocked = append(unlocked, &c)
	}
	return unlocked, nil
}

// GetAchievementsByResult returns the achievements a result unlocked
func (r *MemoryRepository) GetAchievementsByResult(ctx context.Context, resultID string) ([]*entities.UnlockedAchievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unlocked := make([]*entities.UnlockedAchievement, 0)
	for _, held := range r.achievements {
		for _, a := range held {
			if a.ResultID == resultID {
				c := *a
				unlocked = append(unlocked, &c)
			}
		}
	}
	sort.SliceStable(unlocked, func(i, j int) bool {
		return unlocked[i].UnlockedAt.Before(unlocked[j].UnlockedAt)
	})
	return unlocked, nil
}
