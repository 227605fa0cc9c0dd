package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/pkg/db/migrations"
	"github.com/fadedpez/spinz/pkg/entities"
)

// SQLRepository implements Repository over database/sql. It serves both
// SQLite and Postgres (through the pgx stdlib adapter); queries are written
// with ? placeholders and rebound for the dialect.
type SQLRepository struct {
	db      *sql.DB
	dialect migrations.Dialect
}

// NewSQLRepository creates a repository over a migrated database
func NewSQLRepository(db *sql.DB, dialect migrations.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

const statisticsColumns = `account_id, game_id, games_played, wins, jackpots, total_wagered, total_won,
	biggest_win, current_streak, best_streak, last_updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatistics(row rowScanner) (*entities.PlayerStatistics, error) {
	var s entities.PlayerStatistics
	err := row.Scan(
		&s.AccountID, &s.GameID, &s.GamesPlayed, &s.Wins, &s.Jackpots, &s.TotalWagered, &s.TotalWon,
		&s.BiggestWin, &s.CurrentStreak, &s.BestStreak, &s.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLRepository) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdatePlayerStatistics folds a committed result into the account's statistics
func (r *SQLRepository) UpdatePlayerStatistics(ctx context.Context, result *entities.GameResult) (*entities.PlayerStatistics, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := time.Now().UTC()
	_, err = r.exec(ctx, tx, `
		INSERT INTO player_statistics (account_id, game_id, last_updated) VALUES (?, ?, ?)
		ON CONFLICT (account_id, game_id) DO NOTHING`,
		result.AccountID, result.GameID, ts,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to initialise player statistics: %w", err)
	}

	query := `SELECT ` + statisticsColumns + ` FROM player_statistics WHERE account_id = ? AND game_id = ?`
	if r.dialect == migrations.DialectPostgres {
		query += ` FOR UPDATE`
	}
	stats, err := scanStatistics(tx.QueryRowContext(ctx, r.dialect.Rebind(query), result.AccountID, result.GameID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get player statistics: %w", err)
	}

	inserted, err := r.exec(ctx, tx, `
		INSERT INTO applied_results (result_id, applied_at) VALUES (?, ?)
		ON CONFLICT (result_id) DO NOTHING`,
		result.ID, ts,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark result applied: %w", err)
	}
	if inserted == 0 {
		return stats, false, tx.Commit()
	}

	stats.Apply(result)
	if stats.LastUpdated.IsZero() {
		stats.LastUpdated = ts
	}
	_, err = r.exec(ctx, tx, `
		UPDATE player_statistics SET games_played = ?, wins = ?, jackpots = ?, total_wagered = ?,
			total_won = ?, biggest_win = ?, current_streak = ?, best_streak = ?, last_updated = ?
		WHERE account_id = ? AND game_id = ?`,
		stats.GamesPlayed, stats.Wins, stats.Jackpots, stats.TotalWagered,
		stats.TotalWon, stats.BiggestWin, stats.CurrentStreak, stats.BestStreak, stats.LastUpdated,
		stats.AccountID, stats.GameID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update player statistics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit statistics: %w", err)
	}
	return stats, true, nil
}

// GetPlayerStatistics returns the statistics for an account and game
func (r *SQLRepository) GetPlayerStatistics(ctx context.Context, accountID, gameID string) (*entities.PlayerStatistics, error) {
	query := r.dialect.Rebind(`SELECT ` + statisticsColumns + ` FROM player_statistics WHERE account_id = ? AND game_id = ?`)
	stats, err := scanStatistics(r.db.QueryRowContext(ctx, query, accountID, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return &entities.PlayerStatistics{AccountID: accountID, GameID: gameID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player statistics: %w", err)
	}
	return stats, nil
}

// GetAllPlayerStatistics returns every account's statistics for a game
func (r *SQLRepository) GetAllPlayerStatistics(ctx context.Context, gameID string) ([]*entities.PlayerStatistics, error) {
	query := r.dialect.Rebind(`SELECT ` + statisticsColumns + ` FROM player_statistics
		WHERE game_id = ? AND games_played > 0 ORDER BY total_won DESC, account_id`)
	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player statistics: %w", err)
	}
	defer rows.Close()

	all := make([]*entities.PlayerStatistics, 0)
	for rows.Next() {
		stats, err := scanStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player statistics: %w", err)
		}
		all = append(all, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player statistics: %w", err)
	}
	return all, nil
}

// UnlockAchievement records an unlock
func (r *SQLRepository) UnlockAchievement(ctx context.Context, unlock *entities.UnlockedAchievement) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO unlocked_achievements (account_id, achievement_id, game_id, result_id, unlocked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, achievement_id) DO NOTHING`),
		unlock.AccountID, unlock.AchievementID, unlock.GameID, unlock.ResultID, unlock.UnlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) queryAchievements(ctx context.Context, where string, arg string) ([]*entities.UnlockedAchievement, error) {
	query := r.dialect.Rebind(`SELECT account_id, achievement_id, game_id, result_id, unlocked_at
		FROM unlocked_achievements ` + where + ` ORDER BY unlocked_at, achievement_id`)
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make([]*entities.UnlockedAchievement, 0)
	for rows.Next() {
		var a entities.UnlockedAchievement
		if err := rows.Scan(&a.AccountID, &a.AchievementID, &a.GameID, &a.ResultID, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		unlocked = append(unlocked, &a)
	}
	return unlocked, rows.Err()
}

// GetUnlockedAchievements returns an account's achievements, oldest first
func (r *SQLRepository) GetUnlockedAchievements(ctx context.Context, accountID string) ([]*entities.UnlockedAchievement, error) {
	return r.queryAchievements(ctx, `WHERE account_id = ?`, accountID)
}

// GetAchievementsByResult returns the achievements a result unlocked
func (r *SQLRepository) GetAchievementsByResult(ctx context.Context, resultID string) ([]*entities.UnlockedAchievement, error) {
	return r.queryAchievements(ctx, `WHERE result_id = ?`, resultID)
}
