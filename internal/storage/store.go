// Package storage persists users, leaderboards and finished game
// sessions in Postgres, and carries the NATS result pipeline that
// feeds them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/model"
)

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const invitationKeyChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newInvitationKey() string {
	key := make([]byte, 6)
	for i := range key {
		key[i] = invitationKeyChars[rand.Intn(len(invitationKeyChars))]
	}
	return string(key)
}

const userColumns = `fid, username, wallet, total_games, total_profit, total_pnl,
	energy, streak_days, invitation_key, invited_key, is_banned, last_online`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.FID, &u.Username, &u.Wallet, &u.TotalGames, &u.TotalProfit,
		&u.TotalPnL, &u.Energy, &u.StreakDays, &u.InvitationKey, &u.InvitedKey,
		&u.IsBanned, &u.LastOnline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns nil without error when the fid is unknown.
func (s *Store) GetUser(ctx context.Context, fid string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE fid = $1", fid)
	return scanUser(row)
}

const uniqueViolation = "23505"

// EnsureUser fetches a user, creating the row with default values on
// first contact. Invitation keys are unique across users; a collision
// rolls a new key and retries.
func (s *Store) EnsureUser(ctx context.Context, fid, username, wallet string) (*model.User, error) {
	for {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO users (fid, username, wallet, invitation_key)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (fid) DO NOTHING`,
			fid, username, wallet, newInvitationKey())
		if err == nil {
			break
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return nil, fmt.Errorf("ensure user %s: %w", fid, err)
	}
	return s.GetUser(ctx, fid)
}

func (s *Store) UpdateLastOnline(ctx context.Context, fid string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE users SET last_online = now() WHERE fid = $1", fid)
	return err
}

// ReduceEnergy atomically spends one unit of energy. Returns false
// when the counter was already empty (or the user is unknown).
func (s *Store) ReduceEnergy(ctx context.Context, fid string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET energy = energy - 1 WHERE fid = $1 AND energy > 0", fid)
	if err != nil {
		return false, fmt.Errorf("reduce energy for %s: %w", fid, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RestoreEnergy bumps everyone below maxEnergy by increment, capped at
// maxEnergy. Returns the number of re-energized users.
func (s *Store) RestoreEnergy(ctx context.Context, maxEnergy, increment int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET energy = LEAST(energy + $2, $1) WHERE energy < $1",
		maxEnergy, increment)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SaveSessionResult records a finished session and bumps the player's
// aggregates in one transaction.
func (s *Store) SaveSessionResult(ctx context.Context, result model.SessionResult) error {
	actions, err := json.Marshal(result.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	sessionID, err := uuid.Parse(result.SessionID)
	if err != nil {
		return fmt.Errorf("bad session id %q: %w", result.SessionID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO game_sessions (id, fid, actions, final_pnl, final_profit)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, result.FID, actions, result.FinalPnL, result.FinalProfit)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", result.SessionID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET
			total_games = total_games + 1,
			total_profit = total_profit + $2,
			total_pnl = total_pnl + $3,
			last_online = now()
		WHERE fid = $1`,
		result.FID, result.FinalProfit, result.FinalPnL)
	if err != nil {
		return fmt.Errorf("update totals for %s: %w", result.FID, err)
	}

	return tx.Commit(ctx)
}

// Leaderboard ranks users all-time by cumulative profit, marking the
// requesting fid.
func (s *Store) Leaderboard(ctx context.Context, fid string, topN int) ([]model.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fid, username, total_profit
		FROM users
		WHERE is_banned = false
		ORDER BY total_profit DESC
		LIMIT $1`, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.LeaderboardEntry, 0, topN)
	for rows.Next() {
		var rowFID string
		var entry model.LeaderboardEntry
		if err := rows.Scan(&rowFID, &entry.Username, &entry.Profit); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entry.TheUser = rowFID == fid
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// WeeklyLeaderboard ranks by profit accumulated over the last 7 days.
func (s *Store) WeeklyLeaderboard(ctx context.Context, fid string, topN int) ([]model.LeaderboardEntry, error) {
	return s.periodLeaderboard(ctx, fid, topN, 7)
}

// DailyLeaderboard ranks by profit accumulated over the last day.
func (s *Store) DailyLeaderboard(ctx context.Context, fid string, topN int) ([]model.LeaderboardEntry, error) {
	return s.periodLeaderboard(ctx, fid, topN, 1)
}

func (s *Store) periodLeaderboard(ctx context.Context, fid string, topN, days int) ([]model.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.fid, u.username, SUM(g.final_profit) AS profit
		FROM game_sessions g
		JOIN users u ON u.fid = g.fid
		WHERE g.created_at >= now() - make_interval(days => $2) AND u.is_banned = false
		GROUP BY g.fid, u.username
		ORDER BY profit DESC
		LIMIT $1`, topN, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.LeaderboardEntry, 0, topN)
	for rows.Next() {
		var rowFID string
		var entry model.LeaderboardEntry
		if err := rows.Scan(&rowFID, &entry.Username, &entry.Profit); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entry.TheUser = rowFID == fid
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LatestTrades returns a user's most recent finished sessions.
func (s *Store) LatestTrades(ctx context.Context, fid string, n int) ([]model.SessionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, final_pnl, final_profit, created_at
		FROM game_sessions
		WHERE fid = $1
		ORDER BY created_at DESC
		LIMIT $2`, fid, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]model.SessionSummary, 0, n)
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.FinalPnL, &sum.FinalProfit, &sum.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
