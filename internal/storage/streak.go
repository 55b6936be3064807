package storage

import (
	"context"
	"time"

	"github.com/Tradcast/Backend/internal/model"
)

type streakOp int

const (
	streakKeep streakOp = iota
	streakIncrement
	streakReset
)

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// streakTransition decides the daily-streak rule from the calendar
// date of the previous visit: a same-day repeat keeps the streak, a
// visit the day after extends it, anything older starts over at 1.
func streakTransition(lastOnline, now time.Time) streakOp {
	switch {
	case lastOnline.IsZero():
		return streakReset
	case sameDate(lastOnline, now):
		return streakKeep
	case sameDate(lastOnline, now.AddDate(0, 0, -1)):
		return streakIncrement
	default:
		return streakReset
	}
}

// UpdateStreak applies the daily-streak rule for one visit and
// refreshes StreakDays on the passed user. Must run before the visit
// touches last_online, which is the previous-visit marker it reads.
func (s *Store) UpdateStreak(ctx context.Context, user *model.User) error {
	var query string
	switch streakTransition(user.LastOnline, time.Now()) {
	case streakKeep:
		return nil
	case streakIncrement:
		query = "UPDATE users SET streak_days = streak_days + 1 WHERE fid = $1 RETURNING streak_days"
	case streakReset:
		query = "UPDATE users SET streak_days = 1 WHERE fid = $1 RETURNING streak_days"
	}
	return s.pool.QueryRow(ctx, query, user.FID).Scan(&user.StreakDays)
}
