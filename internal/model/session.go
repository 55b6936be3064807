package model

import "time"

// WalletState is the read-only snapshot of a session ledger.
type WalletState struct {
	BalanceTotal float64  `json:"balance_total"`
	TotalProfit  float64  `json:"total_profit"`
	BalanceFree  float64  `json:"balance_free"`
	InPosition   float64  `json:"in_position"`
	LongAverage  *float64 `json:"long_average"`
	ShortAverage *float64 `json:"short_average"`
	Direction    string   `json:"direction"` // "long", "short" or "" when flat
}

// WalletFrame carries a ledger snapshot to the client.
type WalletFrame struct {
	Type   string      `json:"type"`
	Wallet WalletState `json:"wallet"`
}

// TradeAction is one accepted long/short/close command.
type TradeAction struct {
	Action string    `json:"action"`
	Time   time.Time `json:"time"`
	Index  int       `json:"index"`
}

// SessionResult is handed off to the persistence pipeline when a
// session ends.
type SessionResult struct {
	FID         string        `json:"fid"`
	SessionID   string        `json:"session_id"`
	Actions     []TradeAction `json:"actions"`
	FinalPnL    float64       `json:"final_pnl"`
	FinalProfit float64       `json:"final_profit"`
}

// User mirrors one row of the users table.
type User struct {
	FID           string    `json:"fid" db:"fid"`
	Username      string    `json:"username" db:"username"`
	Wallet        string    `json:"wallet" db:"wallet"`
	TotalGames    int       `json:"total_games" db:"total_games"`
	TotalProfit   float64   `json:"total_profit" db:"total_profit"`
	TotalPnL      float64   `json:"total_PnL" db:"total_pnl"`
	Energy        int       `json:"energy" db:"energy"`
	StreakDays    int       `json:"streak_days" db:"streak_days"`
	InvitationKey string    `json:"invitation_key" db:"invitation_key"`
	InvitedKey    string    `json:"invited_key" db:"invited_key"`
	IsBanned      bool      `json:"is_banned" db:"is_banned"`
	LastOnline    time.Time `json:"last_online" db:"last_online"`
}

// SessionSummary is one row of a user's recent-trades listing.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	FinalPnL    float64   `json:"final_pnl"`
	FinalProfit float64   `json:"final_profit"`
	CreatedAt   time.Time `json:"created_at"`
}

// LeaderboardEntry is one ranked row of a leaderboard response.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Username string  `json:"username"`
	Profit   float64 `json:"profit"`
	TheUser  bool    `json:"the_user"`
}
