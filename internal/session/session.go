// Package session orchestrates one client game session end to end:
// authentication handshake, command dispatch, the streaming and
// settlement tasks, expiry and teardown.
package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/auth"
	"github.com/Tradcast/Backend/internal/infrastructure"
	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/model"
	"github.com/Tradcast/Backend/internal/stream"
	"github.com/Tradcast/Backend/internal/wallet"
)

// PnL persisted per session is the in-game profit divided by this
// fixed scaling constant.
const pnlScale = 10.0

const closePolicyViolation = 1008

// EnergyGate admits a session by atomically spending one unit of the
// player's energy.
type EnergyGate interface {
	ReduceEnergy(ctx context.Context, fid string) (bool, error)
}

// ResultSink receives the final session report. Failures are logged by
// the session and never block teardown.
type ResultSink interface {
	Publish(result model.SessionResult) error
}

// Tracker counts started gameplays. Optional.
type Tracker interface {
	RecordGame(fid string)
}

// Config carries the per-session knobs.
type Config struct {
	Secret         string
	AuthTimeout    time.Duration
	SessionTimeout time.Duration
	WindowSize     int
	TickInterval   time.Duration
	SettleInterval time.Duration
	RateLimit      int
	RateWindow     time.Duration
	Wallet         wallet.Config
}

func DefaultConfig(secret string) Config {
	return Config{
		Secret:         secret,
		AuthTimeout:    15 * time.Second,
		SessionTimeout: 250 * time.Second,
		WindowSize:     60,
		TickInterval:   time.Second,
		SettleInterval: 100 * time.Millisecond,
		RateLimit:      15,
		RateWindow:     time.Second,
		Wallet:         wallet.DefaultConfig(),
	}
}

// streamRun is one start..stop cycle of the streaming + settlement
// tasks.
type streamRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *streamRun) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Session drives one authenticated client over one randomly chosen
// price series.
type Session struct {
	id      uuid.UUID
	cfg     Config
	logger  *zap.Logger
	conn    Conn
	series  *market.Series
	gate    EnergyGate
	sink    ResultSink
	tracker Tracker

	flow    *stream.Flow
	wallet  *wallet.Wallet
	limiter *RateLimiter

	fid      string
	authTime time.Time
	actions  []model.TradeAction
	run      *streamRun
}

func New(conn Conn, series *market.Series, gate EnergyGate, sink ResultSink, tracker Tracker, cfg Config, logger *zap.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		cfg:     cfg,
		logger:  logger.With(zap.String("session_id", id.String()), zap.String("symbol", series.Symbol())),
		conn:    conn,
		series:  series,
		gate:    gate,
		sink:    sink,
		tracker: tracker,
		flow:    stream.New(series, cfg.WindowSize, cfg.TickInterval),
		wallet:  wallet.New(series, cfg.Wallet),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

// Run blocks until the session ends: disconnect, stop of the channel,
// or expiry. Teardown always runs, including the result handoff.
func (s *Session) Run(ctx context.Context) {
	infrastructure.ActiveSessions.Inc()
	defer infrastructure.ActiveSessions.Dec()
	defer s.teardown()

	if !s.authenticate(ctx) {
		return
	}
	s.commandLoop(ctx)
}

// authenticate runs the handshake: one message within the auth
// timeout, token decrypt, then the energy gate.
func (s *Session) authenticate(ctx context.Context) bool {
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))

	message, err := s.conn.ReadText()
	if err != nil {
		s.logger.Info("authentication read failed", zap.Error(err))
		s.conn.Close(closePolicyViolation, "authentication timeout")
		return false
	}

	var req struct {
		EncryptedToken string `json:"encrypted_token"`
	}
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		s.logger.Info("invalid json in auth message", zap.Error(err))
		s.conn.Close(closePolicyViolation, "invalid auth message")
		return false
	}
	if req.EncryptedToken == "" {
		s.conn.SendJSON(map[string]any{"error": "No encrypted_token provided"})
		s.conn.Close(closePolicyViolation, "missing token")
		return false
	}

	payload, err := auth.ParseToken(req.EncryptedToken, s.cfg.Secret)
	if err != nil {
		s.logger.Info("authentication failed", zap.Error(err))
		s.conn.SendJSON(map[string]any{"error": "Authentication failed"})
		s.conn.Close(closePolicyViolation, "authentication failed")
		return false
	}
	fid := strconv.FormatInt(payload.FID, 10)

	allowed, err := s.gate.ReduceEnergy(ctx, fid)
	if err != nil {
		s.logger.Error("energy gate failed", zap.String("fid", fid), zap.Error(err))
	}
	if err != nil || !allowed {
		s.conn.SendJSON(map[string]any{"error": "no energy"})
		s.conn.Close(closePolicyViolation, "no energy")
		return false
	}

	s.fid = fid
	s.authTime = time.Now()
	if s.tracker != nil {
		s.tracker.RecordGame(fid)
	}

	if err := s.conn.SendJSON(map[string]any{"authenticated": true, "fid": payload.FID}); err != nil {
		s.logger.Info("client gone before auth reply", zap.Error(err))
		return false
	}

	s.logger.Info("session authenticated", zap.String("fid", fid))
	// commands may arrive any time until expiry
	s.conn.SetReadDeadline(s.authTime.Add(s.cfg.SessionTimeout))
	return true
}

func (s *Session) expired() bool {
	if s.authTime.IsZero() {
		return false
	}
	return time.Since(s.authTime) >= s.cfg.SessionTimeout
}

func (s *Session) commandLoop(ctx context.Context) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.watchExpiry(sctx)

	for {
		if s.expired() {
			s.logger.Info("session expired in command loop", zap.String("fid", s.fid))
			return
		}

		message, err := s.conn.ReadText()
		if err != nil {
			s.logger.Info("client disconnected", zap.String("fid", s.fid), zap.Error(err))
			return
		}

		switch message {
		case "start":
			s.handleStart(sctx)
		case "stop":
			s.handleStop()
		case "long", "short", "close":
			if !s.handleOrder(message) {
				return
			}
		default:
			if err := s.conn.SendText("Message received: " + message); err != nil {
				return
			}
		}
	}
}

// watchExpiry closes the channel when the session clock runs out; the
// blocked read in the command loop then unblocks with an error.
func (s *Session) watchExpiry(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.SessionTimeout):
		s.logger.Info("session timeout reached", zap.String("fid", s.fid))
		s.conn.SendJSON(map[string]any{
			"type":    "session_timeout",
			"message": "Session expired",
		})
		s.conn.Close(1000, "session timeout")
	}
}

func (s *Session) handleStart(ctx context.Context) {
	if s.run != nil && !s.run.finished() {
		s.conn.SendText("Already streaming.")
		return
	}

	// a re-issued start replays the series against a fresh ledger
	s.wallet = wallet.New(s.series, s.cfg.Wallet)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.run = &streamRun{cancel: cancel, done: done}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.streamPrices(runCtx, cancel)
	}()
	go func() {
		defer wg.Done()
		s.settleLoop(runCtx, cancel)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	infrastructure.SessionsStarted.Inc()
	s.conn.SendText("Streaming started.")
}

func (s *Session) handleStop() {
	if s.run == nil {
		s.conn.SendText("Nothing is streaming.")
		return
	}
	s.run.cancel()
	s.conn.SendText("Streaming stopped.")
}

// handleOrder enqueues a rate-limited trade intent at the current
// streamer cursor. Returns false only when the client is gone.
func (s *Session) handleOrder(action string) bool {
	if !s.limiter.Allow() {
		infrastructure.RateLimitRejections.Inc()
		return s.conn.SendJSON(map[string]any{
			"error":   "Rate limit exceeded",
			"message": "Maximum 15 actions per second",
		}) == nil
	}

	index := s.flow.CurrentIndex()
	switch action {
	case "long":
		s.wallet.PushLong(index)
	case "short":
		s.wallet.PushShort(index)
	case "close":
		s.wallet.PushClose(index)
	}

	s.actions = append(s.actions, model.TradeAction{
		Action: action,
		Time:   time.Now(),
		Index:  index,
	})
	infrastructure.CommandsTotal.WithLabelValues(action).Inc()
	return true
}

// streamPrices sends the initial window then drives the sliding flow.
// Any send failure is an implicit disconnect and cancels the run.
func (s *Session) streamPrices(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	window, err := s.flow.InitWindow()
	if err != nil {
		s.logger.Error("window init failed", zap.Error(err))
		return
	}
	if err := s.conn.SendJSON(map[string]any{"count": len(window), "window": window}); err != nil {
		return
	}

	err = s.flow.Run(ctx, func(frame model.PriceFrame) error {
		return s.conn.SendJSON(frame)
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Info("price stream ended", zap.Error(err))
	}
}

// settleLoop drains the intent queues and marks the ledger to market
// on a fixed cadence, pushing a wallet snapshot each tick.
func (s *Session) settleLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	ticker := time.NewTicker(s.cfg.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.wallet.ConsumeQueue()
		if s.wallet.Settle(s.flow.CurrentIndex()) {
			infrastructure.Liquidations.Inc()
		}

		frame := model.WalletFrame{Type: "wallet", Wallet: s.wallet.Snapshot()}
		if err := s.conn.SendJSON(frame); err != nil {
			s.logger.Info("wallet push failed", zap.Error(err))
			return
		}
	}
}

// teardown cancels outstanding tasks and hands the final report to the
// result sink. A lost report never blocks channel closure.
func (s *Session) teardown() {
	if s.run != nil {
		s.run.cancel()
		<-s.run.done
	}

	if s.fid == "" || len(s.actions) == 0 {
		return
	}

	state := s.wallet.Snapshot()
	finalProfit := state.BalanceTotal
	if finalProfit != 0 {
		finalProfit -= s.wallet.Capital()
	}

	result := model.SessionResult{
		FID:         s.fid,
		SessionID:   s.id.String(),
		Actions:     s.actions,
		FinalPnL:    finalProfit / pnlScale,
		FinalProfit: finalProfit,
	}

	if err := s.sink.Publish(result); err != nil {
		s.logger.Error("failed to hand off session result",
			zap.String("fid", s.fid), zap.Error(err))
		return
	}
	s.logger.Info("session result handed off",
		zap.String("fid", s.fid),
		zap.Int("actions", len(s.actions)),
		zap.Float64("final_profit", finalProfit))
}
