// Package wallet implements the per-session futures ledger. Every
// session owns exactly one Wallet; a single mutex serializes all
// mutation and reads because order intents arrive from the command
// loop while the settlement loop drains them and marks to market.
package wallet

import (
	"sync"

	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/model"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Config fixes the session economics. Leverage multiplies percentage
// price change, PositionSize is the margin locked per entry.
type Config struct {
	Leverage     float64
	Capital      float64
	PositionSize float64
}

func DefaultConfig() Config {
	return Config{Leverage: 20, Capital: 1000, PositionSize: 100}
}

// side tracks one direction's entries. Average price is the arithmetic
// mean of entry prices: every entry locks the same fixed margin.
type side struct {
	totalPrice float64
	numPos     int
}

func (s *side) average() (float64, bool) {
	if s.numPos == 0 {
		return 0, false
	}
	return s.totalPrice / float64(s.numPos), true
}

// Wallet is the isolated-margin ledger for one game session.
type Wallet struct {
	mu sync.Mutex

	series *market.Series
	cfg    Config

	balanceFree   float64
	balanceLocked float64
	balanceTotal  float64

	long      side
	short     side
	direction string // DirectionLong, DirectionShort or "" when flat

	longQueue  []int
	shortQueue []int
	closeQueue []int
}

func New(series *market.Series, cfg Config) *Wallet {
	return &Wallet{
		series:       series,
		cfg:          cfg,
		balanceFree:  cfg.Capital,
		balanceTotal: cfg.Capital,
	}
}

func (w *Wallet) Capital() float64 { return w.cfg.Capital }

// PushLong enqueues a long intent at a price-series index. Intents are
// side-effect free until the settlement loop drains them.
func (w *Wallet) PushLong(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.longQueue = append(w.longQueue, index)
}

func (w *Wallet) PushShort(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shortQueue = append(w.shortQueue, index)
}

func (w *Wallet) PushClose(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeQueue = append(w.closeQueue, index)
}

// ConsumeQueue drains the pending intents: all longs, then all shorts,
// then all closes, regardless of enqueue interleaving. The fixed order
// is the tie-break for intents queued within the same settlement tick.
func (w *Wallet) ConsumeQueue() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, index := range w.longQueue {
		w.addLong(index)
	}
	for _, index := range w.shortQueue {
		w.addShort(index)
	}
	for _, index := range w.closeQueue {
		w.closePosition(index)
	}

	w.longQueue = w.longQueue[:0]
	w.shortQueue = w.shortQueue[:0]
	w.closeQueue = w.closeQueue[:0]
}

// AddLong opens or pyramids a long entry. Returns false without
// touching balances when a short is open, free balance is below the
// position size, or the index is invalid.
func (w *Wallet) AddLong(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLong(index)
}

func (w *Wallet) AddShort(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addShort(index)
}

func (w *Wallet) addLong(index int) bool {
	if w.short.numPos > 0 {
		return false
	}
	if w.balanceFree < w.cfg.PositionSize {
		return false
	}
	candle, err := w.series.At(index)
	if err != nil {
		return false
	}

	w.long.totalPrice += candle.Close.InexactFloat64()
	w.long.numPos++
	w.direction = DirectionLong
	w.balanceLocked += w.cfg.PositionSize
	w.balanceFree -= w.cfg.PositionSize
	// no unrealized PnL yet, entry price equals the current reference
	w.balanceTotal = w.balanceFree + w.balanceLocked
	return true
}

func (w *Wallet) addShort(index int) bool {
	if w.long.numPos > 0 {
		return false
	}
	if w.balanceFree < w.cfg.PositionSize {
		return false
	}
	candle, err := w.series.At(index)
	if err != nil {
		return false
	}

	w.short.totalPrice += candle.Close.InexactFloat64()
	w.short.numPos++
	w.direction = DirectionShort
	w.balanceLocked += w.cfg.PositionSize
	w.balanceFree -= w.cfg.PositionSize
	w.balanceTotal = w.balanceFree + w.balanceLocked
	return true
}

// ClosePosition realizes PnL at the given index and releases the
// locked margin back to free balance. Returns false when flat.
func (w *Wallet) ClosePosition(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closePosition(index)
}

func (w *Wallet) closePosition(index int) bool {
	var entry float64
	var ok bool
	switch w.direction {
	case DirectionLong:
		entry, ok = w.long.average()
	case DirectionShort:
		entry, ok = w.short.average()
	default:
		return false
	}
	if !ok {
		return false
	}

	candle, err := w.series.At(index)
	if err != nil {
		return false
	}

	change := (candle.Close.InexactFloat64() - entry) / entry
	profit := w.balanceLocked * change * w.cfg.Leverage
	if w.direction == DirectionShort {
		profit = -profit
	}

	w.balanceFree += w.balanceLocked + profit
	w.clearPositions()
	w.balanceTotal = w.balanceFree
	return true
}

// liquidate forfeits the locked margin entirely: it was already
// removed from free balance at entry, so nothing is credited back.
func (w *Wallet) liquidate() {
	w.clearPositions()
	w.balanceTotal = w.balanceFree
}

func (w *Wallet) clearPositions() {
	w.balanceLocked = 0
	w.long = side{}
	w.short = side{}
	w.direction = ""
}

// Settle marks the ledger to market at the given index and reports
// whether the position was liquidated this tick. Liquidation triggers
// on the intrabar extreme, not the close: a long is liquidated when
// the leveraged low-change reaches -100% of margin, a short when the
// leveraged high-change reaches +100%.
func (w *Wallet) Settle(index int) (liquidated bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var entry float64
	var ok bool
	switch w.direction {
	case DirectionLong:
		entry, ok = w.long.average()
	case DirectionShort:
		entry, ok = w.short.average()
	default:
		w.balanceTotal = w.balanceFree
		return false
	}
	if !ok {
		w.balanceTotal = w.balanceFree
		return false
	}

	candle, err := w.series.At(index)
	if err != nil {
		return false
	}

	changeClose := (candle.Close.InexactFloat64() - entry) / entry * w.cfg.Leverage

	if w.direction == DirectionLong {
		changeLow := (candle.Low.InexactFloat64() - entry) / entry * w.cfg.Leverage
		if changeLow <= -1.0 {
			w.liquidate()
			return true
		}
		unrealized := w.balanceLocked * changeClose
		w.balanceTotal = w.balanceFree + w.balanceLocked + unrealized
		return false
	}

	changeHigh := (candle.High.InexactFloat64() - entry) / entry * w.cfg.Leverage
	if changeHigh >= 1.0 {
		w.liquidate()
		return true
	}
	unrealized := -w.balanceLocked * changeClose
	w.balanceTotal = w.balanceFree + w.balanceLocked + unrealized
	return false
}

// Snapshot returns the current ledger state for outbound reporting.
func (w *Wallet) Snapshot() model.WalletState {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := model.WalletState{
		BalanceTotal: w.balanceTotal,
		TotalProfit:  (w.balanceTotal - w.cfg.Capital) / w.cfg.Capital,
		BalanceFree:  w.balanceFree,
		InPosition:   w.balanceLocked,
		Direction:    w.direction,
	}
	if avg, ok := w.long.average(); ok {
		state.LongAverage = &avg
	}
	if avg, ok := w.short.average(); ok {
		state.ShortAverage = &avg
	}
	return state
}
