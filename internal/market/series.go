// Package market holds the pre-recorded price series a game session
// replays. Series data is loaded once at startup and is read-only for
// the lifetime of the process, so it is safe to share across sessions.
package market

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/Tradcast/Backend/internal/model"
)

var ErrOutOfRange = errors.New("candle index out of range")

// Series is an ordered, finite, immutable sequence of candles for one
// symbol.
type Series struct {
	symbol  string
	candles []model.Candle
}

func NewSeries(symbol string, candles []model.Candle) *Series {
	return &Series{symbol: symbol, candles: candles}
}

func (s *Series) Symbol() string { return s.symbol }

func (s *Series) Len() int { return len(s.candles) }

// At returns the candle at index i, failing with ErrOutOfRange for any
// index outside 0..Len()-1.
func (s *Series) At(i int) (model.Candle, error) {
	if i < 0 || i >= len(s.candles) {
		return model.Candle{}, fmt.Errorf("%w: %d of %d (%s)", ErrOutOfRange, i, len(s.candles), s.symbol)
	}
	return s.candles[i], nil
}

// Catalog is the process-wide set of loaded series, keyed by symbol.
type Catalog struct {
	series map[string]*Series
}

func NewCatalog(series map[string]*Series) *Catalog {
	return &Catalog{series: series}
}

func (c *Catalog) Get(symbol string) (*Series, bool) {
	s, ok := c.series[symbol]
	return s, ok
}

func (c *Catalog) Symbols() []string {
	symbols := make([]string, 0, len(c.series))
	for sym := range c.series {
		symbols = append(symbols, sym)
	}
	return symbols
}

func (c *Catalog) Len() int { return len(c.series) }

// Pick returns a uniformly random series. Each session replays one
// randomly chosen symbol.
func (c *Catalog) Pick() *Series {
	symbols := c.Symbols()
	if len(symbols) == 0 {
		return nil
	}
	return c.series[symbols[rand.Intn(len(symbols))]]
}
