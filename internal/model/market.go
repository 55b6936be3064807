package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle 代表一根K线: one immutable OHLCV record per time step.
// Never mutated after load.
type Candle struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Open      decimal.Decimal `json:"o" db:"open"`
	High      decimal.Decimal `json:"h" db:"high"`
	Low       decimal.Decimal `json:"l" db:"low"`
	Close     decimal.Decimal `json:"c" db:"close"`
	Volume    decimal.Decimal `json:"v" db:"volume"`
	Timestamp time.Time       `json:"t" db:"time"`
}

// PriceFrame is one sliding-window update pushed to the client.
type PriceFrame struct {
	Type   string   `json:"type"`
	Count  int      `json:"count"`
	Window []Candle `json:"window"`
}
