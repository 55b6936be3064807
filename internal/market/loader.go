package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/model"
)

// Loader reads candle history out of Postgres into an in-memory
// catalog. The table is append-only market data; nothing here writes
// to it.
type Loader struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewLoader(pool *pgxpool.Pool, logger *zap.Logger) *Loader {
	return &Loader{pool: pool, logger: logger}
}

// LoadSeries fetches the full candle history for one symbol, skipping
// the first startOffset rows.
func (l *Loader) LoadSeries(ctx context.Context, symbol string, startOffset int) (*Series, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT symbol, open, high, low, close, volume, time
		FROM klines
		WHERE symbol = $1
		ORDER BY time ASC
		OFFSET $2`,
		symbol, startOffset)
	if err != nil {
		return nil, fmt.Errorf("query klines for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan kline for %s: %w", symbol, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return NewSeries(symbol, candles), nil
}

// LoadCatalog loads every configured symbol. Symbols with no data are
// skipped with a warning rather than failing startup.
func (l *Loader) LoadCatalog(ctx context.Context, symbols []string, startOffset int) (*Catalog, error) {
	series := make(map[string]*Series, len(symbols))
	for _, sym := range symbols {
		s, err := l.LoadSeries(ctx, sym, startOffset)
		if err != nil {
			return nil, err
		}
		if s.Len() == 0 {
			l.logger.Warn("no candles for symbol, skipping", zap.String("symbol", sym))
			continue
		}
		series[sym] = s
		l.logger.Info("loaded series", zap.String("symbol", sym), zap.Int("candles", s.Len()))
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("no price series loaded for symbols %v", symbols)
	}
	return NewCatalog(series), nil
}
