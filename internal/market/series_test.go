package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tradcast/Backend/internal/model"
)

func testCandles(n int) []model.Candle {
	candles := make([]model.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := decimal.NewFromInt(int64(100 + i))
		candles[i] = model.Candle{
			Symbol:    "somi",
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return candles
}

func TestSeriesAt(t *testing.T) {
	s := NewSeries("somi", testCandles(5))
	assert.Equal(t, 5, s.Len())

	c, err := s.At(0)
	require.NoError(t, err)
	assert.True(t, c.Close.Equal(decimal.NewFromInt(100)))

	c, err = s.At(4)
	require.NoError(t, err)
	assert.True(t, c.Close.Equal(decimal.NewFromInt(104)))
}

func TestSeriesAtOutOfRange(t *testing.T) {
	s := NewSeries("somi", testCandles(3))

	_, err := s.At(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = s.At(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCatalogPick(t *testing.T) {
	c := NewCatalog(map[string]*Series{
		"somi": NewSeries("somi", testCandles(3)),
		"arb":  NewSeries("arb", testCandles(3)),
	})
	assert.Equal(t, 2, c.Len())
	assert.ElementsMatch(t, []string{"somi", "arb"}, c.Symbols())

	for i := 0; i < 10; i++ {
		s := c.Pick()
		require.NotNil(t, s)
		assert.Contains(t, []string{"somi", "arb"}, s.Symbol())
	}

	empty := NewCatalog(nil)
	assert.Nil(t, empty.Pick())
}
