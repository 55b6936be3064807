package stream

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/model"
)

func flowSeries(n int) *market.Series {
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
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
	}
	return market.NewSeries("somi", candles)
}

func TestInitWindow(t *testing.T) {
	f := New(flowSeries(10), 4, time.Millisecond)

	window, err := f.InitWindow()
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.True(t, window[0].Close.Equal(decimal.NewFromInt(100)))
	assert.True(t, window[3].Close.Equal(decimal.NewFromInt(103)))
	assert.Equal(t, 3, f.CurrentIndex())
}

func TestRunSlidesAndRepeatsRange(t *testing.T) {
	f := New(flowSeries(6), 4, time.Millisecond)
	_, err := f.InitWindow()
	require.NoError(t, err)

	var frames []model.PriceFrame
	err = f.Run(context.Background(), func(frame model.PriceFrame) error {
		frames = append(frames, frame)
		return nil
	})
	require.NoError(t, err)

	// two candles beyond the window, emitted over two passes
	require.Len(t, frames, 4)
	assert.Equal(t, 5, frames[0].Count)
	assert.Equal(t, 6, frames[1].Count)
	assert.Equal(t, 5, frames[2].Count)
	assert.Equal(t, 6, frames[3].Count)

	for _, frame := range frames {
		assert.Equal(t, "prices", frame.Type)
		assert.Len(t, frame.Window, 4)
	}

	// first slide drops candle 0 and appends candle 4
	assert.True(t, frames[0].Window[0].Close.Equal(decimal.NewFromInt(101)))
	assert.True(t, frames[0].Window[3].Close.Equal(decimal.NewFromInt(104)))
}

func TestRunWaitsOneTickBeforeFirstSlide(t *testing.T) {
	f := New(flowSeries(10), 4, 100*time.Millisecond)
	_, err := f.InitWindow()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var sent int
	err = f.Run(ctx, func(model.PriceFrame) error {
		sent++
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sent, "the first slide only goes out after a full tick")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := New(flowSeries(100), 4, time.Millisecond)
	_, err := f.InitWindow()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var sent int
	err = f.Run(ctx, func(model.PriceFrame) error {
		sent++
		if sent == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sent, "no frames after cancellation")
}

func TestRunStopsOnSendError(t *testing.T) {
	f := New(flowSeries(20), 4, time.Millisecond)
	_, err := f.InitWindow()
	require.NoError(t, err)

	wantErr := assert.AnError
	var sent int
	err = f.Run(context.Background(), func(model.PriceFrame) error {
		sent++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, sent)
}
