// Package stream drives the sliding price window of a game session.
package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/model"
)

const frameTypePrices = "prices"

// SendFunc delivers one frame to the client. A non-nil error is
// treated as a disconnect and stops the flow.
type SendFunc func(frame model.PriceFrame) error

// Flow slides a fixed-size window over one price series, emitting a
// frame per tick. The cursor is atomic: the settlement loop reads it
// from another goroutine.
type Flow struct {
	series     *market.Series
	windowSize int
	tick       time.Duration

	cursor atomic.Int64
	window []model.Candle
}

func New(series *market.Series, windowSize int, tick time.Duration) *Flow {
	return &Flow{
		series:     series,
		windowSize: windowSize,
		tick:       tick,
	}
}

// CurrentIndex is the series index of the newest candle in the window.
func (f *Flow) CurrentIndex() int {
	return int(f.cursor.Load())
}

// InitWindow seeds the window with the first windowSize candles and
// returns a copy for the initial frame.
func (f *Flow) InitWindow() ([]model.Candle, error) {
	f.window = f.window[:0]
	for i := 0; i < f.windowSize && i < f.series.Len(); i++ {
		candle, err := f.series.At(i)
		if err != nil {
			return nil, err
		}
		f.window = append(f.window, candle)
	}
	f.cursor.Store(int64(len(f.window) - 1))

	out := make([]model.Candle, len(f.window))
	copy(out, f.window)
	return out, nil
}

// Run slides the window one candle per tick until the series is
// exhausted, then runs the whole range once more before returning.
// Every slide waits a full tick first, so the initial window frame and
// the first slide are a tick apart. Cancellation stops emission
// immediately.
func (f *Flow) Run(ctx context.Context, send SendFunc) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for pass := 0; pass < 2; pass++ {
		for i := f.windowSize; i < f.series.Len(); i++ {
			// a cancellation during send wins over a pending tick
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			candle, err := f.series.At(i)
			if err != nil {
				return err
			}

			f.cursor.Store(int64(i))
			f.window = append(f.window[1:], candle)

			frame := model.PriceFrame{
				Type:   frameTypePrices,
				Count:  i + 1,
				Window: append([]model.Candle(nil), f.window...),
			}
			if err := send(frame); err != nil {
				return err
			}
		}
	}
	return nil
}
