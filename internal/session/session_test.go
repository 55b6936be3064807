package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/auth"
	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/model"
)

const testSecret = "session-test-secret"

// fakeConn replays a scripted inbound message sequence and records
// everything the session sends.
type fakeConn struct {
	mu     sync.Mutex
	in     chan string
	frames []any
	texts  []string

	closedCode   int
	closedReason string
	closeCount   int
}

func newFakeConn(messages ...string) *fakeConn {
	c := &fakeConn{in: make(chan string, len(messages))}
	for _, m := range messages {
		c.in <- m
	}
	close(c.in)
	return c
}

func (c *fakeConn) ReadText() (string, error) {
	msg, ok := <-c.in
	if !ok {
		return "", io.EOF
	}
	return msg, nil
}

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *fakeConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closeCount == 1 {
		c.closedCode = code
		c.closedReason = reason
	}
	return nil
}

// errorFrames returns the sent maps carrying an "error" key.
func (c *fakeConn) errorFrames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if m, ok := f.(map[string]any); ok {
			if _, has := m["error"]; has {
				out = append(out, m)
			}
		}
	}
	return out
}

func (c *fakeConn) authFrame() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if m, ok := f.(map[string]any); ok {
			if _, has := m["authenticated"]; has {
				return m
			}
		}
	}
	return nil
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type fakeGate struct {
	allow bool
	err   error
	fids  []string
}

func (g *fakeGate) ReduceEnergy(_ context.Context, fid string) (bool, error) {
	g.fids = append(g.fids, fid)
	return g.allow, g.err
}

type fakeSink struct {
	mu      sync.Mutex
	err     error
	results []model.SessionResult
}

func (s *fakeSink) Publish(result model.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

func sessionSeries(n int) *market.Series {
	candles := make([]model.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := decimal.NewFromInt(int64(100 + i))
		candles[i] = model.Candle{
			Symbol: "somi", Open: price, High: price, Low: price, Close: price,
			Volume: decimal.NewFromInt(1), Timestamp: start.Add(time.Duration(i) * time.Second),
		}
	}
	return market.NewSeries("somi", candles)
}

func testConfig() Config {
	cfg := DefaultConfig(testSecret)
	cfg.WindowSize = 4
	cfg.TickInterval = 50 * time.Millisecond
	cfg.SettleInterval = 10 * time.Millisecond
	cfg.SessionTimeout = 30 * time.Second
	cfg.AuthTimeout = 5 * time.Second
	return cfg
}

func validToken(t *testing.T, fid int64) string {
	t.Helper()
	token, err := auth.Encrypt([]byte(fmt.Sprintf(`{"fid":%d}`, fid)), testSecret)
	require.NoError(t, err)
	return fmt.Sprintf(`{"encrypted_token":%q}`, token)
}

func runSession(conn Conn, gate *fakeGate, sink *fakeSink) *Session {
	s := New(conn, sessionSeries(200), gate, sink, nil, testConfig(), zap.NewNop())
	s.Run(context.Background())
	return s
}

func TestAuthRejectsInvalidJSON(t *testing.T) {
	conn := newFakeConn("not json at all")
	sink := &fakeSink{}
	runSession(conn, &fakeGate{allow: true}, sink)

	assert.Equal(t, closePolicyViolation, conn.closedCode)
	assert.Nil(t, conn.authFrame())
	assert.Empty(t, sink.results)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	conn := newFakeConn(`{"something_else":"x"}`)
	runSession(conn, &fakeGate{allow: true}, &fakeSink{})

	require.Len(t, conn.errorFrames(), 1)
	assert.Equal(t, "No encrypted_token provided", conn.errorFrames()[0]["error"])
	assert.Equal(t, closePolicyViolation, conn.closedCode)
}

func TestAuthRejectsUndecryptableToken(t *testing.T) {
	conn := newFakeConn(`{"encrypted_token":"aa:bb:cc"}`)
	runSession(conn, &fakeGate{allow: true}, &fakeSink{})

	require.Len(t, conn.errorFrames(), 1)
	assert.Equal(t, "Authentication failed", conn.errorFrames()[0]["error"])
	assert.Equal(t, closePolicyViolation, conn.closedCode)
}

func TestAuthRejectsWhenEnergyExhausted(t *testing.T) {
	conn := newFakeConn(validToken(t, 777))
	gate := &fakeGate{allow: false}
	runSession(conn, gate, &fakeSink{})

	assert.Equal(t, []string{"777"}, gate.fids)
	require.Len(t, conn.errorFrames(), 1)
	assert.Equal(t, "no energy", conn.errorFrames()[0]["error"])
	assert.Equal(t, closePolicyViolation, conn.closedCode)
}

func TestAuthHappyPath(t *testing.T) {
	conn := newFakeConn(validToken(t, 777))
	gate := &fakeGate{allow: true}
	sink := &fakeSink{}
	runSession(conn, gate, sink)

	frame := conn.authFrame()
	require.NotNil(t, frame)
	assert.Equal(t, true, frame["authenticated"])
	assert.Equal(t, int64(777), frame["fid"])
	assert.Equal(t, []string{"777"}, gate.fids)

	// no trade actions, nothing to persist
	assert.Empty(t, sink.results)
}

func TestCommandsEnqueueAndResultIsPublished(t *testing.T) {
	conn := newFakeConn(validToken(t, 777), "long", "long", "close")
	sink := &fakeSink{}
	runSession(conn, &fakeGate{allow: true}, sink)

	require.Len(t, sink.results, 1)
	result := sink.results[0]
	assert.Equal(t, "777", result.FID)
	require.Len(t, result.Actions, 3)
	assert.Equal(t, "long", result.Actions[0].Action)
	assert.Equal(t, "close", result.Actions[2].Action)

	_, err := uuid.Parse(result.SessionID)
	assert.NoError(t, err)

	// the queues were never consumed (no start), the ledger is flat at
	// its capital: final profit normalizes to zero
	assert.Equal(t, 0.0, result.FinalProfit)
	assert.Equal(t, 0.0, result.FinalPnL)
}

func TestOrderBurstHitsRateLimit(t *testing.T) {
	messages := []string{validToken(t, 777)}
	for i := 0; i < 16; i++ {
		messages = append(messages, "long")
	}
	conn := newFakeConn(messages...)
	sink := &fakeSink{}
	runSession(conn, &fakeGate{allow: true}, sink)

	var limited []map[string]any
	for _, frame := range conn.errorFrames() {
		if frame["error"] == "Rate limit exceeded" {
			limited = append(limited, frame)
		}
	}
	require.Len(t, limited, 1, "the 16th command is rejected with a notice")

	require.Len(t, sink.results, 1)
	assert.Len(t, sink.results[0].Actions, 15)
}

func TestUnknownCommandIsEchoed(t *testing.T) {
	conn := newFakeConn(validToken(t, 777), "hello there")
	runSession(conn, &fakeGate{allow: true}, &fakeSink{})

	assert.Contains(t, conn.sentTexts(), "Message received: hello there")
}

func TestStartStop(t *testing.T) {
	conn := newFakeConn(validToken(t, 777), "start", "start", "stop")
	runSession(conn, &fakeGate{allow: true}, &fakeSink{})

	texts := conn.sentTexts()
	assert.Contains(t, texts, "Streaming started.")
	assert.Contains(t, texts, "Already streaming.")
	assert.Contains(t, texts, "Streaming stopped.")
}

func TestStopWithoutStart(t *testing.T) {
	conn := newFakeConn(validToken(t, 777), "stop")
	runSession(conn, &fakeGate{allow: true}, &fakeSink{})

	assert.Contains(t, conn.sentTexts(), "Nothing is streaming.")
}

func TestTeardownSurvivesSinkFailure(t *testing.T) {
	conn := newFakeConn(validToken(t, 777), "long")
	sink := &fakeSink{err: assert.AnError}
	runSession(conn, &fakeGate{allow: true}, sink)

	// a lost report never blocks closure
	assert.Empty(t, sink.results)
}

func TestSessionClosesOnExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTimeout = 50 * time.Millisecond

	conn := &fakeConn{in: make(chan string, 1)}
	conn.in <- validToken(t, 777)
	// channel left open: the read blocks until the watchdog closes

	s := New(conn, sessionSeries(200), &fakeGate{allow: true}, &fakeSink{}, nil, cfg, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	// the fake read never errors, so unblock it after the watchdog fires
	time.Sleep(120 * time.Millisecond)
	var gotTimeout bool
	conn.mu.Lock()
	for _, f := range conn.frames {
		if m, ok := f.(map[string]any); ok && m["type"] == "session_timeout" {
			gotTimeout = true
		}
	}
	conn.mu.Unlock()
	assert.True(t, gotTimeout, "watchdog sent the timeout notice")

	close(conn.in)
	<-done
}
