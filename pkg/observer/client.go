// Package observer is the consuming side of the push channel. It keeps a
// local copy of the health timeline, reconnects with bounded backoff and
// flags the view stale when updates stop arriving.
package observer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

type Options struct {
	URL        string
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxAttempt int
	HistoryCap int
	StaleAfter time.Duration
	StaleCheck time.Duration
	Header     http.Header
	Dialer     *websocket.Dialer
	Clock      clock.Clock
	Log        *zap.Logger
}

func (o *Options) defaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempt <= 0 {
		o.MaxAttempt = 6
	}
	if o.HistoryCap <= 0 {
		o.HistoryCap = 200
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 30 * time.Second
	}
	if o.StaleCheck <= 0 {
		o.StaleCheck = 5 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Callbacks are invoked from the client's goroutines; they must not block.
type Callbacks struct {
	OnConnState   func(ConnectionState)
	OnSnapshot    func(model.Status)
	OnTick        func(state model.HealthState, entry model.HistoryEntry, added bool)
	OnStateChange func(prev, next model.HealthState, entry model.HistoryEntry)
	OnStale       func(stale bool)
}

type Client struct {
	opts Options
	cb   Callbacks
	view *View
	log  *zap.Logger

	mu    sync.Mutex
	phase Phase
	retry int
}

func New(opts Options, cb Callbacks) *Client {
	opts.defaults()
	return &Client{
		opts: opts,
		cb:   cb,
		view: NewView(opts.HistoryCap),
		log:  opts.Log.Named("observer"),
	}
}

func (c *Client) View() *View { return c.view }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionState{Phase: c.phase, RetryAttempt: c.retry}
}

// Run connects and keeps reconnecting until ctx is cancelled. It always
// returns after moving to offline.
func (c *Client) Run(ctx context.Context) error {
	staleDone := make(chan struct{})
	go func() {
		defer close(staleDone)
		c.watchStale(ctx)
	}()
	defer func() { <-staleDone }()

	for {
		c.setPhase(PhaseConnecting, 0)
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setPhase(PhaseOffline, 0)
			return nil
		}
		c.log.Warn("connection lost", zap.String("url", c.opts.URL), zap.Error(err))

		timer := c.scheduleRetry()
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setPhase(PhaseOffline, 0)
			return nil
		case <-timer.C:
		}
	}
}

// scheduleRetry bumps the attempt counter, arms the retry timer and moves to
// reconnecting.
func (c *Client) scheduleRetry() *clock.Timer {
	c.mu.Lock()
	if c.retry < c.opts.MaxAttempt {
		c.retry++
	}
	attempt := c.retry
	c.mu.Unlock()
	delay := Backoff(attempt, c.opts.MaxAttempt, c.opts.BaseDelay, c.opts.MaxDelay)
	timer := c.opts.Clock.Timer(delay)
	c.setPhase(PhaseReconnecting, delay)
	return timer
}

func (c *Client) setPhase(to Phase, retryIn time.Duration) {
	c.mu.Lock()
	next, err := c.phase.next(to)
	if err != nil {
		c.mu.Unlock()
		if c.phase != to {
			c.log.Debug("ignored phase change", zap.Error(err))
		}
		return
	}
	c.phase = next
	if next == PhaseOnline {
		c.retry = 0
	}
	st := ConnectionState{Phase: next, RetryAttempt: c.retry, RetryIn: retryIn}
	c.mu.Unlock()

	if c.cb.OnConnState != nil {
		c.cb.OnConnState(st)
	}
}

// session dials, requests a snapshot and consumes messages until the
// connection drops or ctx ends.
func (c *Client) session(ctx context.Context) error {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("dial %s (status %d): %w", c.opts.URL, status, err)
	}
	defer conn.Close()
	c.setPhase(PhaseOnline, 0)
	c.log.Info("connected", zap.String("url", c.opts.URL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(map[string]string{"type": model.MsgSnapshot}); err != nil {
		return fmt.Errorf("request snapshot: %w", err)
	}
	for {
		var msg model.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return errors.New("server closed connection")
			}
			return err
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg model.Message) {
	now := c.opts.Clock.Now()
	if c.view.clearStale() && c.cb.OnStale != nil {
		c.cb.OnStale(false)
	}
	switch msg.Type {
	case model.MsgSnapshot:
		if msg.Data == nil {
			return
		}
		c.view.ReplaceSnapshot(*msg.Data, now)
		if c.cb.OnSnapshot != nil {
			c.cb.OnSnapshot(*msg.Data)
		}
	case model.MsgTick:
		if msg.Entry == nil {
			return
		}
		added := c.view.Merge(msg.State, *msg.Entry, now)
		if c.cb.OnTick != nil {
			c.cb.OnTick(msg.State, *msg.Entry, added)
		}
	case model.MsgStateChange:
		if msg.Entry == nil {
			return
		}
		// The tick for the same cycle normally arrived first; merge dedups.
		c.view.Merge(msg.Next, *msg.Entry, now)
		if c.cb.OnStateChange != nil {
			c.cb.OnStateChange(msg.Prev, msg.Next, *msg.Entry)
		}
	default:
		c.log.Debug("unknown message", zap.String("type", msg.Type))
	}
}

func (c *Client) watchStale(ctx context.Context) {
	t := c.opts.Clock.Ticker(c.opts.StaleCheck)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stale, changed := c.view.checkStale(c.opts.Clock.Now(), c.opts.StaleAfter)
			if changed && c.cb.OnStale != nil {
				c.cb.OnStale(stale)
			}
		}
	}
}
