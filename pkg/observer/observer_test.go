package observer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplink-monitor/pkg/api"
	"uplink-monitor/pkg/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(sec int, state model.HealthState, latency *int64) model.HistoryEntry {
	return model.HistoryEntry{
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		State:     state,
		Probe:     model.ProbeResult{Success: latency != nil, TargetURL: "https://probe.test", LatencyMs: latency},
	}
}

func ms(v int64) *int64 { return &v }

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{500, 10 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Backoff(c.attempt, 6, base, max), "attempt %d", c.attempt)
	}
}

func TestBackoff_MonotonicUpToCap(t *testing.T) {
	prev := time.Duration(0)
	for i := 0; i < 100; i++ {
		d := Backoff(i, 8, 500*time.Millisecond, time.Minute)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, time.Minute)
		prev = d
	}
}

func TestPhaseTransitions(t *testing.T) {
	_, err := PhaseOffline.next(PhaseOnline)
	assert.Error(t, err)
	p, err := PhaseConnecting.next(PhaseOnline)
	require.NoError(t, err)
	assert.Equal(t, PhaseOnline, p)
	_, err = PhaseOnline.next(PhaseConnecting)
	assert.Error(t, err)
}

func TestView_MergeIsIdempotent(t *testing.T) {
	v := NewView(10)
	e := entry(1, model.StateOK, ms(20))
	assert.True(t, v.Merge(model.StateOK, e, t0))
	assert.False(t, v.Merge(model.StateOK, e, t0))
	assert.Len(t, v.History(), 1)

	// Same timestamp and state with no latency is a different key.
	assert.True(t, v.Merge(model.StateOK, entry(1, model.StateOK, nil), t0))
	assert.True(t, v.Merge(model.StateDegraded, entry(2, model.StateDegraded, nil), t0))
	h := v.History()
	require.Len(t, h, 3)
	assert.Equal(t, model.StateDegraded, h[0].State)
	assert.Equal(t, model.StateDegraded, v.State())
}

func TestView_CapAndSnapshot(t *testing.T) {
	v := NewView(3)
	for i := 0; i < 5; i++ {
		v.Merge(model.StateOK, entry(i, model.StateOK, ms(int64(i))), t0)
	}
	h := v.History()
	require.Len(t, h, 3)
	assert.Equal(t, t0.Add(4*time.Second), h[0].Timestamp)

	v.ReplaceSnapshot(model.Status{
		State:   model.StateDown,
		History: []model.HistoryEntry{entry(9, model.StateDown, nil)},
	}, t0)
	h = v.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.StateDown, v.State())
}

func TestView_Staleness(t *testing.T) {
	v := NewView(3)
	stale, changed := v.checkStale(t0.Add(time.Hour), time.Second)
	assert.False(t, stale, "no data yet")
	assert.False(t, changed)

	v.Merge(model.StateOK, entry(0, model.StateOK, ms(1)), t0)
	stale, changed = v.checkStale(t0.Add(5*time.Second), 10*time.Second)
	assert.False(t, stale)
	assert.False(t, changed)

	stale, changed = v.checkStale(t0.Add(11*time.Second), 10*time.Second)
	assert.True(t, stale)
	assert.True(t, changed)
	assert.True(t, v.Stale())

	assert.True(t, v.clearStale())
	assert.False(t, v.Stale())
}

type hubServer struct {
	hub *api.Hub
	srv *httptest.Server
	url string
}

func newHubServer(t *testing.T, st model.Status) *hubServer {
	t.Helper()
	hub := api.NewHub(func() model.Status { return st }, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &hubServer{hub: hub, srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func TestClient_SnapshotThenDedupedTicks(t *testing.T) {
	first := entry(0, model.StateOK, ms(10))
	hs := newHubServer(t, model.Status{State: model.StateOK, Label: "Internet OK", History: []model.HistoryEntry{first}})

	var snapshots, added, dupes atomic.Int32
	changes := make(chan model.HealthState, 4)
	c := New(Options{URL: hs.url, Clock: clock.NewMock()}, Callbacks{
		OnSnapshot: func(model.Status) { snapshots.Add(1) },
		OnTick: func(_ model.HealthState, _ model.HistoryEntry, ok bool) {
			if ok {
				added.Add(1)
			} else {
				dupes.Add(1)
			}
		},
		OnStateChange: func(_, next model.HealthState, _ model.HistoryEntry) { changes <- next },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	require.Eventually(t, func() bool { return snapshots.Load() == 2 && hs.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, PhaseOnline, c.State().Phase)
	assert.Len(t, c.View().History(), 1)

	tick := entry(10, model.StateDegraded, nil)
	hs.hub.Broadcast(model.TickMessage(model.StateDegraded, tick))
	hs.hub.Broadcast(model.StateChangeMessage(model.StateOK, model.StateDegraded, tick))
	hs.hub.Broadcast(model.TickMessage(model.StateDegraded, tick))

	assert.Equal(t, model.StateDegraded, <-changes)
	require.Eventually(t, func() bool { return added.Load()+dupes.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), added.Load())
	assert.Equal(t, int32(1), dupes.Load())
	h := c.View().History()
	require.Len(t, h, 2)
	assert.Equal(t, model.StateDegraded, h[0].State)

	cancel()
	<-done
	assert.Equal(t, PhaseOffline, c.State().Phase)
}

func TestClient_BackoffGrowsThenResets(t *testing.T) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	mock := clock.NewMock()
	states := make(chan ConnectionState, 32)
	c := New(Options{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		BaseDelay: time.Second,
		MaxDelay:  3 * time.Second,
		Clock:     mock,
	}, Callbacks{OnConnState: func(s ConnectionState) { states <- s }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	var delays []time.Duration
	var online ConnectionState
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case s := <-states:
			switch s.Phase {
			case PhaseReconnecting:
				delays = append(delays, s.RetryIn)
				mock.Add(s.RetryIn)
			case PhaseOnline:
				online = s
				break loop
			}
		case <-timeout:
			t.Fatal("never came online")
		}
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, delays)
	assert.Equal(t, 0, online.RetryAttempt)
	assert.Equal(t, 0, c.State().RetryAttempt)

	cancel()
	<-done
}

func TestClient_FlagsStaleView(t *testing.T) {
	hs := newHubServer(t, model.Status{State: model.StateOK, History: []model.HistoryEntry{entry(0, model.StateOK, ms(5))}})
	mock := clock.NewMock()
	var mu sync.Mutex
	var flags []bool
	var snaps atomic.Int32
	c := New(Options{URL: hs.url, Clock: mock, StaleAfter: 20 * time.Second, StaleCheck: 5 * time.Second}, Callbacks{
		OnSnapshot: func(model.Status) { snaps.Add(1) },
		OnStale: func(s bool) {
			mu.Lock()
			flags = append(flags, s)
			mu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	require.Eventually(t, func() bool { return snaps.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mock.Add(5 * time.Second)
		return c.View().Stale()
	}, 2*time.Second, 10*time.Millisecond)

	hs.hub.Broadcast(model.TickMessage(model.StateOK, entry(60, model.StateOK, ms(7))))
	require.Eventually(t, func() bool { return !c.View().Stale() }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, flags)
}
