package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplink-monitor/pkg/controller"
	"uplink-monitor/pkg/health"
	"uplink-monitor/pkg/metrics"
	"uplink-monitor/pkg/model"
	"uplink-monitor/pkg/store"
)

type fakeController struct {
	mu        sync.Mutex
	devices   []map[string]any
	groups    []map[string]any
	err       error
	groupsErr error
	// hang blocks device listing until the caller's context ends.
	hang bool
}

func (f *fakeController) ListDevices(ctx context.Context, _ string) ([]map[string]any, error) {
	f.mu.Lock()
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, fmt.Errorf("list devices: %w", ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.err
}

func (f *fakeController) ListWanGroups(context.Context, string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, f.groupsErr
}

func (f *fakeController) Site() string                { return "default" }
func (f *fakeController) BaseURL() string             { return "https://console.test" }
func (f *fakeController) Dialect() controller.Dialect { return controller.DialectUniFiOS }

func (f *fakeController) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type scriptedProber struct {
	mu      sync.Mutex
	results []bool
	calls   atomic.Int32
}

func (p *scriptedProber) push(ok ...bool) {
	p.mu.Lock()
	p.results = append(p.results, ok...)
	p.mu.Unlock()
}

func (p *scriptedProber) Run(context.Context) model.ProbeResult {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := true
	if len(p.results) > 0 {
		ok, p.results = p.results[0], p.results[1:]
	}
	res := model.ProbeResult{Success: ok, TargetURL: "https://probe.test"}
	if ok {
		ms := int64(12)
		res.LatencyMs = &ms
	}
	return res
}

type recorder struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recorder) Broadcast(msg model.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Type)
	}
	return out
}

type alerts struct {
	mu   sync.Mutex
	sent []model.AlertPayload
}

func (a *alerts) Notify(p model.AlertPayload) {
	a.mu.Lock()
	a.sent = append(a.sent, p)
	a.mu.Unlock()
}

type publishes struct {
	next []model.HealthState
}

func (p *publishes) Publish(_ context.Context, _ string, _, next model.HealthState, _ model.HistoryEntry) error {
	p.next = append(p.next, next)
	return nil
}

type fixture struct {
	svc     *Service
	ctrl    *fakeController
	prober  *scriptedProber
	out     *recorder
	audit   *store.MemoryLog
	alerts  *alerts
	pub     *publishes
	metrics *metrics.Metrics
	clock   *clock.Mock
}

func newFixture() *fixture {
	f := &fixture{
		ctrl:    &fakeController{},
		prober:  &scriptedProber{},
		out:     &recorder{},
		audit:   store.NewMemoryLog(),
		alerts:  &alerts{},
		pub:     &publishes{},
		metrics: metrics.New(),
		clock:   clock.NewMock(),
	}
	f.svc = New(Deps{
		Controller:  f.ctrl,
		Prober:      f.prober,
		Machine:     health.NewMachine(health.DefaultThresholds(), 50),
		Broadcaster: f.out,
		Audit:       f.audit,
		Notifier:    f.alerts,
		Publisher:   f.pub,
		Metrics:     f.metrics,
	}, Options{Interval: 10 * time.Second, CycleTimeout: time.Second, Clock: f.clock})
	return f
}

func (f *fixture) cycle(t *testing.T) health.Outcome {
	t.Helper()
	out, ok := f.svc.RunCycle(context.Background())
	require.True(t, ok)
	return out
}

func TestRunCycle_FailuresEscalateToDown(t *testing.T) {
	f := newFixture()
	f.prober.push(false, false, false, false)

	var states []model.HealthState
	for i := 0; i < 4; i++ {
		out := f.cycle(t)
		states = append(states, out.Next)
		f.clock.Add(10 * time.Second)
	}
	assert.Equal(t, []model.HealthState{
		model.StateUnknown, model.StateDegraded, model.StateDegraded, model.StateDown,
	}, states)

	recs := f.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.KindInternetDown, recs[0].Kind)
	assert.Equal(t, model.StateDegraded, recs[0].Prev)
	assert.Equal(t, model.StateDown, recs[0].Next)

	// UNKNOWN->DEGRADED is published but neither audited nor alerted.
	require.Len(t, f.alerts.sent, 1)
	assert.Equal(t, "Internet DOWN (PROBE_DOWN)", f.alerts.sent[0].Text)
	assert.Equal(t, model.StateDown, f.alerts.sent[0].State)
	assert.Equal(t, "default", f.alerts.sent[0].Details.Site)
	assert.Equal(t, "unifi-os", f.alerts.sent[0].Details.Mode)
	assert.Equal(t, []model.HealthState{model.StateDegraded, model.StateDown}, f.pub.next)

	assert.Equal(t, []string{
		model.MsgTick,
		model.MsgTick, model.MsgStateChange,
		model.MsgTick,
		model.MsgTick, model.MsgStateChange,
	}, f.out.types())
	assert.Len(t, f.svc.Status().History, 4)
}

func TestRunCycle_RecoveryIsAudited(t *testing.T) {
	f := newFixture()
	f.ctrl.devices = []map[string]any{{"_id": "gw1", "type": "ugw", "name": "Gateway", "wan1": map[string]any{"up": false}}}
	out := f.cycle(t)
	require.Equal(t, model.StateDown, out.Next)
	assert.Equal(t, model.ReasonWanLinkDown, out.Entry.Reason)

	f.ctrl.mu.Lock()
	f.ctrl.devices = []map[string]any{{"_id": "gw1", "type": "ugw", "name": "Gateway", "wan1": map[string]any{"up": true}}}
	f.ctrl.mu.Unlock()
	f.prober.push(true, true)
	f.cycle(t)
	out = f.cycle(t)
	require.Equal(t, model.StateOK, out.Next)

	recs := f.audit.Records()
	require.Len(t, recs, 2)
	kinds := []string{recs[0].Kind, recs[1].Kind}
	assert.ElementsMatch(t, []string{model.KindInternetDown, model.KindInternetRestored}, kinds)
	require.Len(t, f.alerts.sent, 2)
	assert.Equal(t, "Internet restored", f.alerts.sent[1].Text)
}

func TestRunCycle_ControllerErrorIsUnknown(t *testing.T) {
	f := newFixture()
	f.prober.push(true, true, true)
	f.cycle(t)
	f.cycle(t)
	require.Equal(t, model.StateOK, f.svc.Status().State)

	f.ctrl.setErr(&controller.TransportError{Method: "GET", Path: "/stat/device", Status: 502})
	out := f.cycle(t)
	assert.Equal(t, model.StateUnknown, out.Next)
	assert.Equal(t, model.ReasonControllerError, out.Entry.Reason)
	assert.NotEmpty(t, out.Entry.ControllerError)
	assert.True(t, out.Entry.Probe.Success)
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `uplink_monitor_controller_errors_total{kind="transport"} 1`)
}

func TestRunCycle_WanGroupErrorIsIgnored(t *testing.T) {
	f := newFixture()
	f.ctrl.groupsErr = errors.New("404")
	f.prober.push(true)
	out := f.cycle(t)
	assert.Equal(t, model.StateOK, out.Next)
	assert.Empty(t, out.Entry.ControllerError)
}

func TestRunCycle_ColdStartDoesNotAlert(t *testing.T) {
	f := newFixture()
	f.prober.push(true)
	out := f.cycle(t)
	require.Equal(t, model.StateOK, out.Next)
	assert.True(t, out.Changed())
	assert.Empty(t, f.alerts.sent)
	assert.Empty(t, f.audit.Records())
	assert.Equal(t, []model.HealthState{model.StateOK}, f.pub.next)
}

func TestRunCycle_CancelledMidCycleRecordsNothing(t *testing.T) {
	f := newFixture()
	f.prober.push(true, true)
	f.cycle(t)
	f.cycle(t)
	require.Equal(t, model.StateOK, f.svc.Status().State)
	sent := len(f.out.types())

	f.ctrl.mu.Lock()
	f.ctrl.hang = true
	f.ctrl.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, ok := f.svc.RunCycle(ctx)
	assert.False(t, ok)

	st := f.svc.Status()
	assert.Equal(t, model.StateOK, st.State)
	assert.Len(t, st.History, 2)
	assert.Len(t, f.out.types(), sent)
	assert.Empty(t, f.alerts.sent)
	assert.Equal(t, []model.HealthState{model.StateOK}, f.pub.next)
}

func TestService_LoopTicksOnClock(t *testing.T) {
	f := newFixture()
	f.svc.Start(context.Background())
	defer f.svc.Stop()

	assert.Eventually(t, func() bool { return f.prober.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	f.clock.Add(10 * time.Second)
	assert.Eventually(t, func() bool { return f.prober.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
