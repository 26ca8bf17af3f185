// Package monitor runs the polling loop: each cycle queries the controller and
// the active probe concurrently, reconciles the WAN verdict, advances the
// health state machine and distributes the result.
package monitor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"uplink-monitor/pkg/alert"
	"uplink-monitor/pkg/controller"
	"uplink-monitor/pkg/health"
	"uplink-monitor/pkg/metrics"
	"uplink-monitor/pkg/model"
	"uplink-monitor/pkg/reconcile"
	"uplink-monitor/pkg/store"
)

// Controller is the subset of the controller client a cycle needs.
type Controller interface {
	ListDevices(ctx context.Context, site string) ([]map[string]any, error)
	ListWanGroups(ctx context.Context, site string) ([]map[string]any, error)
	Site() string
	BaseURL() string
	Dialect() controller.Dialect
}

type Prober interface {
	Run(ctx context.Context) model.ProbeResult
}

type Broadcaster interface {
	Broadcast(msg model.Message)
}

type Notifier interface {
	Notify(p model.AlertPayload)
}

// Publisher mirrors transitions to an external key/value store.
type Publisher interface {
	Publish(ctx context.Context, site string, prev, next model.HealthState, entry model.HistoryEntry) error
}

// Options tune the loop timing.
type Options struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	Clock        clock.Clock
}

// Service owns the state machine. Cycles never overlap: the loop runs them one
// at a time on a single goroutine and ticks that fire during a slow cycle are
// coalesced.
type Service struct {
	ctrl      Controller
	prober    Prober
	machine   *health.Machine
	out       Broadcaster
	audit     store.Sink
	notifier  Notifier
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger

	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock

	cancel context.CancelFunc
	done   chan struct{}
}

// Deps are the collaborators of a Service. Notifier, Publisher and Metrics
// are optional.
type Deps struct {
	Controller  Controller
	Prober      Prober
	Machine     *health.Machine
	Broadcaster Broadcaster
	Audit       store.Sink
	Notifier    Notifier
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Log         *zap.Logger
}

func New(d Deps, opts Options) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = alert.NewNotifier("", nil)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Service{
		ctrl:      d.Controller,
		prober:    d.Prober,
		machine:   d.Machine,
		out:       d.Broadcaster,
		audit:     d.Audit,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		log:       d.Log.Named("monitor"),
		interval:  opts.Interval,
		timeout:   opts.CycleTimeout,
		clock:     opts.Clock,
	}
}

// Start launches the polling loop in a background goroutine. The first cycle
// runs immediately.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Service) run(ctx context.Context) {
	s.log.Info("polling loop started", zap.Duration("interval", s.interval), zap.String("site", s.ctrl.Site()))
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("polling loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// cycleData is everything gathered concurrently in one cycle.
type cycleData struct {
	devices   []map[string]any
	groups    []map[string]any
	ctrlErr   error
	groupsErr error
	probe     model.ProbeResult
}

// RunCycle executes one full cycle and returns the state machine outcome.
// Failures are absorbed into the recorded entry; a cycle never returns an error.
// ok is false when ctx ended during the cycle: the partial results are
// discarded and nothing is recorded or distributed.
func (s *Service) RunCycle(ctx context.Context) (out health.Outcome, ok bool) {
	start := s.clock.Now()
	data := s.gather(ctx)
	if ctx.Err() != nil {
		s.log.Debug("cycle abandoned", zap.Error(ctx.Err()))
		return health.Outcome{}, false
	}

	in := health.Input{Time: s.clock.Now(), Probe: data.probe}
	if data.ctrlErr != nil {
		kind := controller.Kind(data.ctrlErr)
		s.metrics.ControllerError(kind)
		s.log.Warn("controller query failed", zap.String("kind", kind), zap.Error(data.ctrlErr))
		in.ControllerError = data.ctrlErr.Error()
	} else {
		res := reconcile.Reconcile(reconcile.Input{Devices: data.devices, WanGroups: data.groups})
		in.WanUp = res.Verdict.Up
		in.WanDetail = res.Verdict.Detail
		in.Gateway = res.Gateway
	}
	if data.groupsErr != nil {
		s.log.Debug("wan groups unavailable", zap.Error(data.groupsErr))
	}

	out = s.machine.Apply(in)
	s.out.Broadcast(model.TickMessage(out.Next, out.Entry))
	if out.Changed() {
		s.transition(ctx, out)
	}
	s.metrics.ObserveCycle(s.clock.Since(start), data.probe)
	fails, successes := s.machine.Counters()
	s.log.Debug("cycle complete",
		zap.String("state", string(out.Next)),
		zap.String("reason", out.Entry.Reason),
		zap.Bool("probeOk", data.probe.Success),
		zap.Int("fails", fails),
		zap.Int("successes", successes),
	)
	return out, true
}

// gather runs the controller reads and the probe concurrently under one
// timeout and waits for all of them.
func (s *Service) gather(ctx context.Context) cycleData {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	site := s.ctrl.Site()
	var d cycleData
	var g errgroup.Group
	g.Go(func() error {
		d.devices, d.ctrlErr = s.ctrl.ListDevices(ctx, site)
		return nil
	})
	g.Go(func() error {
		d.groups, d.groupsErr = s.ctrl.ListWanGroups(ctx, site)
		if d.groupsErr != nil {
			d.groups = nil
		}
		return nil
	})
	g.Go(func() error {
		d.probe = s.prober.Run(ctx)
		return nil
	})
	_ = g.Wait()
	return d
}

func (s *Service) transition(ctx context.Context, out health.Outcome) {
	e := out.Entry
	s.log.Info("state changed",
		zap.String("prev", string(out.Prev)),
		zap.String("next", string(out.Next)),
		zap.String("reason", e.Reason),
		zap.String("note", e.Note),
	)
	s.metrics.Transition(out.Prev, out.Next)
	s.out.Broadcast(model.StateChangeMessage(out.Prev, out.Next, e))

	kind := model.AuditKind(out.Prev, out.Next)
	if kind == "" {
		s.publish(ctx, out)
		return
	}
	if s.audit != nil {
		rec := model.AuditRecord{
			Timestamp: e.Timestamp,
			Kind:      kind,
			Prev:      out.Prev,
			Next:      out.Next,
			Probe:     e.Probe,
			WanUp:     e.WanUp,
			Gateway:   e.Gateway,
			Note:      e.Note,
		}
		if err := s.audit.Append(ctx, rec); err != nil {
			s.log.Error("audit append failed", zap.Error(err))
		}
	}

	s.notifier.Notify(model.AlertPayload{
		Text:  alert.Text(out.Next, e.Reason),
		TS:    e.Timestamp,
		State: out.Next,
		Details: model.AlertDetails{
			BaseURL:   s.ctrl.BaseURL(),
			Site:      s.ctrl.Site(),
			Mode:      string(s.ctrl.Dialect()),
			Probe:     e.Probe,
			WanUp:     e.WanUp,
			WanHealth: e.WanVerdictDetail,
			Gateway:   e.Gateway,
		},
	})
	s.publish(ctx, out)
}

// publish mirrors every transition to the key/value store when configured.
func (s *Service) publish(ctx context.Context, out health.Outcome) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.ctrl.Site(), out.Prev, out.Next, out.Entry); err != nil {
		s.log.Warn("state publish failed", zap.Error(err))
	}
}

// Status returns the current state and retained history.
func (s *Service) Status() model.Status {
	return s.machine.Status()
}
