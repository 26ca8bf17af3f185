// Package probe checks internet reachability independently of the controller.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

// Prober issues HTTP reachability checks against an ordered target list.
type Prober struct {
	client  *http.Client
	targets []string
	timeout time.Duration
	log     *zap.Logger
}

func New(targets []string, timeout time.Duration, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{
		client: &http.Client{
			// redirects count as a response; the probe only cares that something answered
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		targets: targets,
		timeout: timeout,
		log:     log.Named("probe"),
	}
}

// Run tries each target in order and returns on the first success. Each
// attempt gets its own timeout so a hanging target does not eat into the next.
func (p *Prober) Run(ctx context.Context) model.ProbeResult {
	for _, target := range p.targets {
		if ctx.Err() != nil {
			break
		}
		ms, err := p.check(ctx, target)
		if err != nil {
			p.log.Debug("target failed", zap.String("url", target), zap.Error(err))
			continue
		}
		return model.ProbeResult{Success: true, TargetURL: target, LatencyMs: &ms}
	}
	first := ""
	if len(p.targets) > 0 {
		first = p.targets[0]
	}
	return model.ProbeResult{Success: false, TargetURL: first}
}

func (p *Prober) check(ctx context.Context, target string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start).Milliseconds()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	return elapsed, nil
}
