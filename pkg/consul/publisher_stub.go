//go:build !consul

package consul

import (
	"context"

	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

// Publisher is a no-op when the consul build tag is not enabled.
type Publisher struct{}

// StateKey is where the state for site is stored.
func StateKey(site string) string {
	return "uplink-monitor/" + site + "/state"
}

func New(addr, _ string, log *zap.Logger) (*Publisher, error) {
	if addr != "" && log != nil {
		log.Warn("consul publishing requested but consul build tag not enabled", zap.String("addr", addr))
	}
	return &Publisher{}, nil
}

func (p *Publisher) Enabled() bool { return false }

func (p *Publisher) Publish(context.Context, string, model.HealthState, model.HealthState, model.HistoryEntry) error {
	return nil
}
