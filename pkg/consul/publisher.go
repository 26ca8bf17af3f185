//go:build consul

package consul

import (
	"context"
	"encoding/json"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

// Publisher writes the current uplink state into Consul KV so other systems
// can react to outages without speaking the observer protocol.
type Publisher struct {
	cli *consulapi.Client
	log *zap.Logger
}

// StateKey is where the state for site is stored.
func StateKey(site string) string {
	return "uplink-monitor/" + site + "/state"
}

func New(addr, token string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Publisher{cli: cli, log: log.Named("consul")}, nil
}

func (p *Publisher) Enabled() bool { return p != nil && p.cli != nil }

// Publish stores the transition under the site's state key.
func (p *Publisher) Publish(ctx context.Context, site string, prev, next model.HealthState, entry model.HistoryEntry) error {
	if !p.Enabled() {
		return nil
	}
	b, err := json.Marshal(map[string]any{
		"state": next,
		"prev":  prev,
		"label": next.Label(),
		"entry": entry,
	})
	if err != nil {
		return err
	}
	opts := (&consulapi.WriteOptions{}).WithContext(ctx)
	if _, err := p.cli.KV().Put(&consulapi.KVPair{Key: StateKey(site), Value: b}, opts); err != nil {
		return fmt.Errorf("consul put %s: %w", StateKey(site), err)
	}
	return nil
}
