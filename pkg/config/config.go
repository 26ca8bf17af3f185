// Package config loads monitor settings from an optional YAML file, a .env
// file and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"uplink-monitor/pkg/controller"
	"uplink-monitor/pkg/health"
	"uplink-monitor/pkg/store"
)

var DefaultProbeTargets = []string{
	"https://www.google.com/generate_204",
	"https://cloudflare.com/cdn-cgi/trace",
	"https://1.1.1.1",
}

type Probe struct {
	Targets []string      `yaml:"targets"`
	Timeout time.Duration `yaml:"timeout"`
}

type TLS struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	ClientCA string `yaml:"clientCA"`
}

type Consul struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type Config struct {
	Controller   controller.Config `yaml:"controller"`
	Probe        Probe             `yaml:"probe"`
	Thresholds   health.Thresholds `yaml:"thresholds"`
	Interval     time.Duration     `yaml:"interval"`
	CycleTimeout time.Duration     `yaml:"cycleTimeout"`
	HistorySize  int               `yaml:"historySize"`
	Listen       string            `yaml:"listen"`
	TLS          TLS               `yaml:"tls"`
	AlertWebhook string            `yaml:"alertWebhookUrl"`
	Audit        store.Config      `yaml:"audit"`
	Consul       Consul            `yaml:"consul"`
	Debug        bool              `yaml:"debug"`
}

// Load reads path (optional), then .env, then the environment, fills defaults
// and validates the result.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("UNIFI_URL", &c.Controller.BaseURL)
	str("UNIFI_USERNAME", &c.Controller.Username)
	str("UNIFI_PASSWORD", &c.Controller.Password)
	str("UNIFI_SITE", &c.Controller.Site)
	str("ALERT_WEBHOOK_URL", &c.AlertWebhook)
	str("LISTEN_ADDR", &c.Listen)
	str("EVENT_LOG_PATH", &c.Audit.Path)
	str("AUDIT_MIRROR", &c.Audit.Mirror)
	str("AUDIT_DSN", &c.Audit.DSN)
	str("CONSUL_ADDR", &c.Consul.Addr)
	str("CONSUL_TOKEN", &c.Consul.Token)

	if v, ok := lookup("UNIFI_INSECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UNIFI_INSECURE: %w", err)
		}
		c.Controller.InsecureTLS = b
	}
	if v, ok := lookup("PROBE_TARGETS"); ok && v != "" {
		var targets []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
		c.Probe.Targets = targets
	}
	if v, ok := lookup("POLL_INTERVAL"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		c.Interval = d
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 8 * time.Second
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 2 * time.Second
	}
	if len(c.Probe.Targets) == 0 {
		c.Probe.Targets = append([]string(nil), DefaultProbeTargets...)
	}
	def := health.DefaultThresholds()
	if c.Thresholds.DegradedAfterFails == 0 {
		c.Thresholds.DegradedAfterFails = def.DegradedAfterFails
	}
	if c.Thresholds.DownAfterFails == 0 {
		c.Thresholds.DownAfterFails = def.DownAfterFails
	}
	if c.Thresholds.OKAfterSuccesses == 0 {
		c.Thresholds.OKAfterSuccesses = def.OKAfterSuccesses
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 500
	}
	if c.Controller.Site == "" {
		c.Controller.Site = "default"
	}
	if c.Controller.LegacyPort == 0 {
		c.Controller.LegacyPort = 8443
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "data/events.jsonl"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Controller.BaseURL == "" {
		errs = append(errs, errors.New("controller url is required (UNIFI_URL)"))
	}
	if len(c.Probe.Targets) == 0 {
		errs = append(errs, errors.New("at least one probe target is required"))
	}
	// targets are tried one after another inside a single cycle
	if budget := time.Duration(len(c.Probe.Targets)) * c.Probe.Timeout; budget > c.CycleTimeout {
		errs = append(errs, fmt.Errorf("probe budget %s (%d targets x %s) exceeds cycle timeout %s",
			budget, len(c.Probe.Targets), c.Probe.Timeout, c.CycleTimeout))
	}
	th := c.Thresholds
	if th.DegradedAfterFails < 1 || th.DownAfterFails < 1 || th.OKAfterSuccesses < 1 {
		errs = append(errs, errors.New("thresholds must be >= 1"))
	}
	if th.DegradedAfterFails > th.DownAfterFails {
		errs = append(errs, fmt.Errorf("degradedAfterFails (%d) exceeds downAfterFails (%d)", th.DegradedAfterFails, th.DownAfterFails))
	}
	switch c.Audit.Mirror {
	case "", "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unknown audit mirror %q", c.Audit.Mirror))
	}
	return errors.Join(errs...)
}
