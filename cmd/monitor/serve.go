package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uplink-monitor/pkg/alert"
	"uplink-monitor/pkg/api"
	"uplink-monitor/pkg/config"
	"uplink-monitor/pkg/consul"
	"uplink-monitor/pkg/controller"
	"uplink-monitor/pkg/health"
	"uplink-monitor/pkg/logging"
	"uplink-monitor/pkg/metrics"
	"uplink-monitor/pkg/monitor"
	"uplink-monitor/pkg/probe"
	"uplink-monitor/pkg/store"
	"uplink-monitor/pkg/version"
)

func serveCmd(debug *bool) *cobra.Command {
	var (
		cfgPath string
		listen  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the polling loop and serve the push channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if *debug {
				cfg.Debug = true
			}
			log, err := logging.New(cfg.Debug)
			if err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting uplink monitor",
		zap.String("version", version.String()),
		zap.String("controller", cfg.Controller.BaseURL),
		zap.String("site", cfg.Controller.Site),
		zap.Duration("interval", cfg.Interval),
	)

	audit, err := store.Open(cfg.Audit, log)
	if err != nil {
		return err
	}
	defer audit.Close()

	publisher, err := consul.New(cfg.Consul.Addr, cfg.Consul.Token, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	machine := health.NewMachine(cfg.Thresholds, cfg.HistorySize)
	hub := api.NewHub(machine.Status, log)
	hub.OnCount(m.SetObservers)

	deps := monitor.Deps{
		Controller:  controller.New(cfg.Controller, log),
		Prober:      probe.New(cfg.Probe.Targets, cfg.Probe.Timeout, log),
		Machine:     machine,
		Broadcaster: hub,
		Audit:       audit,
		Notifier:    alert.NewNotifier(cfg.AlertWebhook, log),
		Metrics:     m,
		Log:         log,
	}
	if publisher.Enabled() {
		deps.Publisher = publisher
	}
	svc := monitor.New(deps, monitor.Options{Interval: cfg.Interval, CycleTimeout: cfg.CycleTimeout})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Deps{
		Status:  svc.Status,
		Audit:   audit,
		LogPath: audit.Path(),
		Hub:     hub,
		Metrics: m.Handler(),
		Log:     log,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.Listen))
		errCh <- listen(srv, cfg.TLS)
	}()
	svc.Start(ctx)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
		}
	}

	svc.Stop()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func listen(srv *http.Server, t config.TLS) error {
	if t.Cert == "" || t.Key == "" {
		return srv.ListenAndServe()
	}
	tlsCfg, err := api.TLSConfig(t.Cert, t.Key, t.ClientCA)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}
	srv.TLSConfig = tlsCfg
	return srv.ListenAndServeTLS("", "")
}
