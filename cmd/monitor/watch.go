package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uplink-monitor/pkg/logging"
	"uplink-monitor/pkg/model"
	"uplink-monitor/pkg/observer"
)

func watchCmd(debug *bool) *cobra.Command {
	var (
		url        string
		ticks      bool
		historyCap int
		staleAfter time.Duration
		maxDelay   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running monitor from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(*debug)
			if err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			out := cmd.OutOrStdout()
			c := observer.New(observer.Options{
				URL:        url,
				MaxDelay:   maxDelay,
				HistoryCap: historyCap,
				StaleAfter: staleAfter,
				Log:        log,
			}, observer.Callbacks{
				OnConnState: func(s observer.ConnectionState) {
					switch s.Phase {
					case observer.PhaseReconnecting:
						fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("reconnecting in %s (attempt %d)", s.RetryIn, s.RetryAttempt)))
					default:
						fmt.Fprintln(out, mutedStyle.Render(s.Phase.String()))
					}
				},
				OnSnapshot: func(st model.Status) {
					fmt.Fprintf(out, "%s  (%d entries)\n", renderState(st.State), len(st.History))
					if len(st.History) > 0 {
						fmt.Fprintln(out, renderEntry(st.History[0]))
					}
				},
				OnTick: func(_ model.HealthState, e model.HistoryEntry, added bool) {
					if ticks && added {
						fmt.Fprintln(out, renderEntry(e))
					}
				},
				OnStateChange: func(prev, next model.HealthState, e model.HistoryEntry) {
					fmt.Fprintf(out, "%s -> %s  %s\n", renderState(prev), renderState(next), e.Note)
				},
				OnStale: func(stale bool) {
					if stale {
						fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("no update for %s, view is stale", staleAfter)))
					} else {
						fmt.Fprintln(out, mutedStyle.Render("updates resumed"))
					}
				},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:8080/ws", "Push channel URL")
	cmd.Flags().BoolVar(&ticks, "ticks", false, "Print every cycle, not only state changes")
	cmd.Flags().IntVar(&historyCap, "history", 200, "Local history cap")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 30*time.Second, "Flag the view stale after this long without updates")
	cmd.Flags().DurationVar(&maxDelay, "max-retry-delay", 30*time.Second, "Cap on reconnect backoff")
	return cmd
}
