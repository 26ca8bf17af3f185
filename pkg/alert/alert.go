// Package alert delivers state transition notifications to a webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

// Notifier posts alert payloads to a webhook. A zero URL disables delivery.
type Notifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewNotifier(url string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.Named("alert"),
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify sends p in the background. Delivery errors are only logged.
func (n *Notifier) Notify(p model.AlertPayload) {
	if !n.Enabled() {
		return
	}
	go func() {
		if err := n.Send(context.Background(), p); err != nil {
			n.log.Warn("alert delivery failed", zap.String("state", string(p.State)), zap.Error(err))
		}
	}()
}

// Send posts p synchronously.
func (n *Notifier) Send(ctx context.Context, p model.AlertPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s body=%s", resp.Status, bytes.TrimSpace(b))
	}
	return nil
}

// Text renders the headline for a transition into next.
func Text(next model.HealthState, reason string) string {
	switch next {
	case model.StateDown:
		if reason != "" {
			return fmt.Sprintf("Internet DOWN (%s)", reason)
		}
		return "Internet DOWN"
	case model.StateOK:
		return "Internet restored"
	case model.StateDegraded:
		return "Internet degraded"
	default:
		return "Internet state unknown"
	}
}
