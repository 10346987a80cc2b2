package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailure  AlertType = "run_failure"
	AlertMissingRate AlertType = "missing_rate"
	AlertStale       AlertType = "stale_prices"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	// Runs that did not complete.
	if broken := snap.Failed + snap.Interrupted; broken > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "high",
			Message: fmt.Sprintf("%d sync run(s) failed or were interrupted in last %dh",
				broken, snap.LookbackHours),
			Details: map[string]any{
				"failed":      snap.Failed,
				"interrupted": snap.Interrupted,
				"runs":        snap.Runs,
			},
			Timestamp: now,
		})
	}

	// Too many items without a price row.
	if snap.Processed >= int64(a.cfg.MinProcessed) && snap.Processed > 0 &&
		snap.MissingRate > a.cfg.MissingRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertMissingRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Missing rate %.1f%% exceeds threshold %.1f%% (%d missing / %d processed in last %dh)",
				snap.MissingRate*100, a.cfg.MissingRateThreshold*100,
				snap.Missing, snap.Processed, snap.LookbackHours,
			),
			Details: map[string]any{
				"missing_rate":  snap.MissingRate,
				"threshold":     a.cfg.MissingRateThreshold,
				"missing":       snap.Missing,
				"item_failures": snap.ItemFailures,
				"processed":     snap.Processed,
			},
			Timestamp: now,
		})
	}

	// No complete run recently.
	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		switch {
		case snap.LastSuccess == nil:
			alerts = append(alerts, Alert{
				Type:      AlertStale,
				Severity:  "high",
				Message:   "No sync run has completed",
				Timestamp: now,
			})
		case now.Sub(*snap.LastSuccess) > limit:
			age := now.Sub(*snap.LastSuccess).Round(time.Minute)
			alerts = append(alerts, Alert{
				Type:     AlertStale,
				Severity: "high",
				Message: fmt.Sprintf("Last complete sync started %s ago, limit is %dh",
					age, a.cfg.StaleAfterHours),
				Details: map[string]any{
					"last_success": snap.LastSuccess.Format(time.RFC3339),
					"age_hours":    age.Hours(),
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
