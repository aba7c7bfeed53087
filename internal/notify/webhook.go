package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPartialSession AlertType = "partial_session"
	AlertAnomalies      AlertType = "anomalies_detected"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Date      string         `json:"date"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter posts alerts to a webhook when a session ends partial or with
// anomalies.
type Alerter struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
	now    func() time.Time
}

// NewAlerter creates an Alerter posting to url.
func NewAlerter(url string) *Alerter {
	return &Alerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
		now:    time.Now,
	}
}

// Evaluate returns the alerts a snapshot deserves.
func (a *Alerter) Evaluate(snap model.SessionSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()
	t := snap.Totals

	if t.Status == model.SessionStatusPartial {
		msg := fmt.Sprintf("Validation session %s for %s finished partial with %d error(s)", snap.SessionID, snap.Date, t.Errors)
		if t.Cancelled {
			msg += " after cancellation"
		}
		alerts = append(alerts, Alert{
			Type:      AlertPartialSession,
			Severity:  "high",
			Message:   msg,
			SessionID: snap.SessionID,
			Date:      snap.Date,
			Details: map[string]any{
				"errors":          t.Errors,
				"cancelled":       t.Cancelled,
				"failed_sources":  failedSources(snap.Sources),
				"items_validated": t.ItemsValidated,
			},
			Timestamp: now,
		})
	}

	if t.Anomalies > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertAnomalies,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d anomalous value(s) need manual review for %s", t.Anomalies, snap.Date),
			SessionID: snap.SessionID,
			Date:      snap.Date,
			Details: map[string]any{
				"anomalies": t.Anomalies,
				"tickers":   anomalousTickers(snap.Reviews),
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SessionFinished evaluates the snapshot and sends any alerts.
func (a *Alerter) SessionFinished(ctx context.Context, snap model.SessionSnapshot) error {
	if a.url == "" {
		return nil
	}
	alerts := a.Evaluate(snap)
	if sent := a.SendAlerts(ctx, alerts); sent < len(alerts) {
		return eris.Errorf("notify: %d of %d alerts not delivered", len(alerts)-sent, len(alerts))
	}
	return nil
}

// SendAlerts delivers alerts to the webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.url == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		cfg := a.retry
		cfg.OnRetry = resilience.RetryLogger("webhook", string(alert.Type))
		if err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		}); err != nil {
			zap.L().Error("notify: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("notify: alert sent",
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
		return eris.Wrap(err, "notify: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "notify: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}

func failedSources(reports []model.SourceReport) []string {
	var out []string
	for _, r := range reports {
		if r.Errors > 0 {
			out = append(out, string(r.Source))
		}
	}
	return out
}

func anomalousTickers(reviews []model.Discrepancy) []string {
	var out []string
	for _, d := range reviews {
		if d.Anomaly {
			out = append(out, d.Ticker+"."+d.Field)
		}
	}
	return out
}
