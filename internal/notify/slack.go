package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

const (
	colorDanger = "#E01E5A"
	colorGood   = "#2EB67D"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Fields    []slackField `json:"fields"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

func severityEmoji(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "🔴"
	case domain.SeverityHigh:
		return "🟠"
	case domain.SeverityMedium:
		return "🟡"
	case domain.SeverityLow:
		return "🟢"
	}
	return "⚠️"
}

func slackMessage(e Event) slackPayload {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	switch e.Kind {
	case KindResolved:
		return slackPayload{
			Text: fmt.Sprintf("✅ Monitor Recovered: %s is back online", e.MonitorName),
			Attachments: []slackAttachment{{
				Color: colorGood,
				Title: "Monitor Recovered: " + e.MonitorName,
				Fields: []slackField{
					{Title: "Status", Value: "✅ Online", Short: true},
					{Title: "Downtime", Value: e.Downtime, Short: true},
					{Title: "Monitor", Value: e.MonitorName, Short: true},
					{Title: "URL", Value: e.Target, Short: true},
				},
				Footer:    "PulseOps",
				Timestamp: at.Unix(),
			}},
		}
	default:
		emoji := severityEmoji(e.Severity)
		return slackPayload{
			Text: fmt.Sprintf("%s Monitor Alert: %s is down", emoji, e.MonitorName),
			Attachments: []slackAttachment{{
				Color: colorDanger,
				Title: "🚨 Monitor Alert: " + e.MonitorName,
				Fields: []slackField{
					{Title: "Status", Value: "❌ Down", Short: true},
					{Title: "Severity", Value: emoji + " " + strings.ToUpper(string(e.Severity)), Short: true},
					{Title: "Monitor", Value: e.MonitorName, Short: true},
					{Title: "URL", Value: e.Target, Short: true},
					{Title: "Details", Value: e.Details, Short: false},
				},
				Footer:    "PulseOps",
				Timestamp: at.Unix(),
			}},
		}
	}
}

func (s *Slack) Send(ctx context.Context, e Event) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackMessage(e))
	if err != nil {
		return fmt.Errorf("slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}
