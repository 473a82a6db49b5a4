package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/pkg/config"
)

// DefaultSlackTimeout bounds one webhook call.
const DefaultSlackTimeout = 10 * time.Second

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string        // Slack incoming webhook URL
	Timeout    time.Duration // Request timeout (default: 10s)
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// SlackNotifier sends alerts to Slack via webhook.
type SlackNotifier struct {
	config     SlackConfig
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config SlackConfig) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSlackTimeout
	}

	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return models.DefaultAlertChannel
}

// Send posts the alert to the webhook.
func (s *SlackNotifier) Send(ctx context.Context, alert *models.AlertView) error {
	jsonData, err := json.Marshal(buildSlackPayload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for Slack notifier.
func (s *SlackNotifier) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func buildSlackPayload(alert *models.AlertView) slackMessage {
	rec := alert.Record
	emoji := severityEmoji(rec.Severity)
	title := fmt.Sprintf("%s Log Alert: %s", emoji, strings.ToUpper(alert.Type))

	fields := []slackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Alert Type:*\n%s", alert.Type)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Log ID:*\n%d", rec.ID)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Timestamp:*\n%s", rec.Timestamp.Format("2006-01-02 15:04:05"))},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Host:*\n%s", orNA(rec.Host))},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Component:*\n%s", orNA(rec.Component))},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Classification:*\n%s", rec.Classification)},
	}
	if rec.Severity != models.SeverityNone {
		fields = append(fields, slackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*Severity:*\n%s %s", emoji, strings.ToUpper(string(rec.Severity))),
		})
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
		},
		{
			Type:   "section",
			Fields: fields,
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Message:*\n```%s```", truncate(rec.Message, 500)),
			},
		},
	}

	if rec.AnomalyReason != "" {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("Reason: %s", rec.AnomalyReason)},
			},
		})
	}

	return slackMessage{Text: title, Blocks: blocks}
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityWarning:
		return "\U0001F7E1" // yellow circle
	case models.SeverityInfo:
		return "\U0001F7E2" // green circle
	default:
		return "\U0001F6A8" // siren
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
