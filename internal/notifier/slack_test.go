package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

func testAlertView() *models.AlertView {
	return &models.AlertView{
		Alert: models.Alert{
			ID:       7,
			RecordID: 42,
			Type:     string(models.ClassAbnormal),
			Channel:  models.DefaultAlertChannel,
			Status:   models.AlertPending,
		},
		Record: models.LogRecord{
			ID:             42,
			Timestamp:      time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC),
			Host:           "node1",
			Component:      "kernel",
			RawLine:        "Oct 18 10:30:00 node1 kernel: pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth",
			Message:        "pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth",
			Classification: models.ClassAbnormal,
			Severity:       models.SeverityWarning,
			AnomalyReason:  "PCIe bandwidth degraded",
		},
	}
}

func TestSlackConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  SlackConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  SlackConfig{},
			wantErr: true,
			errMsg:  "webhook URL is required",
		},
		{
			name:    "http URL rejected",
			config:  SlackConfig{WebhookURL: "http://hooks.slack.com/services/xxx"},
			wantErr: true,
			errMsg:  "webhook URL must use HTTPS",
		},
		{
			name:   "valid config",
			config: SlackConfig{WebhookURL: "https://hooks.slack.com/services/T00/B00/xxx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewSlackNotifierDefaultTimeout(t *testing.T) {
	n, err := NewSlackNotifier(SlackConfig{WebhookURL: "https://hooks.slack.com/services/T00/B00/xxx"})
	if err != nil {
		t.Fatalf("NewSlackNotifier() error = %v", err)
	}
	if n.httpClient.Timeout != DefaultSlackTimeout {
		t.Errorf("timeout = %v, want %v", n.httpClient.Timeout, DefaultSlackTimeout)
	}
	if n.Name() != "slack" {
		t.Errorf("Name() = %q, want slack", n.Name())
	}
}

func TestSlackNotifierSend(t *testing.T) {
	var received slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("failed to unmarshal payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}
	if err := n.Send(context.Background(), testAlertView()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !strings.Contains(received.Text, "ABNORMAL") {
		t.Errorf("fallback text = %q", received.Text)
	}
	if len(received.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(received.Blocks))
	}
	if received.Blocks[0].Type != "header" {
		t.Errorf("first block type = %q, want header", received.Blocks[0].Type)
	}

	var fields []string
	for _, f := range received.Blocks[1].Fields {
		fields = append(fields, f.Text)
	}
	joined := strings.Join(fields, "\n")
	for _, want := range []string{"node1", "kernel", "*Log ID:*\n42", "WARNING"} {
		if !strings.Contains(joined, want) {
			t.Errorf("fields missing %q: %s", want, joined)
		}
	}
	if !strings.Contains(received.Blocks[3].Elements[0].Text, "PCIe bandwidth degraded") {
		t.Errorf("reason block = %+v", received.Blocks[3])
	}
}

func TestSlackNotifierSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	n := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}
	err := n.Send(context.Background(), testAlertView())
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestFormatAlert(t *testing.T) {
	alert := testAlertView()
	alert.Record.Host = ""
	alert.Record.Message = strings.Repeat("m", 600)

	out := FormatAlert(alert)
	for _, want := range []string{"*Alert Type:* abnormal", "*Log ID:* 42", "*Host:* N/A", "*Severity:* warning", "*Reason:* PCIe bandwidth degraded", "*Raw Line:*"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatAlert() missing %q", want)
		}
	}
	if strings.Contains(out, strings.Repeat("m", 501)) {
		t.Error("message should be truncated to 500 characters")
	}
}
