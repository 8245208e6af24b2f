package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/protocol"
	"github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"
)

// EmailNotifier sends run-report emails to the operations address.
type EmailNotifier struct {
	config *config.SMTPConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// SendRunReport sends an email summarizing a finished precomputation or
// warmer run. Failed runs get an alerting subject line; successful runs
// a plain report.
func (e *EmailNotifier) SendRunReport(summary *protocol.RunSummary) error {
	var subject string
	switch summary.State {
	case protocol.RunStateFailed:
		subject = fmt.Sprintf("🚨 SafeAscent %s run FAILED - %s", summary.Job, summary.RunID)
	case protocol.RunStateDone:
		subject = fmt.Sprintf("✅ SafeAscent %s run complete - %d warmed, %d failed",
			summary.Job, summary.TotalWarmed, summary.TotalFailed)
	default:
		return fmt.Errorf("unknown run state: %s", summary.State)
	}

	body, err := e.renderReport(summary)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) renderReport(summary *protocol.RunSummary) (string, error) {
	tmpl := `
Precomputation Run Report
=========================

Run ID:           {{.RunID}}
Job:              {{.Job}}
State:            {{.State}}
Started At:       {{.StartedAt}}
Duration:         {{printf "%.1f" .DurationSeconds}}s

Routes Processed: {{.RoutesProcessed}}
Dates Per Route:  {{.DatesPerRoute}}
Total Warmed:     {{.TotalWarmed}}
Total Failed:     {{.TotalFailed}}
Pruned Keys:      {{.PrunedKeys}}
{{if .Error}}
Error:
{{.Error}}
{{end}}
---
SafeAscent Notification System
`

	t, err := template.New("report").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, summary); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		fmt.Printf("SMTP not configured, skipping email:\nSubject: %s\n%s\n", subject, body)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := smtp.SendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
