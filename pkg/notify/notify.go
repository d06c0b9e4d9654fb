// Package notify emails ingestion run summaries through Resend.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// Summary is the outcome of one ingestion run.
type Summary struct {
	RunID        string
	Supplier     string
	VersionDate  string
	Mode         string
	Pages        int
	PagesFailed  int
	RowsParsed   int
	RowsUpserted int
	RowsDeleted  int64
	Duration     time.Duration
	Err          error
}

// Failed reports whether the run ended with an error.
func (s Summary) Failed() bool {
	return s.Err != nil
}

// Notifier sends summaries to a fixed list of recipients.
type Notifier struct {
	client *resend.Client
	from   string
	to     []string
	logger *slog.Logger
}

// NewNotifier creates a notifier. Without an API key or recipients every
// Send is skipped.
func NewNotifier(apiKey, from string, to []string, logger *slog.Logger) *Notifier {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &Notifier{client: client, from: from, to: to, logger: logger}
}

// WithClient replaces the Resend client.
func (n *Notifier) WithClient(client *resend.Client) *Notifier {
	n.client = client
	return n
}

// Enabled reports whether Send will actually deliver mail.
func (n *Notifier) Enabled() bool {
	return n != nil && n.client != nil && len(n.to) > 0
}

func (n *Notifier) Send(ctx context.Context, s Summary) error {
	if !n.Enabled() {
		if n != nil {
			n.logger.Debug("resend client not configured, skipping run summary")
		}
		return nil
	}
	if n.from == "" {
		return errors.New("notification sender address is required")
	}

	subject, body := Render(s)
	sent, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send run summary: %w", err)
	}

	n.logger.Info("Run summary sent", "email_id", sent.Id, "recipients", len(n.to))
	return nil
}

// Render builds the subject and HTML body of a summary email.
func Render(s Summary) (string, string) {
	status := "loaded"
	if s.Failed() {
		status = "FAILED"
	}
	subject := fmt.Sprintf("[catalog] %s %s %s", s.Supplier, s.VersionDate, status)

	rows := [][2]string{
		{"Run", s.RunID},
		{"Supplier", s.Supplier},
		{"Version", s.VersionDate},
		{"Mode", s.Mode},
		{"Pages", fmt.Sprintf("%d (%d failed)", s.Pages, s.PagesFailed)},
		{"Rows parsed", fmt.Sprintf("%d", s.RowsParsed)},
		{"Rows written", fmt.Sprintf("%d", s.RowsUpserted)},
		{"Rows deleted", fmt.Sprintf("%d", s.RowsDeleted)},
		{"Duration", s.Duration.Round(time.Second).String()},
	}
	if s.Failed() {
		rows = append(rows, [2]string{"Error", s.Err.Error()})
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<body>\n<table>\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  <tr><th align=\"left\">%s</th><td>%s</td></tr>\n", r[0], html.EscapeString(r[1]))
	}
	b.WriteString("</table>\n</body>\n</html>\n")
	return subject, b.String()
}
