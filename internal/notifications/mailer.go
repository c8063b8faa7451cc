// Package notifications delivers workflow events to people: e-mail for
// requesters and admins, and a live WebSocket feed for admin dashboards.
package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"

	"biblio/internal/middleware"
)

// Mailer sends a single rendered message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer delivers mail over plain SMTP. When disabled it logs the
// message instead of sending, which keeps local development quiet.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	Enabled  bool
}

// Send delivers one HTML message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !m.Enabled {
		middleware.Logger.InfoContext(ctx, "email disabled, skipping delivery",
			"to", to, "subject", subject)
		return nil
	}

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
			"\r\n"+
			"%s\r\n",
		m.FromName, m.From, to, subject, htmlBody))

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := m.Host + ":" + m.Port
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// SentEmail is one message captured by the RecordingMailer.
type SentEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RecordingMailer captures messages in memory instead of delivering them.
// Used by the test environment and the /api/testing/sent-emails endpoint.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentEmail
}

// Send records the message.
func (m *RecordingMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Sent returns a copy of everything recorded so far.
func (m *RecordingMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset clears the recorded messages.
func (m *RecordingMailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
