// Package notifications delivers alert messages over email and the live
// websocket channel. Delivery is best-effort; callers decide what a failure
// means.
package notifications

import (
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhms/vitalcore/internal/websocket"
)

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	SMTPHost string   `json:"server"`
	SMTPPort int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// sendMailFunc matches smtp.SendMail, swappable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Manager implements the notification capability consumed by the alert
// engine: email via SMTP plus live messages through the websocket hub.
type Manager struct {
	mu          sync.RWMutex
	emailConfig EmailConfig
	hub         *websocket.Hub
	sendMail    sendMailFunc
}

// NewManager creates a notification manager. The hub may be nil when the
// websocket channel is disabled.
func NewManager(emailConfig EmailConfig, hub *websocket.Hub) *Manager {
	return &Manager{
		emailConfig: emailConfig,
		hub:         hub,
		sendMail:    smtp.SendMail,
	}
}

// SetEmailConfig replaces the SMTP settings.
func (m *Manager) SetEmailConfig(config EmailConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailConfig = config
}

// SendEmail delivers a plain-text message to the configured recipients.
func (m *Manager) SendEmail(subject, body string) error {
	m.mu.RLock()
	config := m.emailConfig
	sendMail := m.sendMail
	m.mu.RUnlock()

	if !config.Enabled {
		log.Debug().Str("subject", subject).Msg("Email channel disabled, skipping")
		return nil
	}
	if config.SMTPHost == "" {
		return fmt.Errorf("email channel not configured: missing SMTP host")
	}

	recipients := config.To
	if len(recipients) == 0 {
		if config.From == "" {
			return fmt.Errorf("email channel not configured: no recipients")
		}
		recipients = []string{config.From}
	}

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPHost)
	}

	msg := buildMessage(config.From, recipients, subject, body)
	addr := fmt.Sprintf("%s:%d", config.SMTPHost, config.SMTPPort)

	if err := sendMail(addr, auth, config.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}

	log.Info().
		Str("subject", subject).
		Int("recipients", len(recipients)).
		Msg("Email notification sent")
	return nil
}

// SendWebSocketMessage publishes a typed payload to all connected clients.
func (m *Manager) SendWebSocketMessage(channel string, payload any) error {
	m.mu.RLock()
	hub := m.hub
	m.mu.RUnlock()

	if hub == nil {
		return fmt.Errorf("websocket channel not available")
	}

	hub.Broadcast(channel, payload)
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
