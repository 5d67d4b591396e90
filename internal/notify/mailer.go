// Package notify renders and delivers the portal's transactional emails and
// queues status notices for asynchronous delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/config"
)

// Email is one outbound message.
type Email struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer posts messages to an HTTP email provider exposing POST /emails.
type Mailer struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
	logger  *zap.Logger
}

// NewMailer builds a mailer. With no API key configured, messages are
// logged instead of sent.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	return &Mailer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Send delivers the email.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if len(e.To) == 0 || e.To[0] == "" {
		return fmt.Errorf("email recipient required")
	}
	if m.apiKey == "" {
		m.logger.Info("mail provider not configured, logging email",
			zap.Strings("to", e.To),
			zap.String("subject", e.Subject),
		)
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      e.To,
		"subject": e.Subject,
		"html":    e.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail provider error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
