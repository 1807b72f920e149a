// Package webhook provides notification delivery via a generic incoming
// webhook (Mattermost/Slack-compatible JSON payload).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reliefgrid/sos-engine/internal/notify"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "SOS Engine"
)

// Config holds webhook sender configuration.
type Config struct {
	URL       string
	Username  string        // display username, default "SOS Engine"
	Timeout   time.Duration // request timeout
	RateLimit float64       // max requests per second, 0 disables limiting
}

// Sender delivers notifications to an incoming webhook. Sends that exceed
// the rate limit are dropped rather than queued so a slow sink can never
// delay the escalation pass.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new webhook sender.
// Returns an error if no webhook URL is configured.
func NewSender(config Config) (*Sender, error) {
	if config.URL == "" {
		return nil, errors.New("webhook sender: url is required")
	}
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("webhook sender configured",
		"url", maskURL(config.URL),
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
	}, nil
}

// Name returns the sender name for logging and metrics.
func (s *Sender) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// Send posts the message to the configured webhook.
func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return errors.New("rate limited, notification dropped")
	}

	payload := webhookPayload{Username: s.config.Username}
	if msg.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", msg.Subject, msg.Body)
	} else {
		payload.Text = msg.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("webhook notification sent", "url", maskURL(s.config.URL))
	return nil
}

// maskURL hides part of the URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
