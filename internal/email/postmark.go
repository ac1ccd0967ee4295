// Package email sends transactional mail through Postmark.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Config struct {
	PostmarkToken string
	From          string
}

func (c Config) Configured() bool {
	return c.PostmarkToken != "" && c.From != ""
}

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
	backoff     func() retry.Backoff
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another endpoint, e.g. a test server.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// Invite is the content of a group invitation email.
type Invite struct {
	To          string
	InviterName string
	GroupName   string
	Code        string
	Link        string
}

// SendInvite emails the group's deep link and short code to inv.To.
func (c *Client) SendInvite(ctx context.Context, inv Invite) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	subject := fmt.Sprintf("%s t'ha convidat a %s a Coolive", inv.InviterName, inv.GroupName)
	text := fmt.Sprintf(
		"%s t'ha convidat a compartir les tasques de %s.\n\nObre l'enllaç des del mòbil:\n%s\n\nO escriu aquest codi a l'app: %s\n",
		inv.InviterName, inv.GroupName, inv.Link, inv.Code,
	)
	htmlBody := fmt.Sprintf(
		`<p>%s t'ha convidat a compartir les tasques de <strong>%s</strong>.</p><p><a href="%s">Uneix-te al pis</a></p><p>O escriu aquest codi a l'app: <code>%s</code></p>`,
		html.EscapeString(inv.InviterName), html.EscapeString(inv.GroupName),
		html.EscapeString(inv.Link), html.EscapeString(inv.Code),
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       inv.To,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: text,
		Tag:      "group-invite",
	})
}

// send posts the message, retrying network failures and 5xx responses.
func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Postmark-Server-Token", c.serverToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("postmark API error: status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
		}
		return nil
	})
}
