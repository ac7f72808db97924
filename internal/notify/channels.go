package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const httpTimeout = 10 * time.Second

const (
	pushoverURL   = "https://api.pushover.net/1/messages.json"
	pushbulletURL = "https://api.pushbullet.com/v2/pushes"
	twilioBaseURL = "https://api.twilio.com"
	discordColor  = 5814783
)

func defaultClient() *http.Client { return &http.Client{Timeout: httpTimeout} }

// post sends body and fails unless the response status is want (or any
// 2xx when want is zero).
func post(ctx context.Context, client *http.Client, req *http.Request, want int) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("url", req.URL.Redacted()))
	}
	defer resp.Body.Close()
	ok := resp.StatusCode == want
	if want == 0 {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return goerr.New("unexpected status",
			goerr.V("url", req.URL.Redacted()),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(snippet)))
	}
	return nil
}

func jsonRequest(target string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode payload")
	}
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func formRequest(target string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// WebhookSender posts the full alert as JSON to an arbitrary URL.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

func (w *WebhookSender) Channel() Channel { return Webhook }

func (w *WebhookSender) Send(ctx context.Context, n Notification) error {
	data := map[string]any{"title": n.Title, "message": n.Message}
	for k, v := range n.Data {
		data[k] = v
	}
	req, err := jsonRequest(w.URL, map[string]any{
		"timestamp":  n.Time.Format(time.RFC3339),
		"alert_type": n.Kind,
		"urgency":    n.Urgency,
		"data":       data,
	})
	if err != nil {
		return err
	}
	return post(ctx, orDefault(w.Client), req, 0)
}

type DiscordSender struct {
	WebhookURL string
	Client     *http.Client
}

func (d *DiscordSender) Channel() Channel { return Discord }

func (d *DiscordSender) Send(ctx context.Context, n Notification) error {
	req, err := jsonRequest(d.WebhookURL, map[string]any{
		"embeds": []map[string]any{{
			"title":       n.Title,
			"description": n.Message,
			"color":       discordColor,
		}},
	})
	if err != nil {
		return err
	}
	return post(ctx, orDefault(d.Client), req, http.StatusNoContent)
}

type SlackSender struct {
	WebhookURL string
	Client     *http.Client
}

func (s *SlackSender) Channel() Channel { return Slack }

func (s *SlackSender) Send(ctx context.Context, n Notification) error {
	req, err := jsonRequest(s.WebhookURL, map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
	})
	if err != nil {
		return err
	}
	return post(ctx, orDefault(s.Client), req, http.StatusOK)
}

type PushoverSender struct {
	Token   string
	UserKey string
	URL     string // overrides the public API endpoint
	Client  *http.Client
}

func (p *PushoverSender) Channel() Channel { return Pushover }

func (p *PushoverSender) Send(ctx context.Context, n Notification) error {
	form := url.Values{
		"token":   {p.Token},
		"user":    {p.UserKey},
		"title":   {n.Title},
		"message": {n.Message},
	}
	if n.Urgency == UrgencyHigh {
		form.Set("priority", "1")
	}
	req, err := formRequest(orURL(p.URL, pushoverURL), form)
	if err != nil {
		return err
	}
	return post(ctx, orDefault(p.Client), req, http.StatusOK)
}

type PushbulletSender struct {
	APIKey string
	URL    string
	Client *http.Client
}

func (p *PushbulletSender) Channel() Channel { return Pushbullet }

func (p *PushbulletSender) Send(ctx context.Context, n Notification) error {
	req, err := jsonRequest(orURL(p.URL, pushbulletURL), map[string]string{
		"type":  "note",
		"title": n.Title,
		"body":  n.Message,
	})
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", p.APIKey)
	return post(ctx, orDefault(p.Client), req, http.StatusOK)
}

// TwilioSender sends an SMS through the Twilio REST API.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	Client     *http.Client
}

func (t *TwilioSender) Channel() Channel { return SMSTwilio }

func (t *TwilioSender) Send(ctx context.Context, n Notification) error {
	target := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", orURL(t.BaseURL, twilioBaseURL), url.PathEscape(t.AccountSID))
	req, err := formRequest(target, url.Values{
		"To":   {t.To},
		"From": {t.From},
		"Body": {smsText(n)},
	})
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	return post(ctx, orDefault(t.Client), req, http.StatusCreated)
}

func orDefault(c *http.Client) *http.Client {
	if c == nil {
		return defaultClient()
	}
	return c
}

func orURL(u, def string) string {
	if u == "" {
		return def
	}
	return u
}

// smsText keeps texts short; carriers split or drop long messages.
func smsText(n Notification) string {
	text := n.Message
	if n.Title != "" {
		text = n.Title + ": " + text
	}
	const limit = 300
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit-3]) + "..."
	}
	return text
}
