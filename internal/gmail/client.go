// Package gmail reads, labels and sends mail through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"go-autoagent/internal/config"
	"go-autoagent/internal/logging"
)

const me = "me"

// DefaultMaxResults applies when a caller passes zero.
const DefaultMaxResults = 10

type Client struct {
	svc *gm.Service
	log *slog.Logger
}

// New builds a client over an existing API service.
func New(svc *gm.Service, logger *slog.Logger) *Client {
	return &Client{svc: svc, log: logging.Component(logger, "gmail")}
}

// NewFromConfig authenticates with the stored token. It fails with
// ErrNotAuthenticated when no token has been created yet.
func NewFromConfig(ctx context.Context, cfg config.GmailConfig, logger *slog.Logger) (*Client, error) {
	oc, err := LoadOAuthConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	ts, err := TokenSource(ctx, oc, cfg.TokenFile, logging.Component(logger, "gmail"))
	if err != nil {
		return nil, err
	}
	svc, err := gm.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gmail service")
	}
	return New(svc, logger), nil
}

// ListMessages runs a Gmail search query and fetches each hit in full.
// Messages that fail to load individually are skipped.
func (c *Client) ListMessages(ctx context.Context, query string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	call := c.svc.Users.Messages.List(me).MaxResults(int64(limit)).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("query", query))
	}

	out := make([]*Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("skipping message", "id", ref.Id, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	m, err := c.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get message", goerr.V("id", id))
	}
	return parseMessage(m), nil
}

func (c *Client) Unread(ctx context.Context, limit int) ([]*Message, error) {
	return c.ListMessages(ctx, "is:unread", limit)
}

func (c *Client) FromSender(ctx context.Context, sender string, limit int) ([]*Message, error) {
	return c.ListMessages(ctx, "from:"+sender, limit)
}

func (c *Client) BySubject(ctx context.Context, subject string, limit int) ([]*Message, error) {
	return c.ListMessages(ctx, "subject:"+subject, limit)
}

// InDateRange lists messages received on or after start and before end,
// at day granularity.
func (c *Client) InDateRange(ctx context.Context, start, end time.Time, limit int) ([]*Message, error) {
	return c.ListMessages(ctx, DateRangeQuery(start, end), limit)
}

// Search accepts any Gmail search expression, e.g. "has:attachment older_than:7d".
func (c *Client) Search(ctx context.Context, terms string, limit int) ([]*Message, error) {
	return c.ListMessages(ctx, terms, limit)
}

func DateRangeQuery(start, end time.Time) string {
	return fmt.Sprintf("after:%s before:%s", start.Format("2006/01/02"), end.Format("2006/01/02"))
}

func (c *Client) MarkAsRead(ctx context.Context, ids ...string) error {
	return c.modify(ctx, ids, nil, []string{"UNREAD"})
}

func (c *Client) MarkAsUnread(ctx context.Context, ids ...string) error {
	return c.modify(ctx, ids, []string{"UNREAD"}, nil)
}

func (c *Client) modify(ctx context.Context, ids, add, remove []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := &gm.BatchModifyMessagesRequest{Ids: ids, AddLabelIds: add, RemoveLabelIds: remove}
	if err := c.svc.Users.Messages.BatchModify(me, req).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to modify labels", goerr.V("count", len(ids)))
	}
	return nil
}

type Profile struct {
	Email         string `json:"email"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
	HistoryID     uint64 `json:"history_id"`
}

func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	p, err := c.svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get profile")
	}
	return &Profile{
		Email:         p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

// SendRaw sends a plain text message from the authenticated account.
func (c *Client) SendRaw(ctx context.Context, to, subject, body string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	sb.WriteString(body)

	raw := base64.URLEncoding.EncodeToString([]byte(sb.String()))
	if _, err := c.svc.Users.Messages.Send(me, &gm.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return goerr.Wrap(err, "failed to send message", goerr.V("to", to))
	}
	return nil
}

// ErrUnsupportedCarrier is returned for carriers without a known gateway.
var ErrUnsupportedCarrier = errors.New("unsupported sms carrier")

var smsGateways = map[string]string{
	"att":        "txt.att.net",
	"verizon":    "vtext.com",
	"tmobile":    "tmomail.net",
	"sprint":     "messaging.sprintpcs.com",
	"boost":      "smsmyboostmobile.com",
	"cricket":    "sms.cricketwireless.net",
	"uscellular": "email.uscc.net",
	"metropcs":   "mymetropcs.com",
}

// GatewayAddress maps a phone number and carrier to the carrier's
// email-to-SMS address.
func GatewayAddress(phone, carrier string) (string, error) {
	domain, ok := smsGateways[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		return "", goerr.Wrap(ErrUnsupportedCarrier, "no gateway for carrier", goerr.V("carrier", carrier))
	}
	return phone + "@" + domain, nil
}

// SendSMS delivers message as a text through the carrier's email gateway.
func (c *Client) SendSMS(ctx context.Context, phone, carrier, message string) error {
	addr, err := GatewayAddress(phone, carrier)
	if err != nil {
		return err
	}
	if err := c.SendRaw(ctx, addr, "", message); err != nil {
		return err
	}
	c.log.Info("sms sent", "to", addr)
	return nil
}
