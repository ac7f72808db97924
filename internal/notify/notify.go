// Package notify delivers alerts over several independent channels.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"go-autoagent/internal/logging"
)

type Channel string

const (
	Console    Channel = "console"
	File       Channel = "file"
	Webhook    Channel = "webhook"
	Discord    Channel = "discord"
	Slack      Channel = "slack"
	Pushover   Channel = "pushover"
	Pushbullet Channel = "pushbullet"
	SMSTwilio  Channel = "sms_twilio"
	SMSGmail   Channel = "sms_gmail"
	WebSocket  Channel = "websocket"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "HIGH"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyLow    Urgency = "LOW"
)

// Notification is what every channel renders in its own format.
type Notification struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Urgency Urgency        `json:"urgency"`
	Kind    string         `json:"alert_type,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Time    time.Time      `json:"timestamp"`
}

// Sender delivers a notification over one channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification) error
}

type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

var ErrNotConfigured = errors.New("channel not configured")

type Dispatcher struct {
	senders map[Channel]Sender
	order   []Channel
	now     func() time.Time
	log     *slog.Logger
}

// NewDispatcher registers senders in the given order; a later sender for
// the same channel replaces the earlier one.
func NewDispatcher(logger *slog.Logger, senders ...Sender) *Dispatcher {
	d := &Dispatcher{
		senders: map[Channel]Sender{},
		now:     time.Now,
		log:     logging.Component(logger, "notify"),
	}
	for _, s := range senders {
		if _, dup := d.senders[s.Channel()]; !dup {
			d.order = append(d.order, s.Channel())
		}
		d.senders[s.Channel()] = s
	}
	return d
}

// Available lists configured channels in registration order.
func (d *Dispatcher) Available() []Channel {
	return slices.Clone(d.order)
}

// Send delivers n over the given channels, or over every configured
// channel when none are given. Channels run concurrently and a failure
// in one never affects the others.
func (d *Dispatcher) Send(ctx context.Context, n Notification, channels ...Channel) map[Channel]Result {
	if len(channels) == 0 {
		channels = d.order
	}
	if n.Time.IsZero() {
		n.Time = d.now()
	}
	if n.Urgency == "" {
		n.Urgency = UrgencyLow
	}

	results := make(map[Channel]Result, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ch := range channels {
		s, ok := d.senders[ch]
		if !ok {
			mu.Lock()
			results[ch] = Result{Error: ErrNotConfigured.Error()}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Send(ctx, n)
			res := Result{Success: err == nil}
			if err != nil {
				res.Error = err.Error()
				d.log.Warn("notification failed", "channel", ch, "error", err)
			}
			mu.Lock()
			results[ch] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Test sends a fixed message over every configured channel.
func (d *Dispatcher) Test(ctx context.Context) map[Channel]Result {
	return d.Send(ctx, Notification{
		Title:   "Test Notification",
		Message: "Test notification from your email reader system!",
		Urgency: UrgencyLow,
		Kind:    "test",
	})
}

// ParseChannels validates channel names coming from config or requests.
func ParseChannels(names []string) ([]Channel, error) {
	out := make([]Channel, 0, len(names))
	for _, n := range names {
		ch := Channel(n)
		if !slices.Contains(allChannels, ch) {
			return nil, goerr.New("unknown notification channel", goerr.V("channel", n))
		}
		out = append(out, ch)
	}
	return out, nil
}

var allChannels = []Channel{Console, File, Webhook, Discord, Slack, Pushover, Pushbullet, SMSTwilio, SMSGmail, WebSocket}
