package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-autoagent/internal/config"
	"go-autoagent/internal/logging"
)

var alert = Notification{
	Title:   "Switch 2 alert",
	Message: "Pre-orders are open",
	Urgency: UrgencyHigh,
	Kind:    "email_watch",
	Data:    map[string]any{"email_id": "m1"},
	Time:    time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
}

type captured struct {
	r    *http.Request
	body []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.r = r
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		got.body = buf.Bytes()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func parseForm(b []byte) (url.Values, error) { return url.ParseQuery(string(b)) }

func TestWebhookSender(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	require.NoError(t, (&WebhookSender{URL: srv.URL}).Send(context.Background(), alert))

	var payload struct {
		Timestamp string         `json:"timestamp"`
		AlertType string         `json:"alert_type"`
		Urgency   string         `json:"urgency"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "2025-06-03T10:00:00Z", payload.Timestamp)
	assert.Equal(t, "email_watch", payload.AlertType)
	assert.Equal(t, "HIGH", payload.Urgency)
	assert.Equal(t, "m1", payload.Data["email_id"])
	assert.Equal(t, "Pre-orders are open", payload.Data["message"])
}

func TestDiscordSender_Expects204(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	require.NoError(t, (&DiscordSender{WebhookURL: srv.URL}).Send(context.Background(), alert))
	assert.JSONEq(t, `{"embeds":[{"title":"Switch 2 alert","description":"Pre-orders are open","color":5814783}]}`, string(got.body))

	srv200, _ := captureServer(t, http.StatusOK)
	assert.Error(t, (&DiscordSender{WebhookURL: srv200.URL}).Send(context.Background(), alert))
}

func TestSlackSender(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	require.NoError(t, (&SlackSender{WebhookURL: srv.URL}).Send(context.Background(), alert))
	assert.JSONEq(t, `{"text":"*Switch 2 alert*\nPre-orders are open"}`, string(got.body))
}

func TestPushoverSender(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	s := &PushoverSender{Token: "app", UserKey: "user", URL: srv.URL}
	require.NoError(t, s.Send(context.Background(), alert))
	form, err := parseForm(got.body)
	require.NoError(t, err)
	assert.Equal(t, "app", form.Get("token"))
	assert.Equal(t, "user", form.Get("user"))
	assert.Equal(t, "Pre-orders are open", form.Get("message"))
	assert.Equal(t, "1", form.Get("priority"))
}

func TestPushbulletSender(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	require.NoError(t, (&PushbulletSender{APIKey: "pb-key", URL: srv.URL}).Send(context.Background(), alert))
	assert.Equal(t, "pb-key", got.r.Header.Get("Access-Token"))
	assert.JSONEq(t, `{"type":"note","title":"Switch 2 alert","body":"Pre-orders are open"}`, string(got.body))
}

func TestTwilioSender(t *testing.T) {
	srv, got := captureServer(t, http.StatusCreated)
	s := &TwilioSender{AccountSID: "AC123", AuthToken: "tok", From: "+15550001", To: "+15550002", BaseURL: srv.URL}
	require.NoError(t, s.Send(context.Background(), alert))

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", got.r.URL.Path)
	user, pass, ok := got.r.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "tok", pass)
	form, err := parseForm(got.body)
	require.NoError(t, err)
	assert.Equal(t, "+15550002", form.Get("To"))
	assert.Equal(t, "Switch 2 alert: Pre-orders are open", form.Get("Body"))

	srvOK, _ := captureServer(t, http.StatusOK)
	s.BaseURL = srvOK.URL
	assert.Error(t, s.Send(context.Background(), alert), "twilio reports creation with 201")
}

func TestFileSender_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	f := &FileSender{Path: path}
	require.NoError(t, f.Send(context.Background(), alert))
	require.NoError(t, f.Send(context.Background(), alert))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(b), "[2025-06-03T10:00:00Z] HIGH: Pre-orders are open"))
}

func TestConsoleSender(t *testing.T) {
	var buf bytes.Buffer
	n := alert
	n.Data = map[string]any{"ai_analysis": "Looks like a real launch"}
	require.NoError(t, (&ConsoleSender{Out: &buf}).Send(context.Background(), n))
	assert.Contains(t, buf.String(), strings.Repeat("=", 60))
	assert.Contains(t, buf.String(), "Pre-orders are open")
	assert.Contains(t, buf.String(), "AI Analysis: Looks like a real launch")
}

type fakeSender struct {
	ch   Channel
	err  error
	sent []Notification
}

func (f *fakeSender) Channel() Channel { return f.ch }
func (f *fakeSender) Send(_ context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestDispatcher_IndependentChannels(t *testing.T) {
	ok := &fakeSender{ch: Console}
	bad := &fakeSender{ch: Slack, err: errors.New("slack down")}
	d := NewDispatcher(logging.Discard(), ok, bad)

	assert.Equal(t, []Channel{Console, Slack}, d.Available())

	res := d.Send(context.Background(), Notification{Message: "hi"}, Console, Slack, Discord)
	assert.True(t, res[Console].Success)
	assert.False(t, res[Slack].Success)
	assert.Equal(t, "slack down", res[Slack].Error)
	assert.Equal(t, ErrNotConfigured.Error(), res[Discord].Error)

	require.Len(t, ok.sent, 1)
	assert.False(t, ok.sent[0].Time.IsZero())
	assert.Equal(t, UrgencyLow, ok.sent[0].Urgency)
}

type slowSender struct {
	ch    Channel
	delay time.Duration
	calls atomic.Int32
}

func (s *slowSender) Channel() Channel { return s.ch }
func (s *slowSender) Send(context.Context, Notification) error {
	time.Sleep(s.delay)
	s.calls.Add(1)
	return nil
}

// Unconfigured channels are recorded while configured senders are still
// writing their results; run with -race.
func TestDispatcher_MixedChannelsConcurrentResults(t *testing.T) {
	console := &slowSender{ch: Console, delay: time.Millisecond}
	file := &slowSender{ch: File}
	d := NewDispatcher(logging.Discard(), console, file)

	channels := []Channel{Console, Slack, File, Discord, Pushover, Webhook, Pushbullet, SMSTwilio}
	for range 50 {
		res := d.Send(context.Background(), Notification{Message: "hi"}, channels...)
		require.Len(t, res, len(channels))
		assert.True(t, res[Console].Success)
		assert.True(t, res[File].Success)
		for _, ch := range []Channel{Slack, Discord, Pushover, Webhook, Pushbullet, SMSTwilio} {
			assert.Equal(t, ErrNotConfigured.Error(), res[ch].Error, ch)
		}
	}
	assert.Equal(t, int32(50), console.calls.Load())
	assert.Equal(t, int32(50), file.calls.Load())
}

func TestDispatcher_DefaultsToAllAndTest(t *testing.T) {
	a := &fakeSender{ch: Console}
	b := &fakeSender{ch: File}
	d := NewDispatcher(logging.Discard(), a, b)

	res := d.Test(context.Background())
	assert.Len(t, res, 2)
	require.Len(t, b.sent, 1)
	assert.Equal(t, "Test Notification", b.sent[0].Title)
}

func TestFromConfig(t *testing.T) {
	var cfg config.NotificationConfig
	cfg.LogFile = filepath.Join(t.TempDir(), "a.log")
	cfg.SlackWebhookURL = "http://slack.invalid"
	cfg.Pushover.Token = "only-token"
	cfg.GmailSMS.Phone = "5551234567"
	cfg.GmailSMS.Carrier = "att"
	cfg.WebSocket = true

	d := FromConfig(cfg, nil, NewHub(logging.Discard()), logging.Discard())
	assert.Equal(t, []Channel{Console, File, Slack, WebSocket}, d.Available())
}

func TestParseChannels(t *testing.T) {
	chs, err := ParseChannels([]string{"console", "sms_twilio"})
	require.NoError(t, err)
	assert.Equal(t, []Channel{Console, SMSTwilio}, chs)

	_, err = ParseChannels([]string{"pager"})
	assert.Error(t, err)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), alert))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, alert.Message, got.Message)
	assert.Equal(t, UrgencyHigh, got.Urgency)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
