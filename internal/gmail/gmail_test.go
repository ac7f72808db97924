package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"go-autoagent/internal/logging"
)

func enc(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func TestParseMessage_PrefersPlainText(t *testing.T) {
	m := &gm.Message{
		Id:       "m1",
		ThreadId: "t1",
		LabelIds: []string{"INBOX", "UNREAD", "IMPORTANT"},
		Snippet:  "Your order",
		Payload: &gm.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gm.MessagePartHeader{
				{Name: "Subject", Value: "Order confirmed"},
				{Name: "From", Value: "Nintendo <no-reply@nintendo.com>"},
				{Name: "To", Value: "me@example.com"},
				{Name: "Date", Value: "Tue, 03 Jun 2025 10:00:00 +0000"},
			},
			Parts: []*gm.MessagePart{{
				MimeType: "multipart/alternative",
				Parts: []*gm.MessagePart{
					{MimeType: "text/html", Body: &gm.MessagePartBody{Data: enc("<p>html version</p>")}},
					{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: enc("plain version")}},
				},
			}},
		},
	}

	msg := parseMessage(m)
	assert.Equal(t, "plain version", msg.Body)
	assert.Equal(t, "Order confirmed", msg.Subject)
	assert.Equal(t, "Nintendo <no-reply@nintendo.com>", msg.From)
	assert.True(t, msg.IsUnread)
	assert.True(t, msg.IsImportant)
	require.NotNil(t, msg.Date)
	assert.Equal(t, time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC), msg.Date.UTC())
}

func TestParseMessage_HTMLFallbackAndInternalDate(t *testing.T) {
	m := &gm.Message{
		Id:           "m2",
		InternalDate: 1700000000000,
		Payload: &gm.MessagePart{
			MimeType: "text/html",
			Headers:  []*gm.MessagePartHeader{{Name: "Date", Value: "not a date"}},
			Body: &gm.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(
				`<html><head><style>p{}</style></head><body><p>Pre-order the <b>Switch 2</b> now</p><p>Limited stock</p></body></html>`))},
		},
	}

	msg := parseMessage(m)
	assert.Contains(t, msg.Body, "Pre-order the")
	assert.Contains(t, msg.Body, "Switch 2")
	assert.Contains(t, msg.Body, "Limited stock")
	assert.NotContains(t, msg.Body, "<p>")
	assert.NotContains(t, msg.Body, "p{}")
	require.NotNil(t, msg.Date)
	assert.Equal(t, int64(1700000000000), msg.Date.UnixMilli())
	assert.False(t, msg.IsUnread)
}

func TestStripReply(t *testing.T) {
	body := "Thanks, see you Friday.\n\nOn Mon, Jun 2, 2025 at 9:00 AM Alex <a@example.com> wrote:\n> Are we still on?\n> Alex"
	assert.Equal(t, "Thanks, see you Friday.", StripReply(body))

	assert.Equal(t, "Top line\nsecond", StripReply("Top line\n> quoted\nsecond\n-- \nSignature"))
	assert.Equal(t, "Hi", StripReply("Hi\n\nSent from my iPhone"))
	assert.Equal(t, "FYI", StripReply("FYI\n---------- Forwarded message ---------\nFrom: x"))
}

func TestGatewayAddress(t *testing.T) {
	addr, err := GatewayAddress("5551234567", " Verizon ")
	require.NoError(t, err)
	assert.Equal(t, "5551234567@vtext.com", addr)

	_, err = GatewayAddress("5551234567", "carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnsupportedCarrier)
}

func TestDateRangeQuery(t *testing.T) {
	start := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "after:2025/01/02 before:2025/01/09", DateRangeQuery(start, end))
}

type fakeGmail struct {
	t         *testing.T
	lastQuery string
	modified  gm.BatchModifyMessagesRequest
	sentRaw   string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/gmail/v1/users/me/messages":
		f.lastQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"missing"}]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/gmail/v1/users/me/messages/m1":
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"labelIds": []string{"UNREAD"},
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers":  []map[string]string{{"name": "Subject", "value": "Restock"}},
				"body":     map[string]any{"data": enc("back in stock")},
			},
		})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/gmail/v1/users/me/messages/batchModify":
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.modified))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/gmail/v1/users/me/messages/send":
		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.sentRaw = body.Raw
		w.Write([]byte(`{"id":"sent1"}`))
	case r.URL.Path == "/gmail/v1/users/me/profile":
		w.Write([]byte(`{"emailAddress":"me@example.com","messagesTotal":42,"threadsTotal":7,"historyId":"99"}`))
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gm.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return New(svc, logging.Discard()), fake
}

func TestClient_ListSkipsBrokenMessages(t *testing.T) {
	c, fake := newTestClient(t)

	msgs, err := c.FromSender(context.Background(), "nintendo.com", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "from:nintendo.com", fake.lastQuery)
	assert.Equal(t, "Restock", msgs[0].Subject)
	assert.Equal(t, "back in stock", msgs[0].BodyClean)
}

func TestClient_LabelsProfileAndSMS(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.MarkAsRead(ctx, "m1", "m2"))
	assert.Equal(t, []string{"m1", "m2"}, fake.modified.Ids)
	assert.Equal(t, []string{"UNREAD"}, fake.modified.RemoveLabelIds)
	assert.Empty(t, fake.modified.AddLabelIds)

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", p.Email)
	assert.EqualValues(t, 42, p.MessagesTotal)
	assert.EqualValues(t, 99, p.HistoryID)

	require.NoError(t, c.SendSMS(ctx, "5551234567", "att", "Switch 2 alert"))
	raw, err := base64.URLEncoding.DecodeString(fake.sentRaw)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: 5551234567@txt.att.net\r\n")
	assert.True(t, strings.HasSuffix(string(raw), "Switch 2 alert"))
}

func TestTokenFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	_, err := LoadToken(path)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, SaveToken(path, tok))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", got.RefreshToken)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadToken(path)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLoadOAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"installed":{
		"client_id":"cid.apps.googleusercontent.com",
		"client_secret":"secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`), 0o600))

	cfg, err := LoadOAuthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Scopes, cfg.Scopes)
	u := AuthCodeURL(cfg)
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "client_id=cid.apps.googleusercontent.com")
}
