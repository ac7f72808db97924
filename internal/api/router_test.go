package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/auth"
	"go-autoagent/internal/config"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
	"go-autoagent/internal/notify"
	"go-autoagent/internal/scheduler"
	"go-autoagent/internal/watcher"
)

type fakeStore struct {
	recs     map[string]memory.Record
	lastAdd  memory.AddInput
	lastQ    memory.SearchQuery
	err      error
	clearRes *memory.ClearResult
}

func newFakeStore() *fakeStore { return &fakeStore{recs: map[string]memory.Record{}} }

func (f *fakeStore) Add(_ context.Context, in memory.AddInput) (string, error) {
	f.lastAdd = in
	if f.err != nil {
		return "", f.err
	}
	if !in.Type.Valid() {
		return "", fmt.Errorf("bad type: %w", memory.ErrValidation)
	}
	id := fmt.Sprintf("mem-%d", len(f.recs)+1)
	f.recs[id] = memory.Record{ID: id, Content: in.Content, Type: in.Type}
	return id, nil
}

func (f *fakeStore) Search(_ context.Context, q memory.SearchQuery) ([]memory.Record, error) {
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return []memory.Record{{ID: "mem-1", Content: "Preorders sell out fast", Type: memory.TypeLearning}}, nil
}

func (f *fakeStore) GetByType(_ context.Context, t memory.Type, limit int) ([]memory.Record, error) {
	return nil, f.err
}

func (f *fakeStore) Get(_ context.Context, id string) (*memory.Record, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("missing %s: %w", id, memory.ErrNotFound)
	}
	return &rec, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) (bool, error) {
	_, ok := f.recs[id]
	delete(f.recs, id)
	return ok, nil
}

func (f *fakeStore) Stats(context.Context) (*memory.Stats, error) {
	return &memory.Stats{TotalCount: len(f.recs), CollectionName: "test"}, f.err
}

func (f *fakeStore) ClearAll(context.Context) (*memory.ClearResult, error) {
	return f.clearRes, f.err
}

type fakeAgent struct {
	runs    []agent.RunInput
	added   []string
	runErr  error
	addedBy []float64
}

func (f *fakeAgent) Run(_ context.Context, in agent.RunInput) (string, error) {
	f.runs = append(f.runs, in)
	if f.runErr != nil {
		return "", f.runErr
	}
	return "analysis for " + in.Goal, nil
}

func (f *fakeAgent) add(content string, imp *float64) (string, error) {
	f.added = append(f.added, content)
	if imp != nil {
		f.addedBy = append(f.addedBy, *imp)
	}
	return "added", nil
}

func (f *fakeAgent) AddObservation(_ context.Context, c string, imp *float64, _ map[string]any) (string, error) {
	return f.add(c, imp)
}

func (f *fakeAgent) AddLearning(_ context.Context, c string, imp *float64, _ map[string]any) (string, error) {
	return f.add(c, imp)
}

func (f *fakeAgent) AddReflection(_ context.Context, c string, imp *float64, _ map[string]any) (string, error) {
	return f.add(c, imp)
}

type fakeMail struct {
	msgs      []*gmail.Message
	lastQuery string
	lastLimit int
	start     time.Time
	end       time.Time
	marked    []string
	err       error
}

func (f *fakeMail) ListMessages(_ context.Context, q string, limit int) ([]*gmail.Message, error) {
	f.lastQuery, f.lastLimit = q, limit
	return f.msgs, f.err
}

func (f *fakeMail) Unread(ctx context.Context, limit int) ([]*gmail.Message, error) {
	return f.ListMessages(ctx, "is:unread", limit)
}

func (f *fakeMail) FromSender(ctx context.Context, s string, limit int) ([]*gmail.Message, error) {
	return f.ListMessages(ctx, "from:"+s, limit)
}

func (f *fakeMail) InDateRange(ctx context.Context, start, end time.Time, limit int) ([]*gmail.Message, error) {
	f.start, f.end = start, end
	return f.ListMessages(ctx, gmail.DateRangeQuery(start, end), limit)
}

func (f *fakeMail) Search(ctx context.Context, terms string, limit int) ([]*gmail.Message, error) {
	return f.ListMessages(ctx, terms, limit)
}

func (f *fakeMail) MarkAsRead(_ context.Context, ids ...string) error {
	f.marked = append(f.marked, ids...)
	return f.err
}

func (f *fakeMail) MarkAsUnread(_ context.Context, ids ...string) error { return f.err }

func (f *fakeMail) Profile(context.Context) (*gmail.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gmail.Profile{Email: "me@example.com", MessagesTotal: 42}, nil
}

type fakeNotifier struct {
	sent     []notify.Notification
	channels []notify.Channel
}

func (f *fakeNotifier) Send(_ context.Context, n notify.Notification, chs ...notify.Channel) map[notify.Channel]notify.Result {
	f.sent = append(f.sent, n)
	f.channels = chs
	return map[notify.Channel]notify.Result{notify.Console: {Success: true}}
}

func (f *fakeNotifier) Available() []notify.Channel { return []notify.Channel{notify.Console, notify.File} }

func (f *fakeNotifier) Test(ctx context.Context) map[notify.Channel]notify.Result {
	return f.Send(ctx, notify.Notification{Title: "Test Notification"})
}

type fakeWatcher struct{ err error }

func (f *fakeWatcher) Check(context.Context) (*watcher.CheckResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &watcher.CheckResult{Query: "(from:nintendo.com)", Found: 2, Processed: 2, HighAlerts: 1}, nil
}

func (f *fakeWatcher) Stats(context.Context) (*watcher.Stats, error) {
	return &watcher.Stats{TotalAlerts: 3}, nil
}

func (f *fakeWatcher) Alerts(context.Context, int) ([]watcher.AlertRecord, error) {
	return nil, nil
}

type env struct {
	r     *gin.Engine
	store *fakeStore
	agent *fakeAgent
	mail  *fakeMail
	notif *fakeNotifier
	sched *scheduler.Scheduler
}

func newEnv(t *testing.T, mutate func(*config.Config, *Deps)) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		store: newFakeStore(),
		agent: &fakeAgent{},
		mail:  &fakeMail{},
		notif: &fakeNotifier{},
		sched: scheduler.New(scheduler.WithLogger(logging.Discard())),
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	d := Deps{
		Store:     e.store,
		Agent:     e.agent,
		Gmail:     e.mail,
		Notifier:  e.notif,
		Watcher:   &fakeWatcher{},
		Scheduler: e.sched,
		Logger:    logging.Discard(),
	}
	if mutate != nil {
		mutate(cfg, &d)
	}
	e.r = SetupRouter(cfg, d)
	return e
}

func (e *env) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do("GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSubpath(t *testing.T) {
	e := newEnv(t, func(c *config.Config, _ *Deps) { c.Server.Subpath = "/agent" })
	assert.Equal(t, http.StatusOK, e.do("GET", "/agent/health", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do("GET", "/health", nil).Code)
}

func TestConfig_HidesSecrets(t *testing.T) {
	e := newEnv(t, func(c *config.Config, _ *Deps) {
		c.LLM.APIKey = "sk-secret"
		c.Server.JWTSecret = "jwt-secret"
	})
	w := e.do("GET", "/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")
	assert.NotContains(t, w.Body.String(), "jwt-secret")
	assert.Contains(t, w.Body.String(), `"notification_channels":["console","file"]`)
}

func TestRunWithMemory(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do("POST", "/run-with-memory", map[string]any{"goal": "Plan launch day", "context": "budget 500", "memory_search_limit": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "analysis for Plan launch day", decode(t, w)["result"])
	require.Len(t, e.agent.runs, 1)
	assert.Equal(t, agent.RunInput{Goal: "Plan launch day", Context: "budget 500", SearchLimit: 3}, e.agent.runs[0])

	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/run-with-memory", map[string]any{"goal": "x", "memory_search_limit": 0}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/run-with-memory", "{not json").Code)
}

func TestRunWithMemory_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("empty goal: %w", memory.ErrValidation), http.StatusBadRequest},
		{memory.Classify(agent.ErrCompletionProvider, errors.New("model down")), http.StatusBadGateway},
		{memory.Classify(memory.ErrEmbeddingProvider, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{memory.Classify(memory.ErrBackendUnavailable, errors.New("refused")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newEnv(t, nil)
		e.agent.runErr = tc.err
		w := e.do("POST", "/run-with-memory", map[string]any{"goal": "g"})
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestStatusFor_GoogleAPI(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(&googleapi.Error{Code: 404}))
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("list: %w", &googleapi.Error{Code: 500})))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(gmail.ErrNotAuthenticated))
	assert.Equal(t, http.StatusNotFound, statusFor(scheduler.ErrJobNotFound))
}

func TestMemoryRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do("POST", "/memory/add", map[string]any{"content": "Launch is in June", "memory_type": "context", "importance_score": 0.9})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode(t, w)["memory_id"].(string)
	assert.Equal(t, 0.9, *e.store.lastAdd.Importance)

	w = e.do("POST", "/memory/add", map[string]any{"content": "x", "memory_type": "dream"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("GET", "/memory/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Launch is in June", decode(t, w)["content"])
	assert.Equal(t, http.StatusNotFound, e.do("GET", "/memory/nope", nil).Code)

	w = e.do("POST", "/memory/search", map[string]any{"query": "launch", "memory_type": "learning"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10, e.store.lastQ.Limit)
	require.NotNil(t, e.store.lastQ.Type)
	assert.Equal(t, memory.TypeLearning, *e.store.lastQ.Type)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = e.do("GET", "/memory/type/goal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["memories"])
	assert.Equal(t, http.StatusBadRequest, e.do("GET", "/memory/type/dream", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("GET", "/memory/type/goal?limit=-1", nil).Code)

	w = e.do("GET", "/memory/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total_memories"])

	w = e.do("DELETE", "/memory/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["deleted"])
	w = e.do("DELETE", "/memory/"+id, nil)
	assert.Equal(t, false, decode(t, w)["deleted"])
}

func TestMemoryClear_PartialIsNotAnError(t *testing.T) {
	e := newEnv(t, nil)
	e.store.clearRes = &memory.ClearResult{Success: false, DocumentsFound: 5, DocumentsDeleted: 3, DocumentsRemaining: 2}
	w := e.do("POST", "/memory/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.EqualValues(t, 2, body["documents_remaining"])
}

func TestTypedMemoryHelpers(t *testing.T) {
	e := newEnv(t, nil)
	for _, kind := range []string{"observation", "learning", "reflection"} {
		w := e.do("POST", "/memory/"+kind, map[string]any{"content": "note " + kind})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, decode(t, w)["message"], "added successfully")
	}
	assert.Equal(t, []string{"note observation", "note learning", "note reflection"}, e.agent.added)
	assert.Empty(t, e.agent.addedBy, "defaults are left to the agent")
}

func TestGmail_Unavailable(t *testing.T) {
	e := newEnv(t, func(_ *config.Config, d *Deps) { d.Gmail = nil })
	w := e.do("GET", "/gmail/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["status"])
	assert.Equal(t, http.StatusServiceUnavailable, e.do("GET", "/gmail/unread", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, e.do("POST", "/gmail/search", map[string]any{"query": "x"}).Code)
}

func TestGmailRoutes(t *testing.T) {
	e := newEnv(t, nil)
	e.mail.msgs = []*gmail.Message{{ID: "m1", Subject: "Hello", From: "a@b.com", BodyClean: "Body"}}

	w := e.do("GET", "/gmail/status", nil)
	assert.Equal(t, "available", decode(t, w)["status"])

	w = e.do("GET", "/gmail/unread?max_results=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "is:unread", e.mail.lastQuery)
	assert.Equal(t, 3, e.mail.lastLimit)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	e.do("GET", "/gmail/from/news@nintendo.com", nil)
	assert.Equal(t, "from:news@nintendo.com", e.mail.lastQuery)
	assert.Equal(t, 10, e.mail.lastLimit)

	w = e.do("POST", "/gmail/date-range", map[string]any{"start_date": "2025-06-01", "end_date": "2025-06-03T12:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "after:2025/06/01 before:2025/06/03", e.mail.lastQuery)

	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/gmail/date-range", map[string]any{"start_date": "soon", "end_date": "2025-06-03"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/gmail/date-range", map[string]any{"start_date": "2025-06-05", "end_date": "2025-06-03"}).Code)

	w = e.do("POST", "/gmail/mark-read", map[string]any{"ids": []string{"m1", "m2"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"m1", "m2"}, e.mail.marked)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/gmail/mark-read", map[string]any{"ids": []string{}}).Code)

	e.mail.err = &googleapi.Error{Code: 500, Message: "backend error"}
	assert.Equal(t, http.StatusBadGateway, e.do("POST", "/gmail/messages", map[string]any{"query": "x"}).Code)
}

func TestProcessAndAnalyze(t *testing.T) {
	e := newEnv(t, nil)
	e.mail.msgs = []*gmail.Message{
		{ID: "m1", Subject: "Pre-order open", From: "news@nintendo.com", BodyClean: strings.Repeat("a", 1500)},
		{ID: "m2", Subject: "Receipt", From: "shop@example.com", BodyClean: "Thanks"},
	}

	w := e.do("POST", "/gmail/process-and-analyze", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["processed_emails"])
	assert.Equal(t, "is:unread", e.mail.lastQuery)
	assert.Equal(t, 5, e.mail.lastLimit)

	require.Len(t, e.agent.added, 2)
	assert.Equal(t, "Email from news@nintendo.com: Pre-order open\n\n"+strings.Repeat("a", 1000), e.agent.added[0])
	assert.Equal(t, []float64{0.6, 0.6}, e.agent.addedBy)
	require.Len(t, e.agent.runs, 2)
	assert.Equal(t, "Analyze this email and provide insights: Receipt", e.agent.runs[1].Goal)
	assert.Contains(t, e.agent.runs[0].Context, "Content: "+strings.Repeat("a", 200))
	assert.NotContains(t, e.agent.runs[0].Context, strings.Repeat("a", 201))

	e2 := newEnv(t, nil)
	e2.mail.msgs = e.mail.msgs
	w = e2.do("POST", "/gmail/process-and-analyze", map[string]any{"store_in_memory": false, "analyze_with_agent": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e2.agent.added)
	assert.Empty(t, e2.agent.runs)
	results := decode(t, w)["results"].([]any)
	assert.Nil(t, results[0].(map[string]any)["analysis"])
}

func TestNotificationRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do("GET", "/notifications/channels", nil)
	assert.Equal(t, []any{"console", "file"}, decode(t, w)["channels"])

	w = e.do("POST", "/notifications/send", map[string]any{"title": "Hi", "message": "there", "urgency": "high", "channels": []string{"console"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, e.notif.sent, 1)
	assert.Equal(t, notify.UrgencyHigh, e.notif.sent[0].Urgency)
	assert.Equal(t, "manual", e.notif.sent[0].Kind)
	assert.Equal(t, []notify.Channel{notify.Console}, e.notif.channels)

	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/notifications/send", map[string]any{"message": "x", "channels": []string{"pager"}}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/notifications/send", map[string]any{"message": "x", "urgency": "urgent"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/notifications/send", map[string]any{"title": "no message"}).Code)

	w = e.do("POST", "/notifications/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Test Notification", e.notif.sent[1].Title)
}

func TestWatcherRoutes(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do("POST", "/watcher/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["high_alerts"])

	w = e.do("GET", "/watcher/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["alerts"])

	none := newEnv(t, func(_ *config.Config, d *Deps) { d.Watcher = nil })
	assert.Equal(t, http.StatusServiceUnavailable, none.do("GET", "/watcher/stats", nil).Code)
}

func TestSchedulerRoutes(t *testing.T) {
	e := newEnv(t, nil)
	ran := make(chan struct{}, 1)
	e.sched.Handle(scheduler.EndpointWatcher, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	w := e.do("POST", "/scheduler/jobs", map[string]any{
		"id": "watch", "name": "Watch", "endpoint": "email_watcher", "schedule_type": "cron", "schedule_value": "*/5 * * * *",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["enabled"])

	w = e.do("POST", "/scheduler/jobs", map[string]any{"endpoint": "email_watcher", "schedule_type": "interval", "schedule_value": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("GET", "/scheduler/jobs", nil)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	require.Equal(t, http.StatusOK, e.do("POST", "/scheduler/jobs/watch/pause", nil).Code)
	w = e.do("GET", "/scheduler/status", nil)
	assert.EqualValues(t, 1, decode(t, w)["paused_jobs"])
	require.Equal(t, http.StatusOK, e.do("POST", "/scheduler/jobs/watch/resume", nil).Code)

	require.Equal(t, http.StatusOK, e.do("POST", "/scheduler/jobs/watch/run", nil).Code)
	<-ran
	w = e.do("GET", "/scheduler/jobs/watch", nil)
	assert.EqualValues(t, 1, decode(t, w)["run_count"])

	require.Equal(t, http.StatusOK, e.do("DELETE", "/scheduler/jobs/watch", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do("GET", "/scheduler/jobs/watch", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do("POST", "/scheduler/jobs/watch/pause", nil).Code)
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	e := newEnv(t, func(_ *config.Config, d *Deps) { d.Auth = auth.New(secret, nil) })

	assert.Equal(t, http.StatusOK, e.do("GET", "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do("GET", "/memory/stats", nil).Code)

	reader, err := auth.GenerateJWT(secret, "dashboard", "read", time.Hour)
	require.NoError(t, err)
	admin, err := auth.GenerateJWT(secret, "ops", auth.ScopeAdmin, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, e.do("GET", "/memory/stats", nil, "Authorization", "Bearer "+reader).Code)
	assert.Equal(t, http.StatusForbidden, e.do("POST", "/memory/clear", nil, "Authorization", "Bearer "+reader).Code)

	e.store.clearRes = &memory.ClearResult{Success: true}
	assert.Equal(t, http.StatusOK, e.do("POST", "/memory/clear", nil, "Authorization", "Bearer "+admin).Code)
}
