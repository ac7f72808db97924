package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/auth"
	"go-autoagent/internal/config"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/llm"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
	"go-autoagent/internal/notify"
	"go-autoagent/internal/scheduler"
	"go-autoagent/internal/watcher"
)

type MemoryStore interface {
	Add(ctx context.Context, in memory.AddInput) (string, error)
	Search(ctx context.Context, q memory.SearchQuery) ([]memory.Record, error)
	GetByType(ctx context.Context, t memory.Type, limit int) ([]memory.Record, error)
	Get(ctx context.Context, id string) (*memory.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*memory.Stats, error)
	ClearAll(ctx context.Context) (*memory.ClearResult, error)
}

type Agent interface {
	Run(ctx context.Context, in agent.RunInput) (string, error)
	AddObservation(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)
	AddLearning(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)
	AddReflection(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)
}

// Mail is the Gmail surface exposed over HTTP; gmail.Client implements it.
type Mail interface {
	ListMessages(ctx context.Context, query string, limit int) ([]*gmail.Message, error)
	Unread(ctx context.Context, limit int) ([]*gmail.Message, error)
	FromSender(ctx context.Context, sender string, limit int) ([]*gmail.Message, error)
	InDateRange(ctx context.Context, start, end time.Time, limit int) ([]*gmail.Message, error)
	Search(ctx context.Context, terms string, limit int) ([]*gmail.Message, error)
	MarkAsRead(ctx context.Context, ids ...string) error
	MarkAsUnread(ctx context.Context, ids ...string) error
	Profile(ctx context.Context) (*gmail.Profile, error)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notification, channels ...notify.Channel) map[notify.Channel]notify.Result
	Available() []notify.Channel
	Test(ctx context.Context) map[notify.Channel]notify.Result
}

type Watcher interface {
	Check(ctx context.Context) (*watcher.CheckResult, error)
	Stats(ctx context.Context) (*watcher.Stats, error)
	Alerts(ctx context.Context, limit int) ([]watcher.AlertRecord, error)
}

type Scheduler interface {
	Status() scheduler.Status
	Jobs() []scheduler.JobRecord
	Job(id string) (*scheduler.JobRecord, error)
	AddJob(ctx context.Context, rec scheduler.JobRecord) (*scheduler.JobRecord, error)
	RemoveJob(ctx context.Context, id string) error
	PauseJob(ctx context.Context, id string) error
	ResumeJob(ctx context.Context, id string) error
	RunJob(ctx context.Context, id string) (bool, error)
}

// Deps holds the services behind the routes. Store, Agent and Notifier
// are required. Gmail, Watcher, Scheduler, Hub and LLM may be nil; their
// routes then answer 503 or are left out.
type Deps struct {
	Store     MemoryStore
	Agent     Agent
	Gmail     Mail
	Notifier  Notifier
	Watcher   Watcher
	Scheduler Scheduler
	Hub       http.Handler
	Auth      *auth.Authenticator
	LLM       *llm.Manager
	Logger    *slog.Logger
}

// requestLogger tags every request with an id and puts a request-scoped
// logger into its context.
func requestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		l := base.With("request_id", id)
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), l))

		start := time.Now()
		c.Next()
		l.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logging.Component(d.Logger, "http")))

	authn := d.Auth
	if authn == nil {
		authn = auth.New("", nil)
	}
	admin := authn.RequireScope(auth.ScopeAdmin)

	subpath := cfg.Server.Subpath // "" or a path starting with '/'
	root := r.Group(subpath)
	root.GET("/health", healthHandler(d.LLM))

	group := root.Group("", authn.Middleware())
	{
		group.GET("/config", configHandler(cfg, d.Notifier))
		group.POST("/run-with-memory", RunWithMemoryHandler(d.Agent))

		// --- Memory ---
		group.POST("/memory/add", AddMemoryHandler(d.Store))
		group.POST("/memory/search", SearchMemoriesHandler(d.Store))
		group.GET("/memory/stats", MemoryStatsHandler(d.Store))
		group.GET("/memory/type/:type", MemoriesByTypeHandler(d.Store))
		group.GET("/memory/:id", GetMemoryHandler(d.Store))
		group.DELETE("/memory/:id", admin, DeleteMemoryHandler(d.Store))
		group.POST("/memory/clear", admin, ClearMemoriesHandler(d.Store))
		group.POST("/memory/observation", AddTypedMemoryHandler(d.Agent.AddObservation, "Observation"))
		group.POST("/memory/learning", AddTypedMemoryHandler(d.Agent.AddLearning, "Learning"))
		group.POST("/memory/reflection", AddTypedMemoryHandler(d.Agent.AddReflection, "Reflection"))

		// --- Gmail ---
		group.GET("/gmail/status", GmailStatusHandler(d.Gmail))
		group.GET("/gmail/profile", GmailProfileHandler(d.Gmail))
		group.POST("/gmail/messages", GmailMessagesHandler(d.Gmail))
		group.GET("/gmail/unread", GmailUnreadHandler(d.Gmail))
		group.GET("/gmail/from/:sender", GmailFromSenderHandler(d.Gmail))
		group.POST("/gmail/date-range", GmailDateRangeHandler(d.Gmail))
		group.POST("/gmail/search", GmailSearchHandler(d.Gmail))
		group.POST("/gmail/mark-read", GmailMarkHandler(d.Gmail, true))
		group.POST("/gmail/mark-unread", GmailMarkHandler(d.Gmail, false))
		group.POST("/gmail/process-and-analyze", ProcessAndAnalyzeHandler(d.Gmail, d.Agent))

		// --- Notifications ---
		group.GET("/notifications/channels", ChannelsHandler(d.Notifier))
		group.POST("/notifications/send", SendNotificationHandler(d.Notifier))
		group.POST("/notifications/test", TestNotificationHandler(d.Notifier))

		// --- Watcher ---
		group.POST("/watcher/check", WatcherCheckHandler(d.Watcher))
		group.GET("/watcher/stats", WatcherStatsHandler(d.Watcher))
		group.GET("/watcher/alerts", WatcherAlertsHandler(d.Watcher))

		// --- Scheduler ---
		group.GET("/scheduler/status", SchedulerStatusHandler(d.Scheduler))
		group.GET("/scheduler/jobs", ListJobsHandler(d.Scheduler))
		group.POST("/scheduler/jobs", admin, CreateJobHandler(d.Scheduler))
		group.GET("/scheduler/jobs/:id", GetJobHandler(d.Scheduler))
		group.DELETE("/scheduler/jobs/:id", admin, DeleteJobHandler(d.Scheduler))
		group.POST("/scheduler/jobs/:id/pause", admin, PauseJobHandler(d.Scheduler))
		group.POST("/scheduler/jobs/:id/resume", admin, ResumeJobHandler(d.Scheduler))
		group.POST("/scheduler/jobs/:id/run", RunJobHandler(d.Scheduler))

		// --- Live alert feed ---
		if d.Hub != nil {
			group.GET("/ws/alerts", gin.WrapH(d.Hub))
		}
	}
	return r
}

// Addr is the listen address for cfg.
func Addr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
}
