// Package watcher scans recent mail from watched senders for product and
// purchase keywords and raises alerts.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/m-mizutani/goerr/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/config"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
	"go-autoagent/internal/notify"
)

const (
	processedImportance = 0.3
	alertImportance     = 1.0
	alertKind           = "email_watch"
	bodyPreviewLen      = 500
)

type MailSource interface {
	ListMessages(ctx context.Context, query string, limit int) ([]*gmail.Message, error)
}

// Agent is the part of agent.Agent the watcher uses.
type Agent interface {
	Run(ctx context.Context, in agent.RunInput) (string, error)
	AddObservation(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)
	AddLearning(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)
	Search(ctx context.Context, q memory.SearchQuery) ([]memory.Record, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notification, channels ...notify.Channel) map[notify.Channel]notify.Result
	Available() []notify.Channel
}

// Tracker remembers processed message ids; redisdb.Tracker implements it.
type Tracker interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// AlertRecord is the persisted history of raised alerts.
type AlertRecord struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	EmailID          string         `gorm:"index;size:128" json:"email_id"`
	Subject          string         `json:"subject"`
	Sender           string         `json:"sender"`
	Urgency          string         `gorm:"size:16" json:"urgency"`
	ProductKeywords  datatypes.JSON `json:"product_keywords"`
	PurchaseKeywords datatypes.JSON `json:"purchase_keywords"`
	Analysis         string         `json:"ai_analysis"`
	Deliveries       datatypes.JSON `json:"deliveries"`
	CreatedAt        time.Time      `json:"created_at"`
}

type Watcher struct {
	cfg      config.WatcherConfig
	mail     MailSource
	agent    Agent
	notifier Notifier
	tracker  Tracker
	db       *gorm.DB
	clock    clockwork.Clock
	log      *slog.Logger

	highChannels []notify.Channel

	mu        sync.Mutex
	lastCheck *time.Time
}

type Option func(*Watcher)

func WithTracker(t Tracker) Option       { return func(w *Watcher) { w.tracker = t } }
func WithDB(db *gorm.DB) Option          { return func(w *Watcher) { w.db = db } }
func WithClock(c clockwork.Clock) Option { return func(w *Watcher) { w.clock = c } }
func WithLogger(l *slog.Logger) Option   { return func(w *Watcher) { w.log = l } }

func New(cfg config.WatcherConfig, mail MailSource, ag Agent, notifier Notifier, opts ...Option) (*Watcher, error) {
	high, err := notify.ParseChannels(cfg.AlertChannels)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:          cfg,
		mail:         mail,
		agent:        ag,
		notifier:     notifier,
		clock:        clockwork.NewRealClock(),
		highChannels: high,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.Component(w.log, "watcher")
	return w, nil
}

// Query restricts the search to watched senders within the lookback window.
func (w *Watcher) Query(now time.Time) string {
	froms := make([]string, len(w.cfg.SenderDomains))
	for i, d := range w.cfg.SenderDomains {
		froms[i] = "from:" + d
	}
	since := now.Add(-time.Duration(w.cfg.LookbackHours) * time.Hour)
	return fmt.Sprintf("(%s) after:%s", strings.Join(froms, " OR "), since.Format("2006/01/02"))
}

// Match returns the product and purchase keywords found in the text,
// compared case-insensitively.
func (w *Watcher) Match(text string) (product, purchase []string) {
	lower := strings.ToLower(text)
	for _, kw := range w.cfg.ProductKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			product = append(product, kw)
		}
	}
	for _, kw := range w.cfg.PurchaseKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			purchase = append(purchase, kw)
		}
	}
	return product, purchase
}

type CheckResult struct {
	Query        string `json:"query"`
	Found        int    `json:"found"`
	Processed    int    `json:"processed"`
	Skipped      int    `json:"skipped"`
	HighAlerts   int    `json:"high_alerts"`
	MediumAlerts int    `json:"medium_alerts"`
}

// Check runs one scan. Individual message failures are logged and do not
// stop the scan; only a failed mail listing is returned as an error.
func (w *Watcher) Check(ctx context.Context) (*CheckResult, error) {
	now := w.clock.Now()
	res := &CheckResult{Query: w.Query(now)}
	w.log.Info("checking mail", "query", res.Query)

	msgs, err := w.mail.ListMessages(ctx, res.Query, w.cfg.MaxResults)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list watched mail")
	}
	res.Found = len(msgs)

	for _, m := range msgs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		urgency, processed, err := w.process(ctx, m)
		if err != nil {
			w.log.Warn("failed to process message", "id", m.ID, "error", err)
			continue
		}
		if !processed {
			res.Skipped++
			continue
		}
		res.Processed++
		switch urgency {
		case notify.UrgencyHigh:
			res.HighAlerts++
		case notify.UrgencyMedium:
			res.MediumAlerts++
		}
	}

	w.mu.Lock()
	w.lastCheck = &now
	w.mu.Unlock()
	w.log.Info("mail check completed", "found", res.Found, "processed", res.Processed,
		"high", res.HighAlerts, "medium", res.MediumAlerts)
	return res, nil
}

func (w *Watcher) process(ctx context.Context, m *gmail.Message) (notify.Urgency, bool, error) {
	fresh, err := w.claim(ctx, m.ID)
	if err != nil {
		return "", false, err
	}
	if !fresh {
		w.log.Debug("already processed", "id", m.ID)
		return "", false, nil
	}

	body := m.BodyClean
	if body == "" {
		body = m.Body
	}
	product, purchase := w.Match(m.Subject + " " + body)

	var urgency notify.Urgency
	switch {
	case len(product) > 0 && len(purchase) > 0:
		urgency = notify.UrgencyHigh
		if err := w.raiseHigh(ctx, m, body, product, purchase); err != nil {
			w.release(m.ID)
			return "", false, err
		}
	case len(product) > 0:
		urgency = notify.UrgencyMedium
		w.raiseMedium(ctx, m, product)
	}

	_, err = w.agent.AddObservation(ctx,
		fmt.Sprintf("Processed watched email %s: %s", m.ID, m.Subject),
		memory.Float64(processedImportance),
		map[string]any{
			"email_id":         m.ID,
			"sender":           m.From,
			"product_matches":  strings.Join(product, ", "),
			"purchase_matches": strings.Join(purchase, ", "),
		})
	if err != nil && w.tracker == nil {
		// Without a tracker the observation is the only dedup record.
		return urgency, true, goerr.Wrap(err, "failed to record processed email", goerr.V("id", m.ID))
	}
	if err != nil {
		w.log.Warn("failed to record processed email", "id", m.ID, "error", err)
	}
	return urgency, true, nil
}

// claim reports whether id is new. The tracker is authoritative when
// present; otherwise earlier observations in memory are consulted.
func (w *Watcher) claim(ctx context.Context, id string) (bool, error) {
	if w.tracker != nil {
		ok, err := w.tracker.Claim(ctx, id)
		if err == nil {
			return ok, nil
		}
		w.log.Warn("tracker unavailable, falling back to memory", "error", err)
	}
	recs, err := w.agent.Search(ctx, memory.SearchQuery{
		Query: "Processed watched email " + id,
		Type:  typePtr(memory.TypeObservation),
		Limit: 5,
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to check processed emails", goerr.V("id", id))
	}
	for _, r := range recs {
		if r.Metadata["email_id"] == id {
			return false, nil
		}
	}
	return true, nil
}

func (w *Watcher) release(id string) {
	if w.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.tracker.Release(ctx, id); err != nil {
		w.log.Warn("failed to release claim", "id", id, "error", err)
	}
}

func (w *Watcher) raiseHigh(ctx context.Context, m *gmail.Message, body string, product, purchase []string) error {
	date := formatDate(m.Date)
	preview := body
	if r := []rune(preview); len(r) > bodyPreviewLen {
		preview = string(r[:bodyPreviewLen]) + "..."
	}
	analysis, err := w.agent.Run(ctx, agent.RunInput{
		Goal: "Analyze this email to determine if it is about the watched product becoming available to buy",
		Context: fmt.Sprintf("Email from: %s\nSubject: %s\nDate: %s\nProduct keywords found: %s\nPurchase keywords found: %s\nBody preview: %s",
			m.From, m.Subject, date, strings.Join(product, ", "), strings.Join(purchase, ", "), preview),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("analysis failed, alerting without it", "id", m.ID, "error", err)
	}

	data := map[string]any{
		"email_id":          m.ID,
		"subject":           m.Subject,
		"sender":            m.From,
		"date":              date,
		"product_keywords":  product,
		"purchase_keywords": purchase,
		"ai_analysis":       analysis,
	}
	results := w.notifier.Send(ctx, notify.Notification{
		Title:   "Product purchase email detected",
		Message: fmt.Sprintf("Subject: %s\nFrom: %s\nDate: %s", m.Subject, m.From, date),
		Urgency: notify.UrgencyHigh,
		Kind:    alertKind,
		Data:    data,
	}, w.highChannels...)

	if _, err := w.agent.AddLearning(ctx,
		fmt.Sprintf("CRITICAL: product purchase email detected from %s: %s", m.From, m.Subject),
		memory.Float64(alertImportance), data); err != nil {
		w.log.Warn("failed to store alert learning", "id", m.ID, "error", err)
	}
	w.persist(ctx, m, notify.UrgencyHigh, product, purchase, analysis, results)
	w.log.Warn("purchase email detected", "id", m.ID, "subject", m.Subject)
	return nil
}

// raiseMedium only uses local channels; mentions are not worth a page.
func (w *Watcher) raiseMedium(ctx context.Context, m *gmail.Message, product []string) {
	var channels []notify.Channel
	for _, ch := range w.notifier.Available() {
		if ch == notify.Console || ch == notify.File {
			channels = append(channels, ch)
		}
	}
	results := map[notify.Channel]notify.Result{}
	if len(channels) > 0 {
		results = w.notifier.Send(ctx, notify.Notification{
			Title:   "Product mentioned in email",
			Message: fmt.Sprintf("Subject: %s\nFrom: %s", m.Subject, m.From),
			Urgency: notify.UrgencyMedium,
			Kind:    alertKind,
			Data: map[string]any{
				"email_id":         m.ID,
				"subject":          m.Subject,
				"sender":           m.From,
				"date":             formatDate(m.Date),
				"product_keywords": product,
			},
		}, channels...)
	}
	w.persist(ctx, m, notify.UrgencyMedium, product, nil, "", results)
	w.log.Info("product mentioned", "id", m.ID, "subject", m.Subject)
}

func (w *Watcher) persist(ctx context.Context, m *gmail.Message, u notify.Urgency, product, purchase []string, analysis string, results map[notify.Channel]notify.Result) {
	if w.db == nil {
		return
	}
	rec := AlertRecord{
		EmailID:          m.ID,
		Subject:          m.Subject,
		Sender:           m.From,
		Urgency:          string(u),
		ProductKeywords:  mustJSON(product),
		PurchaseKeywords: mustJSON(purchase),
		Analysis:         analysis,
		Deliveries:       mustJSON(results),
		CreatedAt:        w.clock.Now(),
	}
	if err := w.db.WithContext(ctx).Create(&rec).Error; err != nil {
		w.log.Warn("failed to persist alert", "id", m.ID, "error", err)
	}
}

// Alerts returns the most recent alerts first.
func (w *Watcher) Alerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if w.db == nil {
		return []AlertRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var out []AlertRecord
	if err := w.db.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to load alerts")
	}
	return out, nil
}

type Stats struct {
	LastCheck        *time.Time    `json:"last_check"`
	SenderDomains    []string      `json:"sender_domains"`
	ProductKeywords  []string      `json:"product_keywords"`
	PurchaseKeywords []string      `json:"purchase_keywords"`
	AlertChannels    int           `json:"alert_channels"`
	TotalAlerts      int64         `json:"total_alerts"`
	MemoryStats      *memory.Stats `json:"memory_stats,omitempty"`
}

func (w *Watcher) Stats(ctx context.Context) (*Stats, error) {
	w.mu.Lock()
	last := w.lastCheck
	w.mu.Unlock()

	channels := len(w.highChannels)
	if channels == 0 {
		channels = len(w.notifier.Available())
	}
	st := &Stats{
		LastCheck:        last,
		SenderDomains:    slices.Clone(w.cfg.SenderDomains),
		ProductKeywords:  slices.Clone(w.cfg.ProductKeywords),
		PurchaseKeywords: slices.Clone(w.cfg.PurchaseKeywords),
		AlertChannels:    channels,
	}
	if w.db != nil {
		if err := w.db.WithContext(ctx).Model(&AlertRecord{}).Count(&st.TotalAlerts).Error; err != nil {
			return nil, goerr.Wrap(err, "failed to count alerts")
		}
	}
	ms, err := w.agent.Stats(ctx)
	if err != nil {
		w.log.Warn("memory stats unavailable", "error", err)
	} else {
		st.MemoryStats = ms
	}
	return st, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func typePtr(t memory.Type) *memory.Type { return &t }
