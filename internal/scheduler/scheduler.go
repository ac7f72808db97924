// Package scheduler runs named jobs on interval or cron schedules and
// keeps their state in the database.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"go-autoagent/internal/logging"
)

type ScheduleType string

const (
	Interval ScheduleType = "interval"
	Cron     ScheduleType = "cron"
)

// EndpointWatcher is the endpoint the email watcher registers under.
const EndpointWatcher = "email_watcher"

var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrJobNotFound    = errors.New("job not found")
	ErrAlreadyRunning = errors.New("scheduler already running")
)

// JobRecord is both the persisted row and the status view of a job.
type JobRecord struct {
	ID            string       `gorm:"primaryKey;size:64" json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Endpoint      string       `gorm:"size:64" json:"endpoint"`
	ScheduleType  ScheduleType `gorm:"size:16" json:"schedule_type"`
	ScheduleValue string       `json:"schedule_value"`
	Enabled       bool         `json:"enabled"`
	LastRun       *time.Time   `json:"last_run"`
	NextRun       *time.Time   `json:"next_run"`
	RunCount      int          `json:"run_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (JobRecord) TableName() string { return "scheduled_jobs" }

// Handler does the work of a job. It receives the scheduler's context.
type Handler func(ctx context.Context) error

type Status struct {
	Running    bool `json:"running"`
	TotalJobs  int  `json:"total_jobs"`
	ActiveJobs int  `json:"active_jobs"`
	PausedJobs int  `json:"paused_jobs"`
}

type entry struct {
	rec      JobRecord
	schedule cron.Schedule
	busy     atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

type Scheduler struct {
	db    *gorm.DB
	clock clockwork.Clock
	log   *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	jobs     map[string]*entry
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

// WithDB persists job definitions and run state. Without it jobs live in
// memory only.
func WithDB(db *gorm.DB) Option { return func(s *Scheduler) { s.db = db } }

func WithClock(c clockwork.Clock) Option { return func(s *Scheduler) { s.clock = c } }
func WithLogger(l *slog.Logger) Option   { return func(s *Scheduler) { s.log = l } }

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clockwork.NewRealClock(),
		handlers: map[string]Handler{},
		jobs:     map[string]*entry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "scheduler")
	return s
}

// Handle registers the handler run by jobs with the given endpoint.
func (s *Scheduler) Handle(endpoint string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[endpoint] = h
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseSchedule(t ScheduleType, value string) (cron.Schedule, error) {
	switch t {
	case Interval:
		minutes, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || minutes < 1 {
			return nil, goerr.Wrap(ErrInvalidJob, "interval must be a positive number of minutes", goerr.V("value", value))
		}
		return cron.Every(time.Duration(minutes) * time.Minute), nil
	case Cron:
		if len(strings.Fields(value)) != 5 {
			return nil, goerr.Wrap(ErrInvalidJob, "cron expression must have 5 fields", goerr.V("value", value))
		}
		sched, err := cronParser.Parse(value)
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidJob, "invalid cron expression", goerr.V("value", value), goerr.V("cause", err.Error()))
		}
		return sched, nil
	default:
		return nil, goerr.Wrap(ErrInvalidJob, "unknown schedule type", goerr.V("type", t))
	}
}

// Load restores persisted jobs. Call it before Start.
func (s *Scheduler) Load(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	var recs []JobRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return 0, goerr.Wrap(err, "failed to load jobs")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range recs {
		sched, err := parseSchedule(rec.ScheduleType, rec.ScheduleValue)
		if err != nil {
			s.log.Warn("skipping stored job with bad schedule", "id", rec.ID, "error", err)
			continue
		}
		rec.NextRun = nil
		s.jobs[rec.ID] = &entry{rec: rec, schedule: sched}
		n++
	}
	s.log.Info("jobs restored", "count", n)
	return n, nil
}

// AddJob validates and registers a job, replacing any job with the same
// id. An empty id gets a generated one.
func (s *Scheduler) AddJob(ctx context.Context, rec JobRecord) (*JobRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Endpoint == "" {
		return nil, goerr.Wrap(ErrInvalidJob, "endpoint is required", goerr.V("id", rec.ID))
	}
	sched, err := parseSchedule(rec.ScheduleType, rec.ScheduleValue)
	if err != nil {
		return nil, err
	}
	if rec.Name == "" {
		rec.Name = rec.ID
	}
	rec.LastRun, rec.NextRun, rec.RunCount = nil, nil, 0

	s.mu.Lock()
	old := s.jobs[rec.ID]
	if old != nil {
		rec.CreatedAt = old.rec.CreatedAt
		delete(s.jobs, rec.ID)
	}
	s.mu.Unlock()
	s.stopLoop(old)

	if err := s.save(ctx, &rec); err != nil {
		return nil, err
	}

	e := &entry{rec: rec, schedule: sched}
	s.mu.Lock()
	s.jobs[rec.ID] = e
	if rec.Enabled {
		s.startLoopLocked(e)
	}
	out := e.rec
	s.mu.Unlock()
	s.log.Info("job added", "id", rec.ID, "name", rec.Name, "schedule", string(rec.ScheduleType)+" "+rec.ScheduleValue)
	return &out, nil
}

func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return goerr.Wrap(ErrJobNotFound, "cannot remove job", goerr.V("id", id))
	}
	s.stopLoop(e)
	if s.db != nil {
		if err := s.db.WithContext(ctx).Delete(&JobRecord{}, "id = ?", id).Error; err != nil {
			return goerr.Wrap(err, "failed to delete job", goerr.V("id", id))
		}
	}
	s.log.Info("job removed", "id", id)
	return nil
}

func (s *Scheduler) PauseJob(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

func (s *Scheduler) ResumeJob(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return goerr.Wrap(ErrJobNotFound, "unknown job", goerr.V("id", id))
	}
	if e.rec.Enabled == enabled {
		s.mu.Unlock()
		return nil
	}
	e.rec.Enabled = enabled
	if enabled {
		s.startLoopLocked(e)
	}
	s.mu.Unlock()

	if !enabled {
		s.stopLoop(e)
		s.mu.Lock()
		e.rec.NextRun = nil
		s.mu.Unlock()
	}
	if s.db != nil {
		if err := s.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", id).Update("enabled", enabled).Error; err != nil {
			return goerr.Wrap(err, "failed to update job", goerr.V("id", id))
		}
	}
	s.log.Info("job state changed", "id", id, "enabled", enabled)
	return nil
}

func (s *Scheduler) Job(id string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, goerr.Wrap(ErrJobNotFound, "unknown job", goerr.V("id", id))
	}
	rec := e.rec
	return &rec, nil
}

// Jobs lists every job ordered by id.
func (s *Scheduler) Jobs() []JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobRecord, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.ctx != nil, TotalJobs: len(s.jobs)}
	for _, e := range s.jobs {
		if e.rec.Enabled {
			st.ActiveJobs++
		} else {
			st.PausedJobs++
		}
	}
	return st
}

// Start launches every enabled job. Jobs run until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.jobs {
		if e.rec.Enabled {
			s.startLoopLocked(e)
		}
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels running jobs and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	for _, e := range s.jobs {
		e.stop, e.done = nil, nil
		e.rec.NextRun = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// RunJob executes a job immediately, outside its schedule. It reports
// false when the job was already running.
func (s *Scheduler) RunJob(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return false, goerr.Wrap(ErrJobNotFound, "unknown job", goerr.V("id", id))
	}
	return s.execute(ctx, e), nil
}

// AddWatcherInterval schedules the email watcher every minutes.
func (s *Scheduler) AddWatcherInterval(ctx context.Context, minutes int) (*JobRecord, error) {
	return s.AddJob(ctx, JobRecord{
		ID:            "email_watcher",
		Name:          "Email watcher",
		Description:   "Check watched senders for product and purchase emails and send alerts",
		Endpoint:      EndpointWatcher,
		ScheduleType:  Interval,
		ScheduleValue: strconv.Itoa(minutes),
		Enabled:       true,
	})
}

// AddWatcherCron schedules the email watcher with a 5-field cron
// expression, evaluated in UTC.
func (s *Scheduler) AddWatcherCron(ctx context.Context, expr string) (*JobRecord, error) {
	if expr == "" {
		expr = "*/15 * * * *"
	}
	return s.AddJob(ctx, JobRecord{
		ID:            "email_watcher_cron",
		Name:          "Email watcher (cron)",
		Description:   "Check watched senders for product and purchase emails on a cron schedule",
		Endpoint:      EndpointWatcher,
		ScheduleType:  Cron,
		ScheduleValue: expr,
		Enabled:       true,
	})
}

// startLoopLocked starts e's goroutine when the scheduler is running.
// s.mu must be held.
func (s *Scheduler) startLoopLocked(e *entry) {
	if s.ctx == nil || e.stop != nil {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.ctx, e, e.stop, e.done)
}

// stopLoop signals e's goroutine and waits for it to exit. s.mu must not
// be held.
func (s *Scheduler) stopLoop(e *entry) {
	if e == nil {
		return
	}
	s.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Scheduler) loop(ctx context.Context, e *entry, stop, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	for {
		now := s.clock.Now().UTC()
		next := e.schedule.Next(now)
		s.mu.Lock()
		if ctx.Err() == nil {
			e.rec.NextRun = &next
		}
		s.mu.Unlock()

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.Chan():
		}
		s.execute(ctx, e)
	}
}

// execute runs e's handler unless an instance is already in flight.
func (s *Scheduler) execute(ctx context.Context, e *entry) bool {
	if !e.busy.CompareAndSwap(false, true) {
		s.log.Warn("job still running, skipping", "id", e.rec.ID)
		return false
	}
	defer e.busy.Store(false)

	now := s.clock.Now().UTC()
	s.mu.Lock()
	e.rec.LastRun = &now
	e.rec.RunCount++
	rec := e.rec
	h := s.handlers[rec.Endpoint]
	s.mu.Unlock()

	if s.db != nil {
		err := s.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", rec.ID).
			Updates(map[string]any{"last_run": now, "run_count": rec.RunCount}).Error
		if err != nil {
			s.log.Warn("failed to record job run", "id", rec.ID, "error", err)
		}
	}

	if h == nil {
		s.log.Warn("no handler for endpoint", "id", rec.ID, "endpoint", rec.Endpoint)
		return true
	}
	s.log.Info("executing job", "id", rec.ID, "name", rec.Name)
	start := s.clock.Now()
	if err := h(ctx); err != nil {
		s.log.Error("job failed", "id", rec.ID, "error", err)
		return true
	}
	s.log.Info("job completed", "id", rec.ID, "elapsed", s.clock.Since(start))
	return true
}

func (s *Scheduler) save(ctx context.Context, rec *JobRecord) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return goerr.Wrap(err, "failed to save job", goerr.V("id", rec.ID))
	}
	return nil
}
