package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-autoagent/internal/scheduler"
	"go-autoagent/internal/watcher"
)

func requireWatcher(c *gin.Context, w Watcher) bool {
	if w == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Email watcher not available"))
		return false
	}
	return true
}

// POST /watcher/check
func WatcherCheckHandler(w Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireWatcher(c, w) {
			return
		}
		res, err := w.Check(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GET /watcher/stats
func WatcherStatsHandler(w Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireWatcher(c, w) {
			return
		}
		st, err := w.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GET /watcher/alerts?limit=50
func WatcherAlertsHandler(w Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireWatcher(c, w) {
			return
		}
		limit, ok := queryInt(c, "limit", 50)
		if !ok {
			return
		}
		alerts, err := w.Alerts(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if alerts == nil {
			alerts = []watcher.AlertRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
	}
}

func requireScheduler(c *gin.Context, s Scheduler) bool {
	if s == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Scheduler not available"))
		return false
	}
	return true
}

// GET /scheduler/status
func SchedulerStatusHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		c.JSON(http.StatusOK, s.Status())
	}
}

// GET /scheduler/jobs
func ListJobsHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		jobs := s.Jobs()
		c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
	}
}

// POST /scheduler/jobs  [admin only]
func CreateJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		var req struct {
			ID            string                 `json:"id"`
			Name          string                 `json:"name"`
			Description   string                 `json:"description"`
			Endpoint      string                 `json:"endpoint"`
			ScheduleType  scheduler.ScheduleType `json:"schedule_type"`
			ScheduleValue string                 `json:"schedule_value"`
			Enabled       *bool                  `json:"enabled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		job, err := s.AddJob(c.Request.Context(), scheduler.JobRecord{
			ID:            req.ID,
			Name:          req.Name,
			Description:   req.Description,
			Endpoint:      req.Endpoint,
			ScheduleType:  req.ScheduleType,
			ScheduleValue: req.ScheduleValue,
			Enabled:       req.Enabled == nil || *req.Enabled,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, job)
	}
}

// GET /scheduler/jobs/:id
func GetJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		job, err := s.Job(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// DELETE /scheduler/jobs/:id  [admin only]
func DeleteJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		if err := s.RemoveJob(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Job removed"})
	}
}

// POST /scheduler/jobs/:id/pause  [admin only]
func PauseJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		if err := s.PauseJob(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Job paused"})
	}
}

// POST /scheduler/jobs/:id/resume  [admin only]
func ResumeJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		if err := s.ResumeJob(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Job resumed"})
	}
}

// POST /scheduler/jobs/:id/run
func RunJobHandler(s Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireScheduler(c, s) {
			return
		}
		ran, err := s.RunJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !ran {
			c.JSON(http.StatusConflict, errorBody("Job is already running"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Job executed"})
	}
}
