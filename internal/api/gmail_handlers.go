package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/memory"
)

const (
	defaultMaxResults  = 10
	storedBodyPreview  = 1000
	analyzeBodyPreview = 200
	emailImportance    = 0.6
)

// requireGmail answers 503 when the Gmail client is not configured.
func requireGmail(c *gin.Context, g Mail) bool {
	if g == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Gmail service not available"))
		return false
	}
	return true
}

func messagesJSON(c *gin.Context, msgs []*gmail.Message) {
	if msgs == nil {
		msgs = []*gmail.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type gmailQuery struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// GET /gmail/status
func GmailStatusHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if g == nil {
			c.JSON(http.StatusOK, gin.H{"status": "unavailable", "message": "Gmail credentials not configured"})
			return
		}
		p, err := g.Profile(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "available", "profile": p})
	}
}

// GET /gmail/profile
func GmailProfileHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		p, err := g.Profile(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// POST /gmail/messages
func GmailMessagesHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		var req gmailQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		msgs, err := g.ListMessages(c.Request.Context(), req.Query, req.MaxResults)
		if err != nil {
			respondError(c, err)
			return
		}
		messagesJSON(c, msgs)
	}
}

// GET /gmail/unread?max_results=10
func GmailUnreadHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		limit, ok := queryInt(c, "max_results", defaultMaxResults)
		if !ok {
			return
		}
		msgs, err := g.Unread(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		messagesJSON(c, msgs)
	}
}

// GET /gmail/from/:sender?max_results=10
func GmailFromSenderHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		limit, ok := queryInt(c, "max_results", defaultMaxResults)
		if !ok {
			return
		}
		msgs, err := g.FromSender(c.Request.Context(), c.Param("sender"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		messagesJSON(c, msgs)
	}
}

// POST /gmail/date-range
//
// Dates may be in any common layout (RFC 3339, 2006-01-02, ...); zone-less
// values are read as UTC.
func GmailDateRangeHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		var req struct {
			StartDate  string `json:"start_date"`
			EndDate    string `json:"end_date"`
			MaxResults int    `json:"max_results"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		start, err := dateparse.ParseIn(req.StartDate, time.UTC)
		if err != nil {
			badRequest(c, "Invalid date format: "+err.Error())
			return
		}
		end, err := dateparse.ParseIn(req.EndDate, time.UTC)
		if err != nil {
			badRequest(c, "Invalid date format: "+err.Error())
			return
		}
		if end.Before(start) {
			badRequest(c, "end_date must not be before start_date")
			return
		}
		msgs, err := g.InDateRange(c.Request.Context(), start, end, req.MaxResults)
		if err != nil {
			respondError(c, err)
			return
		}
		messagesJSON(c, msgs)
	}
}

// POST /gmail/search
func GmailSearchHandler(g Mail) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		var req gmailQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		msgs, err := g.Search(c.Request.Context(), req.Query, req.MaxResults)
		if err != nil {
			respondError(c, err)
			return
		}
		messagesJSON(c, msgs)
	}
}

// POST /gmail/mark-read, /gmail/mark-unread
func GmailMarkHandler(g Mail, read bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
			badRequest(c, "ids must be a non-empty list")
			return
		}
		mark := g.MarkAsUnread
		if read {
			mark = g.MarkAsRead
		}
		if err := mark(c.Request.Context(), req.IDs...); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": len(req.IDs)})
	}
}

type processedEmail struct {
	Message        *gmail.Message `json:"message"`
	Analysis       *string        `json:"analysis"`
	StoredInMemory bool           `json:"stored_in_memory"`
}

// POST /gmail/process-and-analyze
//
// Each fetched message can be stored as an observation and analysed by
// the agent. The first failure aborts the request.
func ProcessAndAnalyzeHandler(g Mail, a Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireGmail(c, g) {
			return
		}
		var req struct {
			EmailQuery       string `json:"email_query"`
			MaxEmails        int    `json:"max_emails"`
			StoreInMemory    *bool  `json:"store_in_memory"`
			AnalyzeWithAgent *bool  `json:"analyze_with_agent"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		if req.EmailQuery == "" {
			req.EmailQuery = "is:unread"
		}
		if req.MaxEmails <= 0 {
			req.MaxEmails = 5
		}
		store := req.StoreInMemory == nil || *req.StoreInMemory
		analyze := req.AnalyzeWithAgent == nil || *req.AnalyzeWithAgent

		ctx := c.Request.Context()
		msgs, err := g.ListMessages(ctx, req.EmailQuery, req.MaxEmails)
		if err != nil {
			respondError(c, err)
			return
		}

		results := make([]processedEmail, 0, len(msgs))
		for _, m := range msgs {
			date := ""
			if m.Date != nil {
				date = m.Date.Format(time.RFC3339)
			}
			if store {
				content := fmt.Sprintf("Email from %s: %s\n\n%s", m.From, m.Subject, preview(m.BodyClean, storedBodyPreview))
				_, err := a.AddObservation(ctx, content, memory.Float64(emailImportance), map[string]any{
					"source":     "gmail",
					"message_id": m.ID,
					"subject":    m.Subject,
					"from":       m.From,
					"date":       date,
				})
				if err != nil {
					respondError(c, err)
					return
				}
			}
			var analysis *string
			if analyze {
				out, err := a.Run(ctx, agent.RunInput{
					Goal:    "Analyze this email and provide insights: " + m.Subject,
					Context: fmt.Sprintf("From: %s\nSubject: %s\nContent: %s", m.From, m.Subject, preview(m.BodyClean, analyzeBodyPreview)),
				})
				if err != nil {
					respondError(c, err)
					return
				}
				analysis = &out
			}
			results = append(results, processedEmail{Message: m, Analysis: analysis, StoredInMemory: store})
		}
		c.JSON(http.StatusOK, gin.H{"processed_emails": len(results), "results": results})
	}
}
