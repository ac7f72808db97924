package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"go-autoagent/internal/notify"
)

// GET /notifications/channels
func ChannelsHandler(n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": n.Available()})
	}
}

// POST /notifications/send
//
// An empty channel list sends to every configured channel.
func SendNotificationHandler(n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title     string         `json:"title"`
			Message   string         `json:"message"`
			Urgency   string         `json:"urgency"`
			AlertType string         `json:"alert_type"`
			Data      map[string]any `json:"data"`
			Channels  []string       `json:"channels"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			badRequest(c, "message is required")
			return
		}
		urgency := notify.Urgency(strings.ToUpper(req.Urgency))
		switch urgency {
		case "", notify.UrgencyHigh, notify.UrgencyMedium, notify.UrgencyLow:
		default:
			badRequest(c, "urgency must be HIGH, MEDIUM or LOW")
			return
		}
		channels, err := notify.ParseChannels(req.Channels)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.AlertType == "" {
			req.AlertType = "manual"
		}
		results := n.Send(c.Request.Context(), notify.Notification{
			Title:   req.Title,
			Message: req.Message,
			Urgency: urgency,
			Kind:    req.AlertType,
			Data:    req.Data,
		}, channels...)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// POST /notifications/test
func TestNotificationHandler(n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": n.Test(c.Request.Context())})
	}
}
