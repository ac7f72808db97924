package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/config"
	"go-autoagent/internal/llm"
)

// GET /health
func healthHandler(m *llm.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if m != nil {
			body["llm"] = m.GetMetrics()
		}
		c.JSON(http.StatusOK, body)
	}
}

// GET /config
func configHandler(cfg *config.Config, n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		body := gin.H{
			"server": gin.H{
				"host":    cfg.Server.Host,
				"port":    cfg.Server.Port,
				"subpath": cfg.Server.Subpath,
			},
			"memory": gin.H{
				"backend":    cfg.Memory.Backend,
				"collection": cfg.Memory.Collection,
			},
			"embedding": gin.H{
				"provider":   cfg.Embedding.Provider,
				"model":      cfg.Embedding.Model,
				"dimensions": cfg.Embedding.Dimensions,
			},
			"llm": gin.H{
				"provider": cfg.LLM.Provider,
				"model":    cfg.LLM.Model,
			},
			"watcher":   cfg.Watcher,
			"scheduler": cfg.Scheduler,
		}
		if n != nil {
			body["notification_channels"] = n.Available()
		}
		c.JSON(http.StatusOK, body)
	}
}

// POST /run-with-memory
func RunWithMemoryHandler(a Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Goal              string `json:"goal"`
			Context           string `json:"context"`
			MemorySearchLimit *int   `json:"memory_search_limit"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		in := agent.RunInput{Goal: req.Goal, Context: req.Context}
		if req.MemorySearchLimit != nil {
			if *req.MemorySearchLimit < 1 {
				badRequest(c, "memory_search_limit must be positive")
				return
			}
			in.SearchLimit = *req.MemorySearchLimit
		}
		result, err := a.Run(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}
