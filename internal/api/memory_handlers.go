package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-autoagent/internal/memory"
)

type memoriesResponse struct {
	Memories []memory.Record `json:"memories"`
	Count    int             `json:"count"`
}

func memories(recs []memory.Record) memoriesResponse {
	if recs == nil {
		recs = []memory.Record{}
	}
	return memoriesResponse{Memories: recs, Count: len(recs)}
}

// queryInt reads an optional positive integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// POST /memory/add
func AddMemoryHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Content         string         `json:"content"`
			MemoryType      memory.Type    `json:"memory_type"`
			ImportanceScore *float64       `json:"importance_score"`
			Metadata        map[string]any `json:"metadata"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
		id, err := s.Add(c.Request.Context(), memory.AddInput{
			Content:    req.Content,
			Type:       req.MemoryType,
			Importance: req.ImportanceScore,
			Metadata:   req.Metadata,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"memory_id": id, "message": "Memory added successfully"})
	}
}

// POST /memory/search
func SearchMemoriesHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Query               string       `json:"query"`
			MemoryType          *memory.Type `json:"memory_type"`
			Limit               *int         `json:"limit"`
			SimilarityThreshold float64      `json:"similarity_threshold"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
		limit := 10
		if req.Limit != nil {
			limit = *req.Limit
		}
		recs, err := s.Search(c.Request.Context(), memory.SearchQuery{
			Query:               req.Query,
			Type:                req.MemoryType,
			Limit:               limit,
			SimilarityThreshold: req.SimilarityThreshold,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, memories(recs))
	}
}

// GET /memory/stats
func MemoryStatsHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := s.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GET /memory/type/:type?limit=100
func MemoriesByTypeHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := memory.ParseType(c.Param("type"))
		if err != nil {
			badRequest(c, "Invalid memory type: "+c.Param("type"))
			return
		}
		limit, ok := queryInt(c, "limit", 100)
		if !ok {
			return
		}
		recs, err := s.GetByType(c.Request.Context(), t, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, memories(recs))
	}
}

// GET /memory/:id
func GetMemoryHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// DELETE /memory/:id  [admin only]
func DeleteMemoryHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := s.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "deleted": deleted})
	}
}

// POST /memory/clear  [admin only]
func ClearMemoriesHandler(s MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.ClearAll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type addFunc func(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error)

// POST /memory/observation, /memory/learning, /memory/reflection
//
// A missing importance_score takes the agent's default for the type.
func AddTypedMemoryHandler(add addFunc, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Content         string         `json:"content"`
			ImportanceScore *float64       `json:"importance_score"`
			Metadata        map[string]any `json:"metadata"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
		id, err := add(c.Request.Context(), req.Content, req.ImportanceScore, req.Metadata)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"memory_id": id, "message": label + " added successfully"})
	}
}
