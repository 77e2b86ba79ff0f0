package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"korob/internal/engine"
)

// POST /api/:entity
func CreateHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		rec, err := svc.Create(c.Request.Context(), c.Param("entity"), payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

// GET /api/:entity?page=&page_size=
func ListHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := parsePage(c)
		res, err := svc.List(c.Request.Context(), c.Param("entity"), page, pageSize)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GET /api/:entity/:id
func GetOneHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.Get(c.Request.Context(), c.Param("entity"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// PATCH /api/:entity/:id — частичное слияние payload в существующую запись.
func UpdateHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		rec, err := svc.Update(c.Request.Context(), c.Param("entity"), c.Param("id"), payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// DELETE /api/:entity/:id — всегда soft delete.
func DeleteHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.SoftDelete(c.Request.Context(), c.Param("entity"), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GET /api/:entity/count
func CountHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.Count(c.Request.Context(), c.Param("entity"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}
