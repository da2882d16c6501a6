// Package admin implements the HTTP handlers for the directory's CRUD endpoints.
//
// Handlers only translate between HTTP and the services package: they parse path and
// query parameters, decode JSON bodies and map service errors onto status codes. Every
// business rule lives in the services.
package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/middleware"
	"github.com/org-directory/org-directory/internal/services"
)

const defaultLimit = services.DefaultPageSize

// page is the resolved skip/limit window of a list request
type page struct {
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// parseID reads the int64 path parameter name. It writes a 400 and returns false
// when the value is not a positive integer.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// parsePage reads ?skip=&limit=. Missing values default to 0 and 100; limits above
// the service maximum are clamped.
func parsePage(c *gin.Context) (page, bool) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "skip must be a non-negative integer"})
		return page{}, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return page{}, false
	}
	if limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}
	return page{Skip: skip, Limit: limit}, true
}

// bindJSON decodes the request body into dst, writing a 400 on malformed JSON.
// Field rules are enforced by the services, not by binding tags.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}

// respondError maps a service error onto an HTTP status. Unclassified errors are
// logged and reported as an opaque 500.
func respondError(c *gin.Context, logger *slog.Logger, err error, notFound string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrReferentialViolation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", middleware.RequestID(c),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Nullable distinguishes a JSON field that is absent from one explicitly set to null.
// Present is only true when the key appeared in the body.
type Nullable[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// UnmarshalJSON is only invoked for keys present in the document.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Null = true
		return nil
	}
	return json.Unmarshal(data, &n.Value)
}
