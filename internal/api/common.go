package api

import (
	"strconv"
	"time"

	"github.com/videoindex/core/internal/apperr"

	"github.com/gin-gonic/gin"
)

// defaultPresignTTL bounds the presigned upload/photo URLs this surface
// hands out.
const defaultPresignTTL = 15 * time.Minute

// writeAppErr classifies err via apperr and writes the matching HTTP status
// with a JSON error body, the single error-to-response seam every handler
// in this package uses.
func writeAppErr(c *gin.Context, err error) {
	class := apperr.ClassOf(err)
	c.JSON(apperr.HTTPStatus(class), gin.H{"error": err.Error(), "class": class})
}

// paginationParams reads limit/offset query params (default 20/0). A limit
// above 100 becomes 100, a limit of 0 or below falls back to 20, and a
// negative offset becomes 0.
func paginationParams(c *gin.Context) (limit, offset int) {
	limit = 20
	offset = 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
