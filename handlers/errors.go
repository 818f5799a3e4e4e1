package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/pkg/logger"
	"github.com/wanzdb/wanzdb/pkg/middleware"
)

// statusFor maps the error classes of the data layer to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	respondStatus(c, statusFor(err), err)
}

func respondStatus(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// tenantOf returns the tenant resolved by the tenant middleware, aborting with
// 401 when there is none.
func tenantOf(c *gin.Context) (string, bool) {
	tenant := middleware.TenantFrom(c)
	if tenant == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no tenant, authorization denied"})
		return "", false
	}
	return tenant, true
}
