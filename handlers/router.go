package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/wanzdb/wanzdb/internal/document/service"
	"github.com/wanzdb/wanzdb/internal/registry"
	"github.com/wanzdb/wanzdb/internal/schema"
	"github.com/wanzdb/wanzdb/pkg/middleware"
)

// API bundles what the tenant-scoped routes need.
type API struct {
	Verifier  middleware.Verifier
	Registry  *registry.Service
	Documents service.Service
	Schemas   *schema.Service
	// Middleware runs after the tenant is resolved, e.g. a per-tenant rate limiter.
	Middleware []gin.HandlerFunc
}

// RegisterAPI mounts /api/data and /api/schema behind the tenant middleware.
func RegisterAPI(r *gin.Engine, api API) {
	chain := append([]gin.HandlerFunc{middleware.TenantMiddleware(api.Verifier)}, api.Middleware...)

	data := r.Group("/api/data", chain...)
	NewCollectionsHandler(api.Registry).Register(data)
	NewDataHandler(api.Documents).Register(data)

	NewSchemaHandler(api.Schemas).Register(r.Group("/api/schema", chain...))
}
