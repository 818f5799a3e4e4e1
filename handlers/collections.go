package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/registry"
)

// CollectionsHandler serves the per-tenant collection registry.
type CollectionsHandler struct {
	registry *registry.Service
}

func NewCollectionsHandler(r *registry.Service) *CollectionsHandler {
	return &CollectionsHandler{registry: r}
}

// Register routes under /collections
func (h *CollectionsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/collections", h.List)
	rg.POST("/collections", h.Create)
	rg.DELETE("/collections/:name", h.Delete)
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

func (h *CollectionsHandler) List(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	list, err := h.registry.List(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create registers a collection. A duplicate name is a client error here, so
// it is reported as 400 rather than 409.
func (h *CollectionsHandler) Create(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection name is required"})
		return
	}
	d, err := h.registry.Create(c.Request.Context(), tenant, req.Name)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			respondStatus(c, http.StatusBadRequest, err)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *CollectionsHandler) Delete(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := h.registry.Delete(c.Request.Context(), tenant, name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "collection " + name + " deleted"})
}
