package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wanzdb/wanzdb/internal/schema"
)

// SchemaHandler serves the field definitions attached to a collection.
type SchemaHandler struct {
	schemas *schema.Service
}

func NewSchemaHandler(s *schema.Service) *SchemaHandler {
	return &SchemaHandler{schemas: s}
}

// Register routes under /:collection
func (h *SchemaHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/:collection", h.Get)
	rg.POST("/:collection", h.Set)
}

type setSchemaRequest struct {
	Fields []schema.FieldDef `json:"fields"`
}

func (h *SchemaHandler) Get(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	d, err := h.schemas.Get(c.Request.Context(), tenant, c.Param("collection"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SchemaHandler) Set(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	var req setSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	d, err := h.schemas.Upsert(c.Request.Context(), tenant, c.Param("collection"), req.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
